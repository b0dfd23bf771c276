package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/tm2health/platform/pkg/common/config"
	"github.com/tm2health/platform/pkg/common/database"
	"github.com/tm2health/platform/pkg/common/httpclient"
	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/gateway/auth"
	"github.com/tm2health/platform/pkg/gateway/middleware"
	"github.com/tm2health/platform/pkg/gateway/routes"
	"github.com/tm2health/platform/pkg/observability/metrics"
)

func main() {
	logger.Init()
	cfg := config.Load()
	metrics.Init()

	oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC authentication not configured, running without auth")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if oidcAuth != nil {
		apiRouter.Use(middleware.Authenticate(oidcAuth))
	}

	proxy := &routes.IngestionProxy{
		Client: httpclient.New(cfg.GatewayRequestTimeout),
		Cfg:    cfg,
	}
	routes.RegisterIngestionRoutes(apiRouter, proxy)
	routes.NewMetricsHandler(db).Register(apiRouter)
	routes.NewAlertsHandler(db).Register(apiRouter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pollMetrics(ctx, db)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("API Gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down API Gateway...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres connection")
	}

	logger.Log.Info("API Gateway stopped")
}

// pollMetrics refreshes the Prometheus gauges from Postgres on a fixed
// interval so scrapes stay cheap.
func pollMetrics(ctx context.Context, db *gorm.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	sample(db)
	for {
		select {
		case <-ticker.C:
			sample(db)
		case <-ctx.Done():
			return
		}
	}
}

func sample(db *gorm.DB) {
	var batchRows []struct {
		Status string
		Count  int64
	}
	if err := db.Raw(`SELECT status, COUNT(*) AS count FROM processing_batches GROUP BY status`).Scan(&batchRows).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to sample batch metrics")
		return
	}
	batches := map[string]int64{}
	for _, row := range batchRows {
		batches[row.Status] = row.Count
	}
	metrics.ObserveBatchCounts(batches["accepted"], batches["completed"], batches["published"], batches["failed"])

	var processed sql.NullInt64
	if err := db.Raw(`SELECT COALESCE(SUM(total_records), 0) FROM processing_batches`).Scan(&processed).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to sample record metrics")
		return
	}
	if processed.Valid {
		metrics.ObserveRecordsProcessed(processed.Int64)
	}

	var subRows []struct {
		Status string
		Count  int64
	}
	if err := db.Raw(`SELECT status, COUNT(*) AS count FROM emr_submissions GROUP BY status`).Scan(&subRows).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to sample submission metrics")
		return
	}
	subs := map[string]int64{}
	for _, row := range subRows {
		subs[row.Status] = row.Count
	}
	metrics.ObserveSubmissionCounts(subs["submitted"], subs["failed"])

	var latest sql.NullFloat64
	if err := db.Raw(`
		SELECT quality_score FROM processing_batches
		WHERE status IN ('completed', 'published')
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&latest).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to sample quality metrics")
		return
	}

	var avg sql.NullFloat64
	if err := db.Raw(`
		SELECT AVG(quality_score) FROM processing_batches
		WHERE created_at > NOW() - INTERVAL '7 days' AND status IN ('completed', 'published')
	`).Scan(&avg).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to sample quality metrics")
		return
	}
	metrics.ObserveQualityScores(latest.Float64, avg.Float64)
}
