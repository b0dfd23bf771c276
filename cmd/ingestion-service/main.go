package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/tm2health/platform/pkg/common/config"
	"github.com/tm2health/platform/pkg/common/database"
	"github.com/tm2health/platform/pkg/common/kafka"
	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/dlp"
	"github.com/tm2health/platform/pkg/emr"
	"github.com/tm2health/platform/pkg/ingestion"
	"github.com/tm2health/platform/pkg/storage"
	"github.com/tm2health/platform/pkg/terminology"
	"github.com/tm2health/platform/pkg/tm2"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := ingestion.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate ingestion tables")
	}

	tables, err := terminology.LoadTables(cfg.TerminologyPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load terminology tables")
	}
	translator := terminology.NewTranslator(tables)

	opts, err := tm2.LoadOptions(cfg.CleaningConfigPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load cleaning options")
	}
	if cfg.PipelineWorkers > 0 {
		opts.Workers = cfg.PipelineWorkers
	}

	pipeline, err := tm2.NewPipeline(opts, translator)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build cleaning pipeline")
	}

	rules, err := dlp.LoadRules(cfg.DLPRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to built-in masking rules")
		rules = dlp.DefaultRules()
	}
	guard, err := dlp.NewDetector(rules)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to compile masking rules")
	}

	cache := storage.NewStatsCache(database.GetRedis(), cfg.StatsCacheTTL)

	producer := kafka.NewProducer(cfg.IngestionEMRTopic)
	defer producer.Close()

	var dlqProducer *kafka.Producer
	if cfg.IngestionDLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.IngestionDLQTopic)
		defer dlqProducer.Close()
	}

	svc := ingestion.NewService(pipeline, guard, emr.NewMapper(), repo, cache, producer, dlqProducer, cfg.IngestionStatusTTL)
	handler := ingestion.NewHTTPHandler(svc, translator, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8081"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8081",
		}).Info("Ingestion Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go func() {
		ticker := time.NewTicker(12 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := svc.Cleanup(context.Background()); err != nil {
					logger.Log.WithError(err).Warn("cleanup job failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Ingestion Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres connection")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("failed to close redis connection")
	}

	logger.Log.Info("Ingestion Service stopped")
}
