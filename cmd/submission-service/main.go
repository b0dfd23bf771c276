package main

import (
	"context"
	"errors"
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
	"github.com/tm2health/platform/pkg/submission"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := submission.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate submission tables")
	}

	client := submission.NewClient(cfg)

	var dlqProducer *kafka.Producer
	if cfg.IngestionDLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.IngestionDLQTopic)
		defer dlqProducer.Close()
	}

	submitter := submission.NewSubmitter(client, repo, dlqProducer, cfg.SubmissionMaxAttempts)

	consumer := kafka.NewConsumer(cfg.SubmissionTopic, cfg.SubmissionGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Consume(ctx, submitter.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	submission.NewHTTPHandler(repo).Register(api)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx); err != nil {
			logger.Log.WithError(err).Warn("EMR API not reachable")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"emr unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8082"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8082",
		}).Info("Submission Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Submission Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("failed to close postgres connection")
	}

	logger.Log.Info("Submission Service stopped")
}
