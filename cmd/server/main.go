// Copyright (c) 2026 Crestline Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Crestline Triage: email classification and automation service.
//
// Entry point for the triage service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Builds the pipeline: analyzer, decision engine, workflow executor
//  4. Starts the pipeline worker pool
//  5. Serves the inbound webhook plus /health and /metrics
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/crestline/triage/internal/analyzer"
	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/classifier"
	"github.com/crestline/triage/internal/config"
	"github.com/crestline/triage/internal/decision"
	"github.com/crestline/triage/internal/dedup"
	"github.com/crestline/triage/internal/mailer"
	"github.com/crestline/triage/internal/pipeline"
	"github.com/crestline/triage/internal/retry"
	"github.com/crestline/triage/internal/store"
	"github.com/crestline/triage/internal/webhook"
	"github.com/crestline/triage/internal/workflow"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Crestline triage service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"classifier_model", cfg.Classifier.Model,
		"confidence_threshold", cfg.ConfidenceThreshold,
		"pipeline_workers", cfg.PipelineWorkers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Record Store ---
	recordStore, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb)

	// --- Audit Logger ---
	auditor := audit.NewLogger(recordStore)

	// --- Classifier Client ---
	completer, err := classifier.NewClient(classifier.Config{
		APIKey:  cfg.Classifier.APIKey,
		BaseURL: cfg.Classifier.BaseURL,
		Model:   cfg.Classifier.Model,
		Timeout: cfg.Classifier.Timeout,
	})
	if err != nil {
		slog.Error("failed to initialise classifier client", "error", err)
		os.Exit(1)
	}

	// --- Analyzer ---
	an := analyzer.New(completer, recordStore, auditor, retry.Policy{
		MaxRetries:      cfg.Classifier.MaxRetries,
		InitialInterval: cfg.Classifier.RetryBase,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	})

	// --- Decision Engine ---
	engine := decision.NewEngine(cfg.ConfidenceThreshold)

	// --- Mail Sender ---
	transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:        cfg.Mail.SMTPHost,
		Username:    cfg.Mail.Username,
		Password:    cfg.Mail.Password,
		UseStartTLS: cfg.Mail.UseStartTLS,
		TLSVerify:   cfg.Mail.TLSVerify,
	})
	sender := mailer.NewSender(transport, auditor, retry.Policy{
		MaxRetries:      cfg.Mail.MaxRetries,
		InitialInterval: cfg.Mail.RetryBase,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	})

	var templateCompleter classifier.Completer
	if cfg.Mail.Personalize {
		templateCompleter = completer
	}
	templates := mailer.NewTemplates(templateCompleter)

	// --- Workflow Executor ---
	executor := workflow.NewExecutor(recordStore, sender, templates, auditor, cfg.Mail.From)

	// --- Pipeline ---
	pipe := pipeline.New(an, engine, executor, recordStore, auditor, cfg.PipelineBuffer)
	pipe.Start(ctx, cfg.PipelineWorkers)

	// --- HTTP Server ---
	handler := webhook.NewHandler(recordStore, filter, pipe, auditor)

	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", handler.ServeInbound)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		cancel() // Stop pipeline workers
		pipe.Stop()

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("triage service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("triage service stopped")
}
