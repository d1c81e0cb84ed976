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

// Crestline Triage: stuck email recovery command.
//
// Standalone CLI tool that re-runs the classification pipeline for
// emails accepted by the webhook but never processed, typically after a
// crash or restart. Intended to be run by an operator or a cron job.
//
// Usage:
//
//	go run ./cmd/reprocess/ [--older-than 10m] [--delay 500ms]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestline/triage/internal/analyzer"
	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/classifier"
	"github.com/crestline/triage/internal/config"
	"github.com/crestline/triage/internal/decision"
	"github.com/crestline/triage/internal/mailer"
	"github.com/crestline/triage/internal/pipeline"
	"github.com/crestline/triage/internal/reprocess"
	"github.com/crestline/triage/internal/retry"
	"github.com/crestline/triage/internal/store"
	"github.com/crestline/triage/internal/workflow"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	olderThanFlag := flag.String("older-than", "10m", "Only recover emails stuck longer than this duration")
	delayFlag := flag.String("delay", "500ms", "Pause between emails")
	flag.Parse()

	olderThan, err := time.ParseDuration(*olderThanFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --older-than duration %q: %v\n", *olderThanFlag, err)
		os.Exit(1)
	}
	delay, err := time.ParseDuration(*delayFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --delay duration %q: %v\n", *delayFlag, err)
		os.Exit(1)
	}

	slog.Info("starting stuck email recovery", "older_than", olderThan)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	recordStore, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise record store", "error", err)
		os.Exit(1)
	}

	auditor := audit.NewLogger(recordStore)

	// --- Classifier + Pipeline (same wiring as the server) ---
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

	an := analyzer.New(completer, recordStore, auditor, retry.Policy{
		MaxRetries:      cfg.Classifier.MaxRetries,
		InitialInterval: cfg.Classifier.RetryBase,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	})

	engine := decision.NewEngine(cfg.ConfidenceThreshold)

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

	executor := workflow.NewExecutor(recordStore, sender, templates, auditor, cfg.Mail.From)
	pipe := pipeline.New(an, engine, executor, recordStore, auditor, cfg.PipelineBuffer)

	// --- Run Recovery ---
	runner := reprocess.NewRunner(recordStore, pipe, delay)
	result, err := runner.Run(ctx, olderThan)
	if err != nil {
		slog.Error("recovery failed", "error", err)
		os.Exit(1)
	}

	slog.Info("recovery complete",
		"found", result.Found,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"elapsed", result.Elapsed,
	)
}
