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

// Package reprocess recovers emails whose pipeline run was lost to a
// crash or restart. There is no durable task queue: an email accepted
// by the webhook but never classified simply stays in status received.
// This runner finds those emails and pushes them through the pipeline
// again.
package reprocess

import (
	"context"
	"log/slog"
	"time"

	"github.com/crestline/triage/internal/models"
)

// Store is the slice of the record store the runner needs.
type Store interface {
	ListStuckEmails(ctx context.Context, olderThan time.Duration) ([]models.Email, error)
	GetAnalysisByEmailID(ctx context.Context, emailID string) (*models.Analysis, error)
}

// Processor runs the classification continuation for one email.
type Processor interface {
	Process(ctx context.Context, email *models.Email)
}

// Result summarises a completed recovery run.
type Result struct {
	Found     int
	Processed int
	Skipped   int
	Elapsed   time.Duration
}

// Runner re-runs the pipeline for stuck emails.
type Runner struct {
	store     Store
	processor Processor
	delay     time.Duration // pause between emails to avoid hammering the classifier
}

// NewRunner creates a reprocess runner.
func NewRunner(store Store, processor Processor, delay time.Duration) *Runner {
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Runner{
		store:     store,
		processor: processor,
		delay:     delay,
	}
}

// Run finds emails stuck in status received for longer than olderThan
// and processes each sequentially. An email that already has an
// analysis row is skipped: classification is exactly-once, and the
// pipeline's decision step will have been lost mid-flight in that case,
// which an operator resolves by hand.
func (r *Runner) Run(ctx context.Context, olderThan time.Duration) (*Result, error) {
	start := time.Now()

	emails, err := r.store.ListStuckEmails(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	result := &Result{Found: len(emails)}
	slog.Info("stuck emails found", "count", len(emails), "older_than", olderThan)

	for i := range emails {
		email := &emails[i]

		if i > 0 {
			select {
			case <-ctx.Done():
				result.Elapsed = time.Since(start)
				return result, ctx.Err()
			case <-time.After(r.delay):
			}
		}

		analysis, err := r.store.GetAnalysisByEmailID(ctx, email.ID)
		if err != nil {
			slog.Warn("analysis lookup failed, skipping", "email_id", email.ID, "error", err)
			result.Skipped++
			continue
		}
		if analysis != nil {
			slog.Warn("email already analyzed but still in received status, skipping",
				"email_id", email.ID,
				"email_type", analysis.EmailType,
			)
			result.Skipped++
			continue
		}

		slog.Info("reprocessing email", "email_id", email.ID, "received_at", email.ReceivedAt)
		r.processor.Process(ctx, email)
		result.Processed++
	}

	result.Elapsed = time.Since(start)
	return result, nil
}
