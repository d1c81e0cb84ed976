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

// Package pipeline runs the post-response continuation for each
// accepted email: classification, decision, and workflow execution on a
// fixed pool of workers. Failures here are invisible to the webhook
// caller; they terminate in a forced manual review status and an audit
// entry.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crestline/triage/internal/analyzer"
	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/decision"
	"github.com/crestline/triage/internal/metrics"
	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/workflow"
)

// Store is the slice of the record store the pipeline needs.
type Store interface {
	UpdateEmailStatus(ctx context.Context, id string, status models.Status) error
}

// Pipeline chains the analyzer, decision engine, and workflow executor.
type Pipeline struct {
	analyzer *analyzer.Analyzer
	engine   *decision.Engine
	executor *workflow.Executor
	store    Store
	auditor  *audit.Logger

	tasks chan *models.Email
	wg    sync.WaitGroup
}

// New creates a pipeline with a task buffer of the given size.
func New(an *analyzer.Analyzer, engine *decision.Engine, exec *workflow.Executor, store Store, auditor *audit.Logger, buffer int) *Pipeline {
	if buffer <= 0 {
		buffer = 256
	}
	return &Pipeline{
		analyzer: an,
		engine:   engine,
		executor: exec,
		store:    store,
		auditor:  auditor,
		tasks:    make(chan *models.Email, buffer),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case email := <-p.tasks:
					p.Process(ctx, email)
				}
			}
		}(i)
	}
	slog.Info("pipeline workers started", "workers", workers, "buffer", cap(p.tasks))
}

// Stop waits for in-flight workers to finish. Queued tasks that no
// worker picked up before cancellation are dropped; the reprocess tool
// recovers them from their stored received status.
func (p *Pipeline) Stop() {
	p.wg.Wait()
}

// Submit hands an email to the worker pool. If the buffer is full the
// task runs on its own goroutine so intake never stalls a webhook
// response.
func (p *Pipeline) Submit(ctx context.Context, email *models.Email) {
	select {
	case p.tasks <- email:
	default:
		slog.Warn("pipeline buffer full, processing on dedicated goroutine", "email_id", email.ID)
		go p.Process(ctx, email)
	}
}

// Process runs the full continuation for one email. Every failure path
// lands the email in a terminal status and the audit trail; nothing
// propagates to the caller.
func (p *Pipeline) Process(ctx context.Context, email *models.Email) {
	analysis, err := p.analyzer.Analyze(ctx, email.ID, email.Subject, email.Body)
	if err != nil {
		p.forceManualReview(ctx, email.ID, fmt.Errorf("analysis could not be persisted: %w", err))
		return
	}

	metrics.EmailsClassified.WithLabelValues(string(analysis.EmailType)).Inc()

	dec := p.engine.Decide(analysis.EmailType, analysis.Confidence)

	if err := p.store.UpdateEmailStatus(ctx, email.ID, dec.Status); err != nil {
		p.forceManualReview(ctx, email.ID, fmt.Errorf("decision status write failed: %w", err))
		return
	}

	if !dec.Allowed {
		metrics.AutomationBlocked.Inc()
		p.auditor.Log(ctx, audit.Entry{
			Action:      models.AuditAutomationBlocked,
			EmailID:     email.ID,
			Description: dec.Reason,
			Success:     true,
			Metadata: map[string]any{
				"email_type": string(analysis.EmailType),
				"confidence": analysis.Confidence,
				"status":     string(dec.Status),
			},
		})
	}
	if dec.Status == models.StatusManualReview {
		p.auditor.Log(ctx, audit.Entry{
			Action:      models.AuditManualReviewTriggered,
			EmailID:     email.ID,
			Description: fmt.Sprintf("routed to manual review: %s", dec.Reason),
			Success:     true,
		})
	}

	result := p.executor.Execute(ctx, email, analysis, dec)

	slog.Info("pipeline completed",
		"email_id", email.ID,
		"email_type", analysis.EmailType,
		"status", dec.Status,
		"automation_allowed", dec.Allowed,
		"workflow_success", result.Success,
	)
}

// forceManualReview is the terminal fallback when the decision step
// itself failed: the email must not be left in an undetermined state.
func (p *Pipeline) forceManualReview(ctx context.Context, emailID string, cause error) {
	metrics.PipelineFailures.Inc()
	slog.Error("pipeline failure, forcing manual review", "email_id", emailID, "error", cause)

	if err := p.store.UpdateEmailStatus(ctx, emailID, models.StatusManualReview); err != nil {
		slog.Error("failed to force manual review status", "email_id", emailID, "error", err)
	}

	p.auditor.Failure(ctx, models.AuditSystemError, emailID, "pipeline failed, email forced into manual review", cause)
}
