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

// Package workflow executes the type-specific side effects for a
// decided email: priority updates and conditional acknowledgment
// sends. Handler failures are contained at the Execute boundary; they
// surface as a failed result and an audit entry, never as a panic or
// error to the caller.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/mailer"
	"github.com/crestline/triage/internal/models"
)

// Store is the slice of the record store the executor needs.
type Store interface {
	UpdateEmailPriority(ctx context.Context, id string, priority models.Priority) error
	InsertWorkflow(ctx context.Context, w *models.WorkflowExecution) (string, error)
}

// Result summarises one workflow run.
type Result struct {
	Success   bool
	Actions   []string
	EmailSent bool
}

// Executor dispatches a decided email to its type-specific handler.
type Executor struct {
	store     Store
	sender    *mailer.Sender
	templates *mailer.Templates
	auditor   *audit.Logger
	from      string // sender address for acknowledgments
}

// NewExecutor creates a workflow executor.
func NewExecutor(store Store, sender *mailer.Sender, templates *mailer.Templates, auditor *audit.Logger, from string) *Executor {
	return &Executor{
		store:     store,
		sender:    sender,
		templates: templates,
		auditor:   auditor,
		from:      from,
	}
}

// Execute runs the handler for the analysis' email type, persists a
// WorkflowExecution record, and audit-logs the run. An unrecognized
// type falls back to the unknown handler.
func (e *Executor) Execute(ctx context.Context, email *models.Email, analysis *models.Analysis, dec models.Decision) Result {
	result := e.runHandler(ctx, email, analysis, dec)

	automationUsed := dec.Allowed && result.EmailSent

	rec := &models.WorkflowExecution{
		EmailID:        email.ID,
		WorkflowType:   analysis.EmailType,
		AutomationUsed: automationUsed,
		Actions:        result.Actions,
		Success:        result.Success,
	}
	if _, err := e.store.InsertWorkflow(ctx, rec); err != nil {
		slog.Error("failed to persist workflow execution", "email_id", email.ID, "error", err)
		e.auditor.Failure(ctx, models.AuditSystemError, email.ID, "workflow execution record could not be persisted", err)
	}

	e.auditor.Log(ctx, audit.Entry{
		Action:      models.AuditWorkflowExecuted,
		EmailID:     email.ID,
		Description: fmt.Sprintf("workflow for %s completed", analysis.EmailType),
		Success:     result.Success,
		Metadata: map[string]any{
			"workflow_type":   string(analysis.EmailType),
			"automation_used": automationUsed,
			"actions":         result.Actions,
		},
	})

	return result
}

// runHandler invokes the right handler and converts panics and handler
// errors into a failed result plus a system error audit entry.
func (e *Executor) runHandler(ctx context.Context, email *models.Email, analysis *models.Analysis, dec models.Decision) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("workflow handler panic: %v", r)
			slog.Error("workflow handler panicked", "email_id", email.ID, "panic", r)
			e.auditor.Failure(ctx, models.AuditSystemError, email.ID, "workflow handler faulted", err)
			result = Result{Success: false, Actions: append(result.Actions, "workflow handler faulted")}
		}
	}()

	var err error
	switch analysis.EmailType {
	case models.TypeRFQ:
		result, err = e.handleRFQ(ctx, email, analysis, dec)
	case models.TypeUrgent:
		result, err = e.handleUrgent(ctx, email)
	case models.TypeInvoice:
		result, err = e.handleInvoice(ctx, email, dec)
	default:
		result, err = e.handleUnknown(ctx, analysis)
	}

	if err != nil {
		slog.Error("workflow handler failed", "email_id", email.ID, "error", err)
		e.auditor.Failure(ctx, models.AuditSystemError, email.ID, "workflow handler faulted", err)
		result.Success = false
		return result
	}

	result.Success = true
	return result
}

// handleRFQ raises priority based on the extracted deadline and, when
// automation is allowed, sends a templated RFQ acknowledgment.
func (e *Executor) handleRFQ(ctx context.Context, email *models.Email, analysis *models.Analysis, dec models.Decision) (Result, error) {
	priority := models.PriorityMedium
	if analysis.Extracted.Deadline != nil && *analysis.Extracted.Deadline != "" {
		priority = models.PriorityHigh
	}
	if err := e.store.UpdateEmailPriority(ctx, email.ID, priority); err != nil {
		return Result{}, fmt.Errorf("update priority: %w", err)
	}

	if !dec.Allowed {
		return Result{Actions: []string{fmt.Sprintf("automation blocked: %s", dec.Reason)}}, nil
	}

	actions := []string{fmt.Sprintf("priority set to %s", priority)}

	subject, text, html := e.templates.RFQAck(ctx, analysis.Extracted.ProjectType)
	send := e.sender.Send(ctx, email.ID, &mailer.Message{
		From:    e.from,
		To:      email.FromEmail,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
	if send.Success {
		actions = append(actions, fmt.Sprintf("RFQ acknowledgment sent to %s (message %s)", email.FromEmail, send.MessageID))
	} else {
		actions = append(actions, fmt.Sprintf("RFQ acknowledgment send failed: %v", send.Err))
	}

	return Result{Actions: actions, EmailSent: send.Success}, nil
}

// handleUrgent always escalates the priority to critical and never
// sends mail. The decision engine already refuses automation for urgent
// issues, but this handler does not rely on that invariant.
func (e *Executor) handleUrgent(ctx context.Context, email *models.Email) (Result, error) {
	if err := e.store.UpdateEmailPriority(ctx, email.ID, models.PriorityCritical); err != nil {
		return Result{}, fmt.Errorf("update priority: %w", err)
	}

	return Result{Actions: []string{
		"priority set to critical",
		"no automated email sent (safety protocol)",
	}}, nil
}

// handleInvoice conditionally sends an invoice acknowledgment, then
// always routes the email to finance.
func (e *Executor) handleInvoice(ctx context.Context, email *models.Email, dec models.Decision) (Result, error) {
	var actions []string
	sent := false

	if dec.Allowed {
		subject, text, html := e.templates.InvoiceAck(ctx)
		send := e.sender.Send(ctx, email.ID, &mailer.Message{
			From:    e.from,
			To:      email.FromEmail,
			Subject: subject,
			Text:    text,
			HTML:    html,
		})
		sent = send.Success
		if send.Success {
			actions = append(actions, fmt.Sprintf("invoice acknowledgment sent to %s (message %s)", email.FromEmail, send.MessageID))
		} else {
			actions = append(actions, fmt.Sprintf("invoice acknowledgment send failed: %v", send.Err))
		}
	} else {
		actions = append(actions, fmt.Sprintf("automation blocked: %s", dec.Reason))
	}

	actions = append(actions, "routed to finance")
	return Result{Actions: actions, EmailSent: sent}, nil
}

// handleUnknown records the classifier's reasoning for the human
// reviewer and never sends mail.
func (e *Executor) handleUnknown(_ context.Context, analysis *models.Analysis) (Result, error) {
	reasoning := analysis.Reasoning
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	return Result{Actions: []string{
		"queued for manual review",
		fmt.Sprintf("classifier reasoning: %s", reasoning),
	}}, nil
}
