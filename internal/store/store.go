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

// Package store provides the Postgres-backed record store for emails,
// analyses, workflow executions, and audit entries. Writes are wrapped
// in a bounded retry so a transient connection blip does not lose a
// pipeline step.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/retry"
)

// Store is the record store contract consumed by the pipeline. The
// Postgres implementation is the only production one; tests substitute
// in-memory fakes.
type Store interface {
	InsertEmail(ctx context.Context, email *models.Email) (string, error)
	InsertAnalysis(ctx context.Context, a *models.Analysis) error
	InsertWorkflow(ctx context.Context, w *models.WorkflowExecution) (string, error)
	InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error
	UpdateEmailStatus(ctx context.Context, id string, status models.Status) error
	UpdateEmailPriority(ctx context.Context, id string, priority models.Priority) error
	GetEmailByID(ctx context.Context, id string) (*models.Email, error)
	GetAnalysisByEmailID(ctx context.Context, emailID string) (*models.Analysis, error)
	ListStuckEmails(ctx context.Context, olderThan time.Duration) ([]models.Email, error)
}

// PG implements Store on a pgx connection pool.
type PG struct {
	pool   *pgxpool.Pool
	policy retry.Policy
}

// New creates a Postgres record store and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*PG, error) {
	s := &PG{pool: pool, policy: retry.DefaultPolicy()}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure triage schema: %w", err)
	}
	slog.Info("record store initialised")
	return s, nil
}

func (s *PG) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			id              UUID PRIMARY KEY,
			from_email      TEXT NOT NULL,
			subject         TEXT NOT NULL,
			body            TEXT NOT NULL,
			has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
			attachment_info JSONB NOT NULL DEFAULT '[]',
			status          TEXT NOT NULL DEFAULT 'received',
			priority        TEXT,
			received_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS email_analysis (
			email_id        UUID NOT NULL UNIQUE REFERENCES emails(id),
			email_type      TEXT NOT NULL,
			urgency         TEXT NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			extracted       JSONB NOT NULL DEFAULT '{}',
			reasoning       TEXT NOT NULL DEFAULT '',
			analyzed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS workflows (
			id              UUID PRIMARY KEY,
			email_id        UUID NOT NULL REFERENCES emails(id),
			workflow_type   TEXT NOT NULL,
			automation_used BOOLEAN NOT NULL,
			actions         JSONB NOT NULL DEFAULT '[]',
			success         BOOLEAN NOT NULL,
			executed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id              UUID PRIMARY KEY,
			action          TEXT NOT NULL,
			email_id        UUID REFERENCES emails(id),
			description     TEXT NOT NULL,
			success         BOOLEAN NOT NULL,
			metadata        JSONB,
			error_detail    TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status);
		CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at);
		CREATE INDEX IF NOT EXISTS idx_audit_email ON audit_logs(email_id);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_logs(action);
	`)
	return err
}

// exec runs a write under the store's retry policy.
func (s *PG) exec(ctx context.Context, sql string, args ...any) error {
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, sql, args...)
		return err
	})
}

// InsertEmail stores a new inbound email and returns its generated ID.
// Status defaults to received unless the caller set one.
func (s *PG) InsertEmail(ctx context.Context, email *models.Email) (string, error) {
	id := email.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := email.Status
	if status == "" {
		status = models.StatusReceived
	}

	attachments, err := json.Marshal(email.Attachments)
	if err != nil {
		return "", fmt.Errorf("marshal attachment info: %w", err)
	}
	if email.Attachments == nil {
		attachments = []byte("[]")
	}

	err = s.exec(ctx, `
		INSERT INTO emails (id, from_email, subject, body, has_attachments, attachment_info, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, email.FromEmail, email.Subject, email.Body, email.HasAttachments, attachments, status)
	if err != nil {
		return "", fmt.Errorf("insert email: %w", err)
	}
	return id, nil
}

// InsertAnalysis stores the classifier verdict for an email. The UNIQUE
// constraint on email_id enforces at most one analysis per email; a
// duplicate insert fails rather than overwriting.
func (s *PG) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	extracted, err := json.Marshal(a.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted fields: %w", err)
	}

	err = s.exec(ctx, `
		INSERT INTO email_analysis (email_id, email_type, urgency, confidence, extracted, reasoning)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.EmailID, a.EmailType, a.Urgency, a.Confidence, extracted, a.Reasoning)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// InsertWorkflow stores a completed workflow execution and returns its ID.
func (s *PG) InsertWorkflow(ctx context.Context, w *models.WorkflowExecution) (string, error) {
	id := w.ID
	if id == "" {
		id = uuid.New().String()
	}

	actions, err := json.Marshal(w.Actions)
	if err != nil {
		return "", fmt.Errorf("marshal workflow actions: %w", err)
	}
	if w.Actions == nil {
		actions = []byte("[]")
	}

	err = s.exec(ctx, `
		INSERT INTO workflows (id, email_id, workflow_type, automation_used, actions, success)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, w.EmailID, w.WorkflowType, w.AutomationUsed, actions, w.Success)
	if err != nil {
		return "", fmt.Errorf("insert workflow: %w", err)
	}
	return id, nil
}

// InsertAuditEntry appends an audit row.
func (s *PG) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}

	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	var emailID any
	if e.EmailID != "" {
		emailID = e.EmailID
	}

	var errDetail any
	if e.ErrorDetail != "" {
		errDetail = e.ErrorDetail
	}

	err := s.exec(ctx, `
		INSERT INTO audit_logs (id, action, email_id, description, success, metadata, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, e.Action, emailID, e.Description, e.Success, metadata, errDetail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// UpdateEmailStatus sets the email's status.
func (s *PG) UpdateEmailStatus(ctx context.Context, id string, status models.Status) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("invalid email status %q", status)
	}
	err := s.exec(ctx, `
		UPDATE emails SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	return nil
}

// UpdateEmailPriority sets the email's priority.
func (s *PG) UpdateEmailPriority(ctx context.Context, id string, priority models.Priority) error {
	err := s.exec(ctx, `
		UPDATE emails SET priority = $1, updated_at = NOW() WHERE id = $2
	`, priority, id)
	if err != nil {
		return fmt.Errorf("update email priority: %w", err)
	}
	return nil
}

// GetEmailByID retrieves a single email. Returns (nil, nil) when no row
// exists.
func (s *PG) GetEmailByID(ctx context.Context, id string) (*models.Email, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, from_email, subject, body, has_attachments, attachment_info,
		       status, priority, received_at, updated_at
		FROM emails
		WHERE id = $1
	`, id)
	return scanEmail(row)
}

// GetAnalysisByEmailID retrieves the analysis for an email. Returns
// (nil, nil) when the email has not been analyzed.
func (s *PG) GetAnalysisByEmailID(ctx context.Context, emailID string) (*models.Analysis, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT email_id, email_type, urgency, confidence, extracted, reasoning, analyzed_at
		FROM email_analysis
		WHERE email_id = $1
	`, emailID)

	var a models.Analysis
	var extracted []byte
	err := row.Scan(&a.EmailID, &a.EmailType, &a.Urgency, &a.Confidence, &extracted, &a.Reasoning, &a.AnalyzedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &a.Extracted); err != nil {
			return nil, fmt.Errorf("unmarshal extracted fields: %w", err)
		}
	}
	return &a, nil
}

// ListStuckEmails returns emails still in status received that were
// created longer ago than olderThan. Used by the reprocess tool to
// recover emails whose pipeline run was lost to a crash.
func (s *PG) ListStuckEmails(ctx context.Context, olderThan time.Duration) ([]models.Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_email, subject, body, has_attachments, attachment_info,
		       status, priority, received_at, updated_at
		FROM emails
		WHERE status = $1 AND received_at < NOW() - $2::interval
		ORDER BY received_at
	`, models.StatusReceived, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// scanEmail scans a single email row.
func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	var attachments []byte
	var priority *string
	err := row.Scan(
		&e.ID, &e.FromEmail, &e.Subject, &e.Body, &e.HasAttachments,
		&attachments, &e.Status, &priority, &e.ReceivedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if priority != nil {
		p := models.Priority(*priority)
		e.Priority = &p
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachment info: %w", err)
		}
	}
	return &e, nil
}
