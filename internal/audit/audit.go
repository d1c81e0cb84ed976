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

// Package audit records notable system actions to the append-only audit
// trail. Logging is best-effort: a storage failure is reported via slog
// and swallowed, so the audit path can never become a new source of
// cascading failure.
package audit

import (
	"context"

	"log/slog"

	"github.com/crestline/triage/internal/models"
)

// Sink is the slice of the record store the logger needs.
type Sink interface {
	InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error
}

// Logger appends audit entries. Safe for concurrent use.
type Logger struct {
	sink Sink
}

// NewLogger creates an audit logger writing to the given sink.
func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink}
}

// Entry is the caller-facing shape of one audit record.
type Entry struct {
	Action      models.AuditAction
	EmailID     string
	Description string
	Success     bool
	Metadata    map[string]any
	ErrorDetail string
}

// Log appends an audit entry. It never returns an error: any storage
// failure is logged to slog and dropped.
func (l *Logger) Log(ctx context.Context, e Entry) {
	rec := &models.AuditEntry{
		Action:      e.Action,
		EmailID:     e.EmailID,
		Description: e.Description,
		Success:     e.Success,
		Metadata:    e.Metadata,
		ErrorDetail: e.ErrorDetail,
	}

	if err := l.sink.InsertAuditEntry(ctx, rec); err != nil {
		slog.Error("audit log write failed",
			"action", e.Action,
			"email_id", e.EmailID,
			"error", err,
		)
		return
	}

	slog.Debug("audit entry recorded",
		"action", e.Action,
		"email_id", e.EmailID,
		"success", e.Success,
	)
}

// Failure is a convenience for recording an unsuccessful action with an
// error detail.
func (l *Logger) Failure(ctx context.Context, action models.AuditAction, emailID, description string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	l.Log(ctx, Entry{
		Action:      action,
		EmailID:     emailID,
		Description: description,
		Success:     false,
		ErrorDetail: detail,
	})
}
