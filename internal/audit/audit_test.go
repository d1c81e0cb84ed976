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

package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/crestline/triage/internal/models"
)

type memSink struct {
	entries []*models.AuditEntry
	err     error
}

func (m *memSink) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

// TestLog_Records verifies the entry fields reach the sink.
func TestLog_Records(t *testing.T) {
	sink := &memSink{}
	l := NewLogger(sink)

	l.Log(context.Background(), Entry{
		Action:      models.AuditEmailReceived,
		EmailID:     "email-1",
		Description: "inbound email stored",
		Success:     true,
		Metadata:    map[string]any{"from": "client@example.com"},
	})

	if len(sink.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Action != models.AuditEmailReceived {
		t.Errorf("Action = %q, want %q", e.Action, models.AuditEmailReceived)
	}
	if e.EmailID != "email-1" {
		t.Errorf("EmailID = %q, want email-1", e.EmailID)
	}
	if e.Metadata["from"] != "client@example.com" {
		t.Errorf("Metadata = %v, want from field", e.Metadata)
	}
}

// TestLog_SinkFailureIsSwallowed verifies a failing sink never
// propagates out of the logging path.
func TestLog_SinkFailureIsSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("connection refused")}
	l := NewLogger(sink)

	// Must return normally; Log has no error to return and must not panic.
	l.Log(context.Background(), Entry{
		Action:  models.AuditSystemError,
		EmailID: "email-1",
	})
	l.Failure(context.Background(), models.AuditSystemError, "email-1", "desc", errors.New("cause"))
}

// TestFailure_CarriesErrorDetail verifies Failure fills the detail from
// the cause.
func TestFailure_CarriesErrorDetail(t *testing.T) {
	sink := &memSink{}
	l := NewLogger(sink)

	l.Failure(context.Background(), models.AuditSystemError, "email-1", "pipeline failed", errors.New("boom"))

	if len(sink.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Success {
		t.Error("Success = true, want false")
	}
	if e.ErrorDetail != "boom" {
		t.Errorf("ErrorDetail = %q, want boom", e.ErrorDetail)
	}
}
