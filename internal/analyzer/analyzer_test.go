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

package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/retry"
)

// fakeCompleter returns scripted responses in order. A nil entry means
// an error for that call.
type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

// fakeStore captures inserted analyses.
type fakeStore struct {
	analyses  []*models.Analysis
	insertErr error
}

func (f *fakeStore) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.analyses = append(f.analyses, a)
	return nil
}

// memSink records audit entries in memory.
type memSink struct {
	entries []*models.AuditEntry
}

func (m *memSink) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memSink) byAction(action models.AuditAction) []*models.AuditEntry {
	var out []*models.AuditEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// fastPolicy retries without waiting so tests run instantly.
func fastPolicy(maxRetries int) retry.Policy {
	return retry.Policy{MaxRetries: maxRetries, InitialInterval: 0, Multiplier: 2.0}
}

func newTestAnalyzer(completer *fakeCompleter, store *fakeStore, sink *memSink, maxRetries int) *Analyzer {
	return New(completer, store, audit.NewLogger(sink), fastPolicy(maxRetries))
}

// TestAnalyze_Success verifies a clean classifier response is parsed,
// persisted once, and audited.
func TestAnalyze_Success(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": 0.9,
		  "project_type": "tower", "deadline": "2026-01-01", "reasoning": "explicit RFQ"}`,
	}}
	store := &fakeStore{}
	sink := &memSink{}
	a := newTestAnalyzer(completer, store, sink, 2)

	analysis, err := a.Analyze(context.Background(), "email-1", "RFQ: tower", "need quote")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.EmailType != models.TypeRFQ {
		t.Errorf("EmailType = %q, want %q", analysis.EmailType, models.TypeRFQ)
	}
	if analysis.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", analysis.Confidence)
	}
	if analysis.Extracted.ProjectType == nil || *analysis.Extracted.ProjectType != "tower" {
		t.Errorf("ProjectType = %v, want tower", analysis.Extracted.ProjectType)
	}
	if analysis.Extracted.Deadline == nil || *analysis.Extracted.Deadline != "2026-01-01" {
		t.Errorf("Deadline = %v, want 2026-01-01", analysis.Extracted.Deadline)
	}

	if len(store.analyses) != 1 {
		t.Fatalf("persisted %d analyses, want 1", len(store.analyses))
	}
	if got := sink.byAction(models.AuditEmailAnalyzed); len(got) != 1 {
		t.Errorf("email_analyzed audit entries = %d, want 1", len(got))
	}
	if got := sink.byAction(models.AuditAnalysisFailure); len(got) != 0 {
		t.Errorf("ai_analysis_failure audit entries = %d, want 0", len(got))
	}
}

// TestAnalyze_RetriesThenSucceeds verifies transient classifier errors
// are retried within the budget.
func TestAnalyze_RetriesThenSucceeds(t *testing.T) {
	completer := &fakeCompleter{
		errs: []error{errors.New("timeout"), errors.New("timeout"), nil},
		responses: []string{"", "",
			`{"email_type": "Invoice/Billing", "urgency": "Low", "confidence": 0.8, "reasoning": "invoice attached"}`,
		},
	}
	store := &fakeStore{}
	sink := &memSink{}
	a := newTestAnalyzer(completer, store, sink, 2)

	analysis, err := a.Analyze(context.Background(), "email-1", "Invoice #42", "please pay")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if completer.calls != 3 {
		t.Errorf("classifier calls = %d, want 3", completer.calls)
	}
	if analysis.EmailType != models.TypeInvoice {
		t.Errorf("EmailType = %q, want %q", analysis.EmailType, models.TypeInvoice)
	}
}

// TestAnalyze_TotalFailureFallsBack verifies total classifier failure
// produces the safe fallback classification and a distinct audit entry.
func TestAnalyze_TotalFailureFallsBack(t *testing.T) {
	completer := &fakeCompleter{
		errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
	}
	store := &fakeStore{}
	sink := &memSink{}
	a := newTestAnalyzer(completer, store, sink, 2)

	analysis, err := a.Analyze(context.Background(), "email-1", "RFQ: tower", "need quote")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if completer.calls != 3 {
		t.Errorf("classifier calls = %d, want 3 (full budget)", completer.calls)
	}
	if analysis.EmailType != models.TypeUnknown {
		t.Errorf("EmailType = %q, want %q", analysis.EmailType, models.TypeUnknown)
	}
	if analysis.Confidence != 0 {
		t.Errorf("Confidence = %v, want fallback 0", analysis.Confidence)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("persisted %d analyses, want 1", len(store.analyses))
	}
	if got := sink.byAction(models.AuditAnalysisFailure); len(got) != 1 {
		t.Errorf("ai_analysis_failure audit entries = %d, want 1", len(got))
	}
}

// TestAnalyze_PersistFailure verifies a store error propagates so the
// caller can force manual review.
func TestAnalyze_PersistFailure(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": 0.9, "reasoning": "rfq"}`,
	}}
	store := &fakeStore{insertErr: errors.New("connection refused")}
	sink := &memSink{}
	a := newTestAnalyzer(completer, store, sink, 0)

	if _, err := a.Analyze(context.Background(), "email-1", "s", "b"); err == nil {
		t.Fatal("expected error when persistence fails")
	}
}

// TestParseResponse covers degradation, coercion, and clamping.
func TestParseResponse(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantType       models.EmailType
		wantUrgency    models.Urgency
		wantConfidence float64
	}{
		{
			name:           "clean object",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": 0.9, "reasoning": "rfq"}`,
			wantType:       models.TypeRFQ,
			wantUrgency:    models.UrgencyHigh,
			wantConfidence: 0.9,
		},
		{
			name:           "object embedded in prose",
			raw:            "Sure! Here is the classification:\n```json\n{\"email_type\": \"Invoice/Billing\", \"urgency\": \"Low\", \"confidence\": 0.8}\n```",
			wantType:       models.TypeInvoice,
			wantUrgency:    models.UrgencyLow,
			wantConfidence: 0.8,
		},
		{
			name:           "braces inside string literals",
			raw:            `{"email_type": "Urgent Site Issue", "urgency": "High", "confidence": 0.95, "reasoning": "mentions {collapse} risk"}`,
			wantType:       models.TypeUrgent,
			wantUrgency:    models.UrgencyHigh,
			wantConfidence: 0.95,
		},
		{
			name:           "confidence above one is clamped",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": 1.7}`,
			wantType:       models.TypeRFQ,
			wantUrgency:    models.UrgencyHigh,
			wantConfidence: 1.0,
		},
		{
			name:           "negative confidence is clamped",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": -0.3}`,
			wantType:       models.TypeRFQ,
			wantUrgency:    models.UrgencyHigh,
			wantConfidence: 0.0,
		},
		{
			name:           "out-of-enum type forces unknown with zero confidence",
			raw:            `{"email_type": "Newsletter", "urgency": "Low", "confidence": 0.99, "reasoning": "promotional"}`,
			wantType:       models.TypeUnknown,
			wantUrgency:    models.UrgencyLow,
			wantConfidence: 0,
		},
		{
			name:           "out-of-enum urgency coerced to medium",
			raw:            `{"email_type": "Invoice/Billing", "urgency": "Extreme", "confidence": 0.8}`,
			wantType:       models.TypeInvoice,
			wantUrgency:    models.UrgencyMedium,
			wantConfidence: 0.8,
		},
		{
			name:           "no JSON object degrades",
			raw:            "I could not classify this email.",
			wantType:       models.TypeUnknown,
			wantUrgency:    models.UrgencyMedium,
			wantConfidence: 0,
		},
		{
			name:           "missing required field degrades",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High"}`,
			wantType:       models.TypeUnknown,
			wantUrgency:    models.UrgencyMedium,
			wantConfidence: 0,
		},
		{
			name:           "mistyped confidence degrades",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": "high"}`,
			wantType:       models.TypeUnknown,
			wantUrgency:    models.UrgencyMedium,
			wantConfidence: 0,
		},
		{
			name:           "unbalanced object degrades",
			raw:            `{"email_type": "RFQ/Bid Request", "urgency": "High", "confidence": 0.9`,
			wantType:       models.TypeUnknown,
			wantUrgency:    models.UrgencyMedium,
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := parseResponse("email-1", tt.raw)
			if a.EmailType != tt.wantType {
				t.Errorf("EmailType = %q, want %q", a.EmailType, tt.wantType)
			}
			if a.Urgency != tt.wantUrgency {
				t.Errorf("Urgency = %q, want %q", a.Urgency, tt.wantUrgency)
			}
			if a.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", a.Confidence, tt.wantConfidence)
			}
			if a.Reasoning == "" && tt.wantConfidence == 0 && tt.wantType == models.TypeUnknown {
				t.Error("degraded result should carry an explanation in Reasoning")
			}
		})
	}
}

// TestExtractObject verifies the balanced-object scanner.
func TestExtractObject(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"prefix and suffix", `text {"a": 1} more`, `{"a": 1}`, true},
		{"nested objects", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{"brace in string", `{"a": "}"}`, `{"a": "}"}`, true},
		{"escaped quote in string", `{"a": "\"}"}`, `{"a": "\"}"}`, true},
		{"first of two objects", `{"a": 1} {"b": 2}`, `{"a": 1}`, true},
		{"no object", "plain text", "", false},
		{"unbalanced", `{"a": 1`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractObject(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("extractObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestBuildPrompt verifies the prompt carries the email content and the
// enumerations the parser expects.
func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("RFQ: tower", "need quote")

	for _, want := range []string{
		"RFQ: tower", "need quote",
		"RFQ/Bid Request", "Urgent Site Issue", "Invoice/Billing", "Unknown/Unclear",
		"confidence",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
