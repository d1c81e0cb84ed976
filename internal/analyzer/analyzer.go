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

// Package analyzer orchestrates a classification run: prompt the
// classifier under a bounded retry, repair whatever comes back into a
// valid Analysis, persist it exactly once, and report how it went to
// the audit trail. Total classifier failure degrades to a safe fallback
// classification instead of propagating, so every email reaches the
// decision engine.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/classifier"
	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/retry"
)

// fallbackConfidence is used when the classifier never responded. Zero
// confidence guarantees the decision engine routes the email to manual
// review.
const fallbackConfidence = 0.0

// Store is the slice of the record store the analyzer needs.
type Store interface {
	InsertAnalysis(ctx context.Context, a *models.Analysis) error
}

// Analyzer runs classification for one email at a time.
type Analyzer struct {
	completer classifier.Completer
	store     Store
	auditor   *audit.Logger
	policy    retry.Policy
}

// New creates an analyzer. The retry policy bounds classifier calls
// only; the hard per-call timeout lives inside the completer.
func New(completer classifier.Completer, store Store, auditor *audit.Logger, policy retry.Policy) *Analyzer {
	return &Analyzer{
		completer: completer,
		store:     store,
		auditor:   auditor,
		policy:    policy,
	}
}

// Analyze classifies the email and persists the resulting Analysis.
// The returned Analysis is always usable by the decision engine; the
// error is non-nil only when persistence itself failed.
func (a *Analyzer) Analyze(ctx context.Context, emailID, subject, body string) (*models.Analysis, error) {
	prompt := buildPrompt(subject, body)

	var raw string
	err := retry.Do(ctx, a.policy, func(ctx context.Context) error {
		var callErr error
		raw, callErr = a.completer.Complete(ctx, prompt)
		return callErr
	})

	var analysis *models.Analysis
	if err != nil {
		// Total classifier failure. Substitute a safe fallback so the
		// email still reaches a terminal status.
		slog.Error("classification failed after retries", "email_id", emailID, "error", err)
		analysis = &models.Analysis{
			EmailID:    emailID,
			EmailType:  models.TypeUnknown,
			Urgency:    models.UrgencyMedium,
			Confidence: fallbackConfidence,
			Reasoning:  fmt.Sprintf("classifier unavailable: %v", err),
		}
		a.auditor.Log(ctx, audit.Entry{
			Action:      models.AuditAnalysisFailure,
			EmailID:     emailID,
			Description: "classifier failed on every attempt, fallback classification substituted",
			Success:     false,
			ErrorDetail: err.Error(),
		})
	} else {
		analysis = parseResponse(emailID, raw)
		a.auditor.Log(ctx, audit.Entry{
			Action:      models.AuditEmailAnalyzed,
			EmailID:     emailID,
			Description: "email classified",
			Success:     true,
			Metadata: map[string]any{
				"email_type": string(analysis.EmailType),
				"urgency":    string(analysis.Urgency),
				"confidence": analysis.Confidence,
			},
		})
	}

	if err := a.store.InsertAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis for email %s: %w", emailID, err)
	}

	slog.Info("analysis stored",
		"email_id", emailID,
		"email_type", analysis.EmailType,
		"confidence", analysis.Confidence,
	)
	return analysis, nil
}

// buildPrompt produces the fixed classification instruction for one email.
func buildPrompt(subject, body string) string {
	return fmt.Sprintf(`Classify the following email for a construction company.

Respond with exactly one JSON object, no prose, using this shape:
{
  "email_type": one of "RFQ/Bid Request", "Urgent Site Issue", "Invoice/Billing", "Unknown/Unclear",
  "urgency": one of "Low", "Medium", "High",
  "confidence": number between 0 and 1,
  "project_type": optional string,
  "location": optional string,
  "estimated_value": optional string,
  "deadline": optional string,
  "reasoning": short explanation
}

Subject: %s

Body:
%s`, subject, body)
}

// rawClassification mirrors the JSON object the classifier is asked to
// return. Pointer fields distinguish absent from mistyped.
type rawClassification struct {
	EmailType      *string  `json:"email_type"`
	Urgency        *string  `json:"urgency"`
	Confidence     *float64 `json:"confidence"`
	ProjectType    *string  `json:"project_type"`
	Location       *string  `json:"location"`
	EstimatedValue *string  `json:"estimated_value"`
	Deadline       *string  `json:"deadline"`
	Reasoning      string   `json:"reasoning"`
}

// parseResponse turns raw classifier output into a valid Analysis. Any
// output that cannot be parsed or is missing required fields produces a
// degraded result (Unknown/Unclear, confidence 0) rather than an error.
func parseResponse(emailID, raw string) *models.Analysis {
	degraded := func(reason string) *models.Analysis {
		return &models.Analysis{
			EmailID:    emailID,
			EmailType:  models.TypeUnknown,
			Urgency:    models.UrgencyMedium,
			Confidence: 0,
			Reasoning:  reason,
		}
	}

	obj, ok := extractObject(raw)
	if !ok {
		return degraded("classifier response contained no JSON object")
	}

	var rc rawClassification
	if err := json.Unmarshal([]byte(obj), &rc); err != nil {
		return degraded(fmt.Sprintf("classifier response was not valid JSON: %v", err))
	}

	if rc.EmailType == nil || rc.Urgency == nil || rc.Confidence == nil {
		return degraded("classifier response missing required fields (email_type, urgency, confidence)")
	}

	analysis := &models.Analysis{
		EmailID:    emailID,
		EmailType:  models.EmailType(*rc.EmailType),
		Urgency:    models.Urgency(*rc.Urgency),
		Confidence: clamp(*rc.Confidence),
		Reasoning:  rc.Reasoning,
		Extracted: models.ExtractedFields{
			ProjectType:    rc.ProjectType,
			Location:       rc.Location,
			EstimatedValue: rc.EstimatedValue,
			Deadline:       rc.Deadline,
		},
	}

	// Out-of-enum type means the response can't be trusted at all.
	if !models.ValidEmailType(analysis.EmailType) {
		analysis.EmailType = models.TypeUnknown
		analysis.Confidence = 0
	}
	if !models.ValidUrgency(analysis.Urgency) {
		analysis.Urgency = models.UrgencyMedium
	}

	return analysis
}

// extractObject returns the first balanced JSON object substring of s.
// String literals are respected so braces inside reasoning text don't
// unbalance the scan.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// clamp forces a confidence score into [0,1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
