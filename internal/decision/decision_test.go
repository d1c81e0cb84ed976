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

package decision

import (
	"testing"

	"github.com/crestline/triage/internal/models"
)

// TestDecide_UrgentAlwaysEscalates verifies urgent site issues escalate
// for every confidence value, including 1.0.
func TestDecide_UrgentAlwaysEscalates(t *testing.T) {
	e := NewEngine(0.7)

	for _, confidence := range []float64{0, 0.1, 0.5, 0.69, 0.7, 0.95, 0.99, 1.0} {
		dec := e.Decide(models.TypeUrgent, confidence)
		if dec.Allowed {
			t.Errorf("Decide(urgent, %v).Allowed = true, want false", confidence)
		}
		if dec.Status != models.StatusEscalated {
			t.Errorf("Decide(urgent, %v).Status = %q, want %q", confidence, dec.Status, models.StatusEscalated)
		}
	}
}

// TestDecide_LowConfidence verifies sub-threshold confidence always
// yields manual review for every non-urgent type.
func TestDecide_LowConfidence(t *testing.T) {
	e := NewEngine(0.7)

	types := []models.EmailType{models.TypeRFQ, models.TypeInvoice, models.TypeUnknown}
	for _, emailType := range types {
		for _, confidence := range []float64{0, 0.3, 0.69} {
			dec := e.Decide(emailType, confidence)
			if dec.Allowed {
				t.Errorf("Decide(%q, %v).Allowed = true, want false", emailType, confidence)
			}
			if dec.Status != models.StatusManualReview {
				t.Errorf("Decide(%q, %v).Status = %q, want %q", emailType, confidence, dec.Status, models.StatusManualReview)
			}
		}
	}
}

// TestDecide_RuleTable verifies the full ordered rule table.
func TestDecide_RuleTable(t *testing.T) {
	e := NewEngine(0.7)

	tests := []struct {
		name        string
		emailType   models.EmailType
		confidence  float64
		wantAllowed bool
		wantStatus  models.Status
	}{
		{"high-confidence RFQ", models.TypeRFQ, 0.95, true, models.StatusPendingReview},
		{"RFQ at threshold", models.TypeRFQ, 0.7, true, models.StatusPendingReview},
		{"high-confidence invoice", models.TypeInvoice, 0.95, true, models.StatusFinanceReview},
		{"high-confidence unknown", models.TypeUnknown, 0.9, false, models.StatusManualReview},
		{"urgent overrides confidence", models.TypeUrgent, 0.99, false, models.StatusEscalated},
		{"unrecognized type", models.EmailType("Spam"), 0.95, false, models.StatusManualReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := e.Decide(tt.emailType, tt.confidence)
			if dec.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", dec.Allowed, tt.wantAllowed)
			}
			if dec.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", dec.Status, tt.wantStatus)
			}
			if dec.Reason == "" {
				t.Error("Reason is empty")
			}
		})
	}
}

// TestDecide_Deterministic verifies identical inputs always produce
// identical decisions.
func TestDecide_Deterministic(t *testing.T) {
	e := NewEngine(0.7)

	first := e.Decide(models.TypeRFQ, 0.85)
	for i := 0; i < 100; i++ {
		if got := e.Decide(models.TypeRFQ, 0.85); got != first {
			t.Fatalf("decision changed between calls: %+v vs %+v", first, got)
		}
	}
}

// TestNewEngine_DefaultThreshold verifies a non-positive threshold
// falls back to the default.
func TestNewEngine_DefaultThreshold(t *testing.T) {
	e := NewEngine(0)

	// 0.69 is below the 0.7 default
	if dec := e.Decide(models.TypeRFQ, 0.69); dec.Status != models.StatusManualReview {
		t.Errorf("Status = %q, want %q", dec.Status, models.StatusManualReview)
	}
	if dec := e.Decide(models.TypeRFQ, 0.71); dec.Status != models.StatusPendingReview {
		t.Errorf("Status = %q, want %q", dec.Status, models.StatusPendingReview)
	}
}
