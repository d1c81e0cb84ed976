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

// Package decision implements the rule table that gates automation.
// Decide is pure and total: no I/O, same inputs always produce the same
// decision. All side effects (status writes, audit entries, workflow
// dispatch) belong to the caller.
package decision

import "github.com/crestline/triage/internal/models"

// DefaultConfidenceThreshold is the minimum confidence for automation.
const DefaultConfidenceThreshold = 0.7

// Engine evaluates the ordered automation rules.
type Engine struct {
	threshold float64
}

// NewEngine creates a decision engine. A non-positive threshold falls
// back to the default.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Engine{threshold: threshold}
}

// Decide maps (email type, confidence) to a decision. Rules are
// evaluated in order; first match wins:
//
//  1. Urgent site issues always escalate, regardless of confidence.
//  2. Low confidence always goes to manual review.
//  3. Unclassifiable emails go to manual review.
//  4. High-confidence RFQs may be auto-acknowledged.
//  5. High-confidence invoices may be auto-acknowledged.
//  6. Anything else goes to manual review.
func (e *Engine) Decide(emailType models.EmailType, confidence float64) models.Decision {
	if emailType == models.TypeUrgent {
		return models.Decision{
			Allowed: false,
			Status:  models.StatusEscalated,
			Reason:  "urgent site issue requires immediate human attention",
		}
	}

	if confidence < e.threshold {
		return models.Decision{
			Allowed: false,
			Status:  models.StatusManualReview,
			Reason:  "classification confidence below threshold",
		}
	}

	switch emailType {
	case models.TypeUnknown:
		return models.Decision{
			Allowed: false,
			Status:  models.StatusManualReview,
			Reason:  "classifier could not determine email type",
		}
	case models.TypeRFQ:
		return models.Decision{
			Allowed: true,
			Status:  models.StatusPendingReview,
			Reason:  "high-confidence RFQ",
		}
	case models.TypeInvoice:
		return models.Decision{
			Allowed: true,
			Status:  models.StatusFinanceReview,
			Reason:  "high-confidence invoice",
		}
	}

	return models.Decision{
		Allowed: false,
		Status:  models.StatusManualReview,
		Reason:  "unrecognized email type",
	}
}
