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

// Package models defines the data structures shared across the triage service.
package models

import "time"

// Status is the processing status of an email. Every email starts as
// StatusReceived and ends in one of the four terminal statuses set by
// the decision engine.
type Status string

const (
	StatusReceived      Status = "received"
	StatusPendingReview Status = "pending_review"
	StatusFinanceReview Status = "finance_review"
	StatusEscalated     Status = "escalated"
	StatusManualReview  Status = "manual_review"
)

// ValidStatus reports whether s is a member of the status enumeration.
func ValidStatus(s Status) bool {
	switch s {
	case StatusReceived, StatusPendingReview, StatusFinanceReview,
		StatusEscalated, StatusManualReview:
		return true
	}
	return false
}

// Priority is the handling priority assigned by a workflow handler.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// EmailType is the classifier's category for an inbound email.
type EmailType string

const (
	TypeRFQ     EmailType = "RFQ/Bid Request"
	TypeUrgent  EmailType = "Urgent Site Issue"
	TypeInvoice EmailType = "Invoice/Billing"
	TypeUnknown EmailType = "Unknown/Unclear"
)

// ValidEmailType reports whether t is a member of the type enumeration.
func ValidEmailType(t EmailType) bool {
	switch t {
	case TypeRFQ, TypeUrgent, TypeInvoice, TypeUnknown:
		return true
	}
	return false
}

// Urgency is the classifier's urgency level.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// ValidUrgency reports whether u is a member of the urgency enumeration.
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// Attachment describes a file attached to an inbound email. Only metadata
// is stored; attachment content never enters the pipeline.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Email is one inbound message. Created once by the ingestion path;
// status and priority are mutated only by the decision engine and the
// workflow executor.
type Email struct {
	ID             string
	FromEmail      string
	Subject        string
	Body           string
	HasAttachments bool
	Attachments    []Attachment
	Status         Status
	Priority       *Priority
	ReceivedAt     time.Time
	UpdatedAt      time.Time
}

// ExtractedFields holds the optional structured fields the classifier
// pulls out of the email body. Absent fields are nil.
type ExtractedFields struct {
	ProjectType    *string `json:"project_type,omitempty"`
	Location       *string `json:"location,omitempty"`
	EstimatedValue *string `json:"estimated_value,omitempty"`
	Deadline       *string `json:"deadline,omitempty"`
}

// Analysis is the classifier's verdict for one email. At most one per
// email; immutable once written.
type Analysis struct {
	EmailID    string
	EmailType  EmailType
	Urgency    Urgency
	Confidence float64
	Extracted  ExtractedFields
	Reasoning  string
	AnalyzedAt time.Time
}

// Decision is the rule engine's output for a classified email. It is
// ephemeral; only the resulting status is persisted, on the email row.
type Decision struct {
	Allowed bool
	Status  Status
	Reason  string
}

// WorkflowExecution records one completed workflow run for an email.
// Append-only.
type WorkflowExecution struct {
	ID             string
	EmailID        string
	WorkflowType   EmailType
	AutomationUsed bool
	Actions        []string
	Success        bool
	ExecutedAt     time.Time
}

// AuditAction enumerates the notable system actions recorded in the
// audit trail.
type AuditAction string

const (
	AuditEmailReceived         AuditAction = "email_received"
	AuditEmailAnalyzed         AuditAction = "email_analyzed"
	AuditAnalysisFailure       AuditAction = "ai_analysis_failure"
	AuditAutomationBlocked     AuditAction = "automation_blocked"
	AuditManualReviewTriggered AuditAction = "manual_review_triggered"
	AuditWorkflowExecuted      AuditAction = "workflow_executed"
	AuditEmailSent             AuditAction = "email_sent"
	AuditEmailSendFailed       AuditAction = "email_send_failed"
	AuditSystemError           AuditAction = "system_error"
)

// AuditEntry is one append-only audit row. Never updated or deleted;
// the system's only durable trace of failures.
type AuditEntry struct {
	ID          string
	Action      AuditAction
	EmailID     string // empty when not tied to a specific email
	Description string
	Success     bool
	Metadata    map[string]any
	ErrorDetail string
	CreatedAt   time.Time
}
