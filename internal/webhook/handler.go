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

// Package webhook handles inbound email payloads POSTed by the mail
// provider. The handler validates and stores the email, responds
// immediately, and hands the heavy work (classification, decision,
// workflow) to the pipeline so the caller never waits on it.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/dedup"
	"github.com/crestline/triage/internal/metrics"
	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/validate"
)

// Store is the slice of the record store the handler needs.
type Store interface {
	InsertEmail(ctx context.Context, email *models.Email) (string, error)
}

// Dispatcher receives accepted emails for background processing.
type Dispatcher interface {
	Submit(ctx context.Context, email *models.Email)
}

// Handler processes inbound email webhook requests.
type Handler struct {
	store      Store
	filter     *dedup.Filter // nil disables deduplication
	dispatcher Dispatcher
	auditor    *audit.Logger
}

// NewHandler creates an inbound email handler.
func NewHandler(store Store, filter *dedup.Filter, dispatcher Dispatcher, auditor *audit.Logger) *Handler {
	return &Handler{
		store:      store,
		filter:     filter,
		dispatcher: dispatcher,
		auditor:    auditor,
	}
}

// inboundResponse is the synchronous webhook reply. Downstream outcomes
// are observable only via the stored email status and the audit trail.
type inboundResponse struct {
	Success   bool     `json:"success"`
	EmailID   string   `json:"email_id,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Error     string   `json:"error,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// ServeInbound handles POST /inbound.
//
//   - 200 with {success, email_id} after validation and durable storage
//   - 400 with the full violation list on a malformed payload
//   - 500 on storage failure
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, inboundResponse{Error: "method not allowed"})
		return
	}

	var payload validate.InboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, inboundResponse{
			Errors: []string{"request body must be a JSON object"},
		})
		return
	}

	if result := validate.Payload(&payload); !result.Valid {
		slog.Info("inbound payload rejected", "errors", result.Errors)
		writeJSON(w, http.StatusBadRequest, inboundResponse{Errors: result.Errors})
		return
	}

	email := &models.Email{
		FromEmail:      validate.Sanitize(payload.FromEmail),
		Subject:        validate.Sanitize(payload.Subject),
		Body:           validate.Sanitize(payload.Body),
		HasAttachments: payload.HasAttachments,
		Attachments:    payload.AttachmentInfo,
		Status:         models.StatusReceived,
	}

	ctx := r.Context()

	if h.filter != nil {
		key := dedup.Key(email.FromEmail, email.Subject, email.Body)
		isNew, err := h.filter.IsNew(ctx, key)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Info("duplicate webhook delivery filtered", "from", email.FromEmail)
			metrics.EmailsDeduplicated.Inc()
			writeJSON(w, http.StatusOK, inboundResponse{Success: true, Duplicate: true})
			return
		}
	}

	id, err := h.store.InsertEmail(ctx, email)
	if err != nil {
		slog.Error("failed to store inbound email", "from", email.FromEmail, "error", err)
		writeJSON(w, http.StatusInternalServerError, inboundResponse{Error: "internal error"})
		return
	}
	email.ID = id
	metrics.EmailsReceived.Inc()

	h.auditor.Log(ctx, audit.Entry{
		Action:      models.AuditEmailReceived,
		EmailID:     id,
		Description: "inbound email stored",
		Success:     true,
		Metadata: map[string]any{
			"from":            email.FromEmail,
			"subject":         email.Subject,
			"has_attachments": email.HasAttachments,
		},
	})

	slog.Info("inbound email accepted", "email_id", id, "from", email.FromEmail)

	// Respond before classification begins; the continuation is
	// detached from the request lifecycle.
	writeJSON(w, http.StatusOK, inboundResponse{Success: true, EmailID: id})

	h.dispatcher.Submit(context.WithoutCancel(ctx), email)
}

func writeJSON(w http.ResponseWriter, status int, body inboundResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write webhook response", "error", err)
	}
}
