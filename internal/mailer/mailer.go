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

// Package mailer sends templated acknowledgment emails with a bounded
// retry budget. The SMTP transport is injectable so tests can script
// delivery failures.
package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/crestline/triage/internal/audit"
	"github.com/crestline/triage/internal/models"
	"github.com/crestline/triage/internal/retry"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a message and returns the transport's message
// identifier, or a transport error.
type Transport interface {
	SendMail(ctx context.Context, msg *Message) (messageID string, err error)
}

// Result summarises a send, including how many attempts it took.
type Result struct {
	Success   bool
	Attempts  int
	MessageID string
	Err       error
}

// Sender wraps a transport with retry and audit logging.
type Sender struct {
	transport Transport
	auditor   *audit.Logger
	policy    retry.Policy
}

// NewSender creates a mail sender. The default policy allows 2 retries
// (3 total attempts) with delays doubling from one second.
func NewSender(transport Transport, auditor *audit.Logger, policy retry.Policy) *Sender {
	return &Sender{
		transport: transport,
		auditor:   auditor,
		policy:    policy,
	}
}

// Send attempts delivery, retrying transient failures up to the policy
// budget with increasing delay. The attempt loop is explicit rather
// than delegated to retry.Do so the result carries an exact attempt
// count.
func (s *Sender) Send(ctx context.Context, emailID string, msg *Message) Result {
	attempts := s.policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				return s.fail(ctx, emailID, msg, attempt-1, lastErr)
			case <-time.After(s.policy.Delay(attempt - 1)):
			}
		}

		messageID, err := s.transport.SendMail(ctx, msg)
		if err == nil {
			slog.Info("acknowledgment sent",
				"email_id", emailID,
				"to", msg.To,
				"message_id", messageID,
				"attempt", attempt,
			)
			s.auditor.Log(ctx, audit.Entry{
				Action:      models.AuditEmailSent,
				EmailID:     emailID,
				Description: "acknowledgment email delivered",
				Success:     true,
				Metadata: map[string]any{
					"to":         msg.To,
					"subject":    msg.Subject,
					"message_id": messageID,
					"attempt":    attempt,
				},
			})
			return Result{Success: true, Attempts: attempt, MessageID: messageID}
		}

		lastErr = err
		slog.Warn("acknowledgment send attempt failed",
			"email_id", emailID,
			"to", msg.To,
			"attempt", attempt,
			"error", err,
		)
	}

	return s.fail(ctx, emailID, msg, attempts, lastErr)
}

func (s *Sender) fail(ctx context.Context, emailID string, msg *Message, attempts int, err error) Result {
	s.auditor.Log(ctx, audit.Entry{
		Action:      models.AuditEmailSendFailed,
		EmailID:     emailID,
		Description: "acknowledgment email could not be delivered",
		Success:     false,
		Metadata: map[string]any{
			"to":       msg.To,
			"subject":  msg.Subject,
			"attempts": attempts,
		},
		ErrorDetail: err.Error(),
	})
	return Result{Success: false, Attempts: attempts, Err: err}
}
