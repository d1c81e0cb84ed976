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

// Package validate checks structural well-formedness of inbound webhook
// payloads and sanitizes text fields before they reach storage. All
// functions are pure; violations are collected, not short-circuited.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/crestline/triage/internal/models"
)

// emailPattern matches a standard local@domain.tld address shape.
// Deliberately simple: the goal is catching structurally broken input,
// not full RFC 5322 compliance.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// InboundPayload is the webhook request body.
type InboundPayload struct {
	FromEmail      string              `json:"from_email"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	HasAttachments bool                `json:"hasAttachments"`
	AttachmentInfo []models.Attachment `json:"attachmentInfo"`
}

// Result carries the outcome of a payload validation.
type Result struct {
	Valid  bool
	Errors []string
}

// Payload validates an inbound payload. Every violation appears in the
// returned error list; a nil payload yields a single error.
func Payload(p *InboundPayload) Result {
	if p == nil {
		return Result{Errors: []string{"payload is required"}}
	}

	var errs []string

	checkText := func(field, value string) string {
		if strings.TrimSpace(value) == "" {
			return fmt.Sprintf("%s is required and must be a non-empty string", field)
		}
		return ""
	}

	if msg := checkText("from_email", p.FromEmail); msg != "" {
		errs = append(errs, msg)
	} else if !emailPattern.MatchString(strings.TrimSpace(p.FromEmail)) {
		errs = append(errs, "from_email must be a valid email address")
	}

	if msg := checkText("subject", p.Subject); msg != "" {
		errs = append(errs, msg)
	}

	if msg := checkText("body", p.Body); msg != "" {
		errs = append(errs, msg)
	}

	for i, a := range p.AttachmentInfo {
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Sprintf("attachmentInfo[%d].name is required", i))
		}
		if a.Size < 0 {
			errs = append(errs, fmt.Sprintf("attachmentInfo[%d].size must not be negative", i))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Sanitize strips NUL and C0/C1 control characters from s and trims
// surrounding whitespace. Idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
// Tabs and newlines are preserved so multi-line bodies survive intact.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || (r >= 0x7f && r <= 0x9f):
			// drop control character
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
