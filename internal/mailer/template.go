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

package mailer

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/crestline/triage/internal/classifier"
)

// cannedRFQBody is the fallback RFQ acknowledgment when personalization
// is unavailable.
const cannedRFQBody = `Thank you for your request for quotation%s.

We have received your inquiry and our estimating team is reviewing it now.
You can expect a detailed response within two business days.

Crestline Construction`

// cannedInvoiceBody is the fallback invoice acknowledgment.
const cannedInvoiceBody = `Thank you for your invoice.

It has been received and routed to our accounts payable team for
processing. You will be contacted if anything further is needed.

Crestline Construction`

// Templates builds acknowledgment messages. When a completer is set it
// is asked for a personalized body; any failure there falls back to the
// canned text and must never block sending.
type Templates struct {
	completer classifier.Completer
}

// NewTemplates creates a template builder. completer may be nil to
// disable personalization.
func NewTemplates(completer classifier.Completer) *Templates {
	return &Templates{completer: completer}
}

// RFQAck builds the acknowledgment for an RFQ, referencing the
// extracted project type when the classifier found one.
func (t *Templates) RFQAck(ctx context.Context, projectType *string) (subject, text, htmlBody string) {
	ref := ""
	if projectType != nil && strings.TrimSpace(*projectType) != "" {
		ref = fmt.Sprintf(" regarding your %s project", strings.TrimSpace(*projectType))
	}

	subject = "We received your request for quotation"
	text = fmt.Sprintf(cannedRFQBody, ref)

	if t.completer != nil {
		prompt := fmt.Sprintf(
			"Write a brief, professional acknowledgment email body (plain text, no subject line) "+
				"from Crestline Construction confirming receipt of a request for quotation%s. "+
				"State that the estimating team will respond within two business days.", ref)
		if personalized, err := t.completer.Complete(ctx, prompt); err == nil && strings.TrimSpace(personalized) != "" {
			text = strings.TrimSpace(personalized)
		} else if err != nil {
			slog.Warn("ack personalization failed, using canned template", "error", err)
		}
	}

	return subject, text, toHTML(text)
}

// InvoiceAck builds the acknowledgment for an invoice.
func (t *Templates) InvoiceAck(ctx context.Context) (subject, text, htmlBody string) {
	subject = "Invoice received"
	text = cannedInvoiceBody

	if t.completer != nil {
		prompt := "Write a brief, professional acknowledgment email body (plain text, no subject line) " +
			"from Crestline Construction confirming an invoice was received and routed to accounts payable."
		if personalized, err := t.completer.Complete(ctx, prompt); err == nil && strings.TrimSpace(personalized) != "" {
			text = strings.TrimSpace(personalized)
		} else if err != nil {
			slog.Warn("ack personalization failed, using canned template", "error", err)
		}
	}

	return subject, text, toHTML(text)
}

// toHTML wraps plain text in a minimal HTML body.
func toHTML(text string) string {
	escaped := html.EscapeString(text)
	paragraphs := strings.Split(escaped, "\n\n")
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(p, "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
