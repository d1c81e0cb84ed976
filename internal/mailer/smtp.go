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
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host        string // host:port
	Username    string
	Password    string
	UseStartTLS bool // STARTTLS on a plaintext connection instead of direct TLS
	TLSVerify   bool
}

// SMTPTransport delivers messages over SMTP with TLS.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport creates an SMTP transport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// SendMail builds a MIME message and delivers it in one SMTP session.
// The returned message ID is the generated Message-ID header; the
// upstream server does not echo one back.
func (t *SMTPTransport) SendMail(ctx context.Context, msg *Message) (string, error) {
	if t.cfg.Host == "" {
		return "", fmt.Errorf("SMTP host not configured")
	}

	messageID := generateMessageID(msg.From)
	body, err := buildMIME(msg, messageID)
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !t.cfg.TLSVerify,
	}

	var c *smtp.Client
	if t.cfg.UseStartTLS {
		c, err = smtp.DialStartTLS(t.cfg.Host, tlsConfig)
	} else {
		c, err = smtp.DialTLS(t.cfg.Host, tlsConfig)
	}
	if err != nil {
		return "", fmt.Errorf("connect to SMTP relay %s: %w", t.cfg.Host, err)
	}
	defer c.Close()

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return "", fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("SMTP send: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Delivery already succeeded; a failed QUIT is not a send failure.
		return messageID, nil
	}
	return messageID, nil
}

// generateMessageID builds a Message-ID using the sender's domain.
func generateMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i+1 < len(from) {
		domain = from[i+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domain)
}

// buildMIME renders the message as multipart/alternative (or plain text
// when no HTML part is supplied).
func buildMIME(msg *Message, messageID string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetMessageID(messageID)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})

	var buf bytes.Buffer

	if msg.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, msg.Text); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := iw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, msg.Text); err != nil {
		return nil, err
	}
	tw.Close()

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := iw.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(hw, msg.HTML); err != nil {
		return nil, err
	}
	hw.Close()

	iw.Close()
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
