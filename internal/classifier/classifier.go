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

// Package classifier wraps the external language model behind a small
// completion interface. The model is an unreliable collaborator: every
// call runs under a hard timeout, and callers own the retry discipline.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Completer is the black-box classifier contract: prompt text in,
// response text out, or a timeout/transport error.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds OpenAI client settings.
type Config struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible gateways
	Model   string
	Timeout time.Duration // hard per-call timeout
}

// Client is the production Completer backed by the OpenAI chat API.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

const systemPrompt = "You are an email triage assistant for a construction " +
	"company. You respond with a single JSON object and nothing else."

// NewClient creates an OpenAI-backed classifier client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("classifier model not set, defaulting", "model", model)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("classifier client initialised", "model", model, "timeout", timeout)
	return &Client{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
	}, nil
}

// Complete sends the prompt as a single chat turn and returns the raw
// response text. Fails if no response arrives within the configured
// timeout.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("classifier call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classifier returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
