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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClassifierConfig holds language-model settings. Timeout and retry
// budget are independent knobs: the timeout bounds one call, the budget
// bounds how many calls the analyzer makes.
type ClassifierConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// MailConfig holds SMTP and acknowledgment settings.
type MailConfig struct {
	SMTPHost    string
	Username    string
	Password    string
	UseStartTLS bool
	TLSVerify   bool
	From        string
	MaxRetries  int
	RetryBase   time.Duration
	Personalize bool
}

// Config holds all configuration for the triage service.
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        int

	Classifier ClassifierConfig
	Mail       MailConfig

	ConfidenceThreshold float64
	PipelineWorkers     int
	PipelineBuffer      int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Redis       struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Classifier struct {
		APIKey     string `yaml:"api_key"`
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`
		Timeout    string `yaml:"timeout"`
		MaxRetries *int   `yaml:"max_retries"`
		RetryBase  string `yaml:"retry_base"`
	} `yaml:"classifier"`
	Decision struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	} `yaml:"decision"`
	Mail struct {
		SMTPHost    string `yaml:"smtp_host"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		UseStartTLS *bool  `yaml:"use_starttls"`
		TLSVerify   *bool  `yaml:"tls_verify"`
		From        string `yaml:"from"`
		MaxRetries  *int   `yaml:"max_retries"`
		RetryBase   string `yaml:"retry_base"`
		Personalize *bool  `yaml:"personalize"`
	} `yaml:"mail"`
	Pipeline struct {
		Workers int `yaml:"workers"`
		Buffer  int `yaml:"buffer"`
	} `yaml:"pipeline"`
}

// Load reads configuration from config.yaml (with env var expansion)
// and environment variables for overrides.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		Port:        firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),

		Classifier: ClassifierConfig{
			APIKey:     firstNonEmpty(raw.Classifier.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:    firstNonEmpty(raw.Classifier.BaseURL, os.Getenv("OPENAI_BASE_URL")),
			Model:      firstNonEmpty(raw.Classifier.Model, envOrDefault("OPENAI_MODEL", "gpt-4o-mini")),
			Timeout:    parseDurationOr(raw.Classifier.Timeout, envOrDefaultDuration("CLASSIFIER_TIMEOUT", 30*time.Second)),
			MaxRetries: intPtrOr(raw.Classifier.MaxRetries, envOrDefaultInt("CLASSIFIER_MAX_RETRIES", 2)),
			RetryBase:  parseDurationOr(raw.Classifier.RetryBase, envOrDefaultDuration("CLASSIFIER_RETRY_BASE", 2*time.Second)),
		},

		Mail: MailConfig{
			SMTPHost:    firstNonEmpty(raw.Mail.SMTPHost, os.Getenv("SMTP_HOST")),
			Username:    firstNonEmpty(raw.Mail.Username, os.Getenv("SMTP_USERNAME")),
			Password:    firstNonEmpty(raw.Mail.Password, os.Getenv("SMTP_PASSWORD")),
			UseStartTLS: boolPtrOr(raw.Mail.UseStartTLS, true),
			TLSVerify:   boolPtrOr(raw.Mail.TLSVerify, true),
			From:        firstNonEmpty(raw.Mail.From, envOrDefault("MAIL_FROM", "noreply@crestline.example")),
			MaxRetries:  intPtrOr(raw.Mail.MaxRetries, envOrDefaultInt("MAIL_MAX_RETRIES", 2)),
			RetryBase:   parseDurationOr(raw.Mail.RetryBase, envOrDefaultDuration("MAIL_RETRY_BASE", 1*time.Second)),
			Personalize: boolPtrOr(raw.Mail.Personalize, false),
		},

		ConfidenceThreshold: firstPositiveFloat(raw.Decision.ConfidenceThreshold, envOrDefaultFloat("CONFIDENCE_THRESHOLD", 0.7)),
		PipelineWorkers:     firstPositive(raw.Pipeline.Workers, envOrDefaultInt("PIPELINE_WORKERS", 4)),
		PipelineBuffer:      firstPositive(raw.Pipeline.Buffer, envOrDefaultInt("PIPELINE_BUFFER", 256)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required: set it in config.yaml or the environment")
	}
	if cfg.Classifier.APIKey == "" {
		return nil, fmt.Errorf("classifier API key is required: set classifier.api_key or OPENAI_API_KEY")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func intPtrOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func boolPtrOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
