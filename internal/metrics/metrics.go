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

// Package metrics exposes Prometheus collectors for the triage pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_emails_received_total",
			Help: "Total number of inbound emails accepted by the webhook",
		},
	)

	EmailsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_emails_deduplicated_total",
			Help: "Total number of duplicate webhook deliveries filtered out",
		},
	)

	EmailsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_emails_classified_total",
			Help: "Total number of completed classifications by resulting type",
		},
		[]string{"email_type"},
	)

	AutomationBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_automation_blocked_total",
			Help: "Total number of decisions that blocked automation",
		},
	)

	PipelineFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_pipeline_failures_total",
			Help: "Total number of pipeline runs that ended in forced manual review",
		},
	)
)
