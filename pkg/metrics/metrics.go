// Copyright 2025 Insightra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// CallAttempts counts single attempts against external providers.
	CallAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insightra",
		Subsystem: "resilient",
		Name:      "call_attempts_total",
		Help:      "Attempts against external providers, by provider and outcome class.",
	}, []string{"provider", "class"})

	// CallRetries counts retries scheduled by the resilient executor.
	CallRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insightra",
		Subsystem: "resilient",
		Name:      "call_retries_total",
		Help:      "Retries scheduled by the resilient executor, by provider.",
	}, []string{"provider"})

	// RunTransitions counts run-level status transitions.
	RunTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insightra",
		Subsystem: "pipeline",
		Name:      "run_transitions_total",
		Help:      "Run status transitions, by target status.",
	}, []string{"status"})

	// StepTransitions counts step-level status transitions.
	StepTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insightra",
		Subsystem: "pipeline",
		Name:      "step_transitions_total",
		Help:      "Step status transitions, by step and target status.",
	}, []string{"step", "status"})
)

// NewRegistry builds a registry with process/go collectors and the
// domain collectors registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(CallAttempts, CallRetries, RunTransitions, StepTransitions)
	return registry
}
