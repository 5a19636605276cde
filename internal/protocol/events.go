// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the event/decision vocabulary exchanged with the
// simulator and the codecs that put it on the wire.
package protocol

// EventType tags an incoming simulator event.
type EventType string

const (
	EventHello                  EventType = "hello"
	EventSimulationBegins       EventType = "simulation_begins"
	EventJobSubmitted           EventType = "job_submitted"
	EventJobCompleted           EventType = "job_completed"
	EventAllStaticJobsSubmitted EventType = "all_static_jobs_submitted"
)

// Event is a single simulator event. Unknown types survive decoding so the
// engine can ignore them for forward compatibility.
type Event struct {
	Type EventType `json:"type"`

	// HostCount is set on simulation_begins.
	HostCount int `json:"nb_hosts,omitempty"`

	// JobID is set on job_submitted and job_completed.
	JobID string `json:"job_id,omitempty"`

	// Width and Walltime are set on job_submitted.
	Width    int     `json:"res,omitempty"`
	Walltime float64 `json:"walltime,omitempty"`
}

// EventBatch is one decision-loop input: events sharing a simulation
// timestamp.
type EventBatch struct {
	Now    float64 `json:"now"`
	Events []Event `json:"events"`
}

// DecisionType tags an outgoing scheduler decision.
type DecisionType string

const (
	DecisionHello      DecisionType = "edc_hello"
	DecisionRejectJob  DecisionType = "reject_job"
	DecisionExecuteJob DecisionType = "execute_job"
)

// Decision is a single scheduler decision.
type Decision struct {
	Type DecisionType `json:"type"`

	// Name and Version identify the scheduler on edc_hello.
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	// JobID is set on reject_job and execute_job.
	JobID string `json:"job_id,omitempty"`

	// Hosts is the compact allocation string on execute_job.
	Hosts string `json:"alloc,omitempty"`
}

// DecisionBatch is one decision-loop output, stamped with the same
// timestamp as the batch that produced it.
type DecisionBatch struct {
	Now       float64    `json:"now"`
	Decisions []Decision `json:"decisions"`
}
