// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides in-memory metrics collection for the scheduler
package metrics

import (
	"sync"
)

// Collector is the interface for metrics collection
type Collector interface {
	// RecordEvent records an ingested simulator event
	RecordEvent(eventType string)

	// RecordDecision records an emitted decision
	RecordDecision(decisionType string)

	// RecordLaunch records a dispatched job; backfilled marks out-of-order
	// launches
	RecordLaunch(jobID string, backfilled bool)

	// RecordRejection records a rejected submission
	RecordRejection(jobID string)

	// RecordWithheld records a candidate refused by the budget controller
	RecordWithheld(reason string)

	// SetEnergyState updates the energy gauges
	SetEnergyState(availableJoules, consumedJoules float64)

	// GetStats returns current metrics statistics
	GetStats() *Stats

	// Reset resets all metrics
	Reset()
}

// Stats contains aggregated metrics statistics
type Stats struct {
	TotalEvents     int64
	EventsByType    map[string]int64
	TotalDecisions  int64
	DecisionsByType map[string]int64

	Launches   int64
	Backfills  int64
	Rejections int64

	WithheldByReason map[string]int64

	AvailableJoules float64
	ConsumedJoules  float64
}

// InMemoryCollector is an in-memory implementation of Collector
type InMemoryCollector struct {
	mu sync.Mutex

	totalEvents     int64
	eventsByType    map[string]int64
	totalDecisions  int64
	decisionsByType map[string]int64

	launches   int64
	backfills  int64
	rejections int64

	withheldByReason map[string]int64

	availableJoules float64
	consumedJoules  float64
}

// NewInMemoryCollector creates a new in-memory metrics collector
func NewInMemoryCollector() *InMemoryCollector {
	c := &InMemoryCollector{}
	c.reset()
	return c
}

func (c *InMemoryCollector) reset() {
	c.totalEvents = 0
	c.totalDecisions = 0
	c.launches = 0
	c.backfills = 0
	c.rejections = 0
	c.availableJoules = 0
	c.consumedJoules = 0
	c.eventsByType = make(map[string]int64)
	c.decisionsByType = make(map[string]int64)
	c.withheldByReason = make(map[string]int64)
}

// RecordEvent records an ingested simulator event
func (c *InMemoryCollector) RecordEvent(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalEvents++
	c.eventsByType[eventType]++
}

// RecordDecision records an emitted decision
func (c *InMemoryCollector) RecordDecision(decisionType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDecisions++
	c.decisionsByType[decisionType]++
}

// RecordLaunch records a dispatched job
func (c *InMemoryCollector) RecordLaunch(jobID string, backfilled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launches++
	if backfilled {
		c.backfills++
	}
}

// RecordRejection records a rejected submission
func (c *InMemoryCollector) RecordRejection(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejections++
}

// RecordWithheld records a candidate refused by the budget controller
func (c *InMemoryCollector) RecordWithheld(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withheldByReason[reason]++
}

// SetEnergyState updates the energy gauges
func (c *InMemoryCollector) SetEnergyState(availableJoules, consumedJoules float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.availableJoules = availableJoules
	c.consumedJoules = consumedJoules
}

// GetStats returns current metrics statistics
func (c *InMemoryCollector) GetStats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Stats{
		TotalEvents:      c.totalEvents,
		EventsByType:     make(map[string]int64, len(c.eventsByType)),
		TotalDecisions:   c.totalDecisions,
		DecisionsByType:  make(map[string]int64, len(c.decisionsByType)),
		Launches:         c.launches,
		Backfills:        c.backfills,
		Rejections:       c.rejections,
		WithheldByReason: make(map[string]int64, len(c.withheldByReason)),
		AvailableJoules:  c.availableJoules,
		ConsumedJoules:   c.consumedJoules,
	}
	for k, v := range c.eventsByType {
		stats.EventsByType[k] = v
	}
	for k, v := range c.decisionsByType {
		stats.DecisionsByType[k] = v
	}
	for k, v := range c.withheldByReason {
		stats.WithheldByReason[k] = v
	}
	return stats
}

// Reset resets all metrics
func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// NoOpCollector discards all measurements
type NoOpCollector struct{}

func (NoOpCollector) RecordEvent(eventType string)           {}
func (NoOpCollector) RecordDecision(decisionType string)     {}
func (NoOpCollector) RecordLaunch(jobID string, bf bool)     {}
func (NoOpCollector) RecordRejection(jobID string)           {}
func (NoOpCollector) RecordWithheld(reason string)           {}
func (NoOpCollector) SetEnergyState(avail, consumed float64) {}
func (NoOpCollector) GetStats() *Stats                       { return &Stats{} }
func (NoOpCollector) Reset()                                 {}
