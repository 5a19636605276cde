// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget implements the energy/power admission policies behind the
// EASY-backfilling engine. All variants sit behind the Controller interface;
// the engine never knows which one it is driving.
package budget

import (
	"fmt"

	"github.com/batkit/energysched/internal/energy"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
)

// HostView is the read-only host pool view controllers consult.
type HostView interface {
	FreeCount() int
	BusyCount() int
	TotalCount() int
}

// QueueView exposes the wait queue composition. ReducePC inspects it when
// choosing its replenishment floor.
type QueueView interface {
	Waiting() []*registry.Job
}

// Admission is a controller's answer for a single candidate at a single
// instant.
type Admission struct {
	OK     bool
	Reason string
}

func granted() Admission {
	return Admission{OK: true}
}

func denied(reason string) Admission {
	return Admission{Reason: reason}
}

// Stats is a point-in-time snapshot of a controller's budget state, used
// by the monitor and by tests. Fields not meaningful for a variant stay
// zero.
type Stats struct {
	Policy            config.Policy `json:"policy"`
	PowerLimit        float64       `json:"power_limit,omitempty"`
	Available         float64       `json:"available_joules"`
	Consumed          float64       `json:"consumed_joules"`
	Released          float64       `json:"released_joules"`
	RateNominal       float64       `json:"rate_nominal_watts"`
	RateCurrent       float64       `json:"rate_current_watts"`
	ReservationActive bool          `json:"reservation_active"`
	ReservationEnd    float64       `json:"reservation_end,omitempty"`
}

// Controller is the policy-side half of the scheduling core. The engine
// calls OnTick exactly once per decision call, before any admissibility
// query for that call.
type Controller interface {
	// Policy identifies the variant.
	Policy() config.Policy

	// OnTick advances internal state to the given simulation time.
	OnTick(now float64)

	// Admit answers whether the job may be dispatched at now. Host
	// availability is part of the answer; the engine still owns the actual
	// allocation attempt.
	Admit(j *registry.Job, now float64, hosts HostView) Admission

	// OnLaunch records that a job has been dispatched.
	OnLaunch(j *registry.Job, now float64)

	// OnComplete records that a running job has released its resources.
	OnComplete(j *registry.Job, now float64)

	// PivotNotRunnable informs the controller that the queue head cannot
	// run now and is expected to start at expectedStart. The controller
	// may install or refresh a reservation.
	PivotNotRunnable(j *registry.Job, now, expectedStart float64)

	// PivotRunnable clears any active reservation and restores reduced
	// rates.
	PivotRunnable()

	// EagerLaunch reports whether the engine should run the head-to-tail
	// launch sweep before considering a reservation.
	EagerLaunch() bool

	// ExpectedStart folds the controller's own constraint into the
	// host-availability estimate for the queue head. hostStart is the
	// earliest time enough hosts are projected free.
	ExpectedStart(j *registry.Job, now, hostStart float64) float64

	// Stats snapshots the budget state.
	Stats() Stats
}

// New builds the controller selected by the configuration. The host view
// is the live pool; its total count fixes the nominal rates.
func New(cfg *config.Config, params energy.Params, hosts HostView, queue QueueView) (Controller, error) {
	switch cfg.Policy {
	case config.PolicyFCFS:
		return newNoLimit(), nil
	case config.PolicyPowerCap:
		return newPowerCap(cfg, params, hosts), nil
	case config.PolicyEnergyBudget:
		return newEnergyBudget(cfg, params, hosts), nil
	case config.PolicyReducePC:
		return newReducePC(cfg, params, hosts, queue), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownPolicy, cfg.Policy)
	}
}

// nominalRate derives the replenishment rate in watts from the budget
// fraction: the full budget over a period equals every host computing flat
// out for that period, so the rate collapses to fraction · H · PComp.
func nominalRate(cfg *config.Config, params energy.Params, hostCount int) float64 {
	return cfg.BudgetFraction * float64(hostCount) * params.PComp
}
