// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"github.com/batkit/energysched/internal/energy"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
)

// energyStartMargin pads the energy-side expected-start projection for the
// queue head. Replenishment is shared with idle draw, so the raw division
// is optimistic.
const energyStartMargin = 1.1

// energyBudget runs a continuously replenished energy counter. Running and
// idle hosts draw it down; a fixed nominal rate refills it. A job is
// admitted when the counter plus the replenishment expected during the
// job's own runtime covers its estimated energy (the lookahead rule).
type energyBudget struct {
	params       energy.Params
	hosts        HostView
	rNominal     float64
	seedInterval float64
	meter

	reservedID     string
	reservedEnergy float64
	reservedEnd    float64
}

func newEnergyBudget(cfg *config.Config, params energy.Params, hosts HostView) *energyBudget {
	return &energyBudget{
		params:       params,
		hosts:        hosts,
		rNominal:     nominalRate(cfg, params, hosts.TotalCount()),
		seedInterval: cfg.SeedInterval,
	}
}

func (e *energyBudget) Policy() config.Policy {
	return config.PolicyEnergyBudget
}

func (e *energyBudget) OnTick(now float64) {
	if !e.seeded {
		e.seed(now, e.rNominal*e.seedInterval)
		return
	}
	draw := energy.PlatformPower(e.params, e.hosts.BusyCount(), e.hosts.FreeCount())
	e.advance(now, e.rNominal, draw)
}

func (e *energyBudget) Admit(j *registry.Job, now float64, hosts HostView) Admission {
	if hosts.FreeCount() < j.Width {
		return denied("insufficient free hosts")
	}

	avail := e.available
	if e.reservedID != "" && j.ID != e.reservedID {
		// Candidates other than the reserved head must leave its energy
		// untouched.
		avail -= e.reservedEnergy
	}
	if avail < 0 {
		return denied("energy counter exhausted")
	}

	need := energy.JobEnergy(e.params, j.Width, j.Walltime)
	if avail+e.rNominal*j.Walltime < need {
		return denied("insufficient energy within walltime")
	}
	return granted()
}

// Launch and completion do not move the counter: consumption is integrated
// continuously from host occupancy on each tick.
func (e *energyBudget) OnLaunch(j *registry.Job, now float64)   {}
func (e *energyBudget) OnComplete(j *registry.Job, now float64) {}

func (e *energyBudget) PivotNotRunnable(j *registry.Job, now, expectedStart float64) {
	e.reservedID = j.ID
	e.reservedEnergy = energy.JobEnergy(e.params, j.Width, j.Walltime)
	e.reservedEnd = now + j.Walltime
}

func (e *energyBudget) PivotRunnable() {
	e.reservedID = ""
	e.reservedEnergy = 0
	e.reservedEnd = 0
}

func (e *energyBudget) EagerLaunch() bool {
	return true
}

func (e *energyBudget) ExpectedStart(j *registry.Job, now, hostStart float64) float64 {
	need := energy.JobEnergy(e.params, j.Width, j.Walltime)
	est := hostStart
	if e.rNominal > 0 && e.available < need {
		energyStart := now + (need-e.available)/e.rNominal*energyStartMargin
		if energyStart > est {
			est = energyStart
		}
	}
	return est
}

func (e *energyBudget) Stats() Stats {
	return Stats{
		Policy:            config.PolicyEnergyBudget,
		Available:         e.available,
		Consumed:          e.consumed,
		Released:          e.released,
		RateNominal:       e.rNominal,
		RateCurrent:       e.rNominal,
		ReservationActive: e.reservedID != "",
		ReservationEnd:    e.reservedEnd,
	}
}
