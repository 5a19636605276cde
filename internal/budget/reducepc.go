// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"github.com/batkit/energysched/internal/energy"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
)

const (
	// Replenishment floor factors. The larger floor applies when the queue
	// is dominated by small jobs, so backfill flow is never starved just to
	// protect the head.
	rateFloorDefault   = 0.3
	rateFloorSmallJobs = 0.5

	// reservationHorizon bounds the energy-side start projection. Host
	// completion times are exact; the energy projection is speculative and
	// a short horizon keeps the reduced-rate window honest.
	reservationHorizon = 5.0
)

// reducePC expresses the head-of-queue reservation as a reduction of the
// replenishment rate: instead of setting energy aside, the counter refills
// just slowly enough that the head's energy is guaranteed by its expected
// start, and whatever flow remains is open to backfill.
type reducePC struct {
	params       energy.Params
	hosts        HostView
	queue        QueueView
	rNominal     float64
	rCurrent     float64
	seedInterval float64
	meter

	reserved       bool
	reservationEnd float64
}

func newReducePC(cfg *config.Config, params energy.Params, hosts HostView, queue QueueView) *reducePC {
	r := &reducePC{
		params:       params,
		hosts:        hosts,
		queue:        queue,
		rNominal:     nominalRate(cfg, params, hosts.TotalCount()),
		seedInterval: cfg.SeedInterval,
	}
	r.rCurrent = r.rNominal
	return r
}

func (r *reducePC) Policy() config.Policy {
	return config.PolicyReducePC
}

func (r *reducePC) OnTick(now float64) {
	if !r.seeded {
		r.seed(now, r.rNominal*r.seedInterval)
		return
	}
	draw := energy.PlatformPower(r.params, r.hosts.BusyCount(), r.hosts.FreeCount())
	r.advance(now, r.rCurrent, draw)

	if r.reserved && now >= r.reservationEnd {
		r.clearReservation()
	}
}

func (r *reducePC) Admit(j *registry.Job, now float64, hosts HostView) Admission {
	if hosts.FreeCount() < j.Width {
		return denied("insufficient free hosts")
	}
	if r.available < 0 {
		return denied("energy counter exhausted")
	}

	// Same lookahead rule as the plain energy budget, against the reduced
	// rate. The reservation is already priced into rCurrent; nothing is
	// subtracted twice.
	need := energy.JobEnergy(r.params, j.Width, j.Walltime)
	if r.available+r.rCurrent*j.Walltime < need {
		return denied("insufficient energy within walltime")
	}
	return granted()
}

func (r *reducePC) OnLaunch(j *registry.Job, now float64)   {}
func (r *reducePC) OnComplete(j *registry.Job, now float64) {}

func (r *reducePC) PivotNotRunnable(j *registry.Job, now, expectedStart float64) {
	dt := expectedStart - now
	if dt <= 0 {
		return
	}

	need := energy.JobEnergy(r.params, j.Width, j.Walltime)
	reduced := r.rNominal - need/dt
	if floor := r.rateFloor(); reduced < floor {
		reduced = floor
	}
	r.rCurrent = reduced
	r.reservationEnd = expectedStart
	r.reserved = true
}

func (r *reducePC) PivotRunnable() {
	r.clearReservation()
}

func (r *reducePC) clearReservation() {
	r.reserved = false
	r.reservationEnd = 0
	r.rCurrent = r.rNominal
}

// rateFloor picks the floor from queue composition: when more than half of
// the waiting jobs need less than half the queue's mean energy, the floor
// rises so those small jobs keep enough flow to backfill.
func (r *reducePC) rateFloor() float64 {
	factor := rateFloorDefault

	waiting := r.queue.Waiting()
	if len(waiting) > 0 {
		total := 0.0
		for _, j := range waiting {
			total += energy.JobEnergy(r.params, j.Width, j.Walltime)
		}
		mean := total / float64(len(waiting))
		small := 0
		for _, j := range waiting {
			if energy.JobEnergy(r.params, j.Width, j.Walltime) < mean/2 {
				small++
			}
		}
		if 2*small > len(waiting) {
			factor = rateFloorSmallJobs
		}
	}
	return factor * r.rNominal
}

func (r *reducePC) EagerLaunch() bool {
	return true
}

func (r *reducePC) ExpectedStart(j *registry.Job, now, hostStart float64) float64 {
	est := hostStart
	need := energy.JobEnergy(r.params, j.Width, j.Walltime)
	if r.rNominal > 0 && r.available < need {
		energyStart := now + (need-r.available)/r.rNominal*energyStartMargin
		if energyStart > now+reservationHorizon {
			energyStart = now + reservationHorizon
		}
		if energyStart > est {
			est = energyStart
		}
	}
	return est
}

func (r *reducePC) Stats() Stats {
	return Stats{
		Policy:            config.PolicyReducePC,
		Available:         r.available,
		Consumed:          r.consumed,
		Released:          r.released,
		RateNominal:       r.rNominal,
		RateCurrent:       r.rCurrent,
		ReservationActive: r.reserved,
		ReservationEnd:    r.reservationEnd,
	}
}
