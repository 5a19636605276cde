// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"fmt"

	"github.com/batkit/energysched/internal/energy"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
)

// powerCap withholds any job whose launch would push estimated platform
// power above a fixed ceiling. The cap is memoryless: no energy counter,
// no reservation energetics. The engine-side reservation still protects
// the queue head from being overtaken.
type powerCap struct {
	params energy.Params
	limit  float64
}

func newPowerCap(cfg *config.Config, params energy.Params, hosts HostView) *powerCap {
	return &powerCap{
		params: params,
		limit:  nominalRate(cfg, params, hosts.TotalCount()),
	}
}

func (p *powerCap) Policy() config.Policy {
	return config.PolicyPowerCap
}

func (p *powerCap) OnTick(now float64) {}

func (p *powerCap) Admit(j *registry.Job, now float64, hosts HostView) Admission {
	free := hosts.FreeCount()
	if free < j.Width {
		return denied("insufficient free hosts")
	}

	projected := energy.PlatformPower(p.params, hosts.BusyCount()+j.Width, free-j.Width)
	if projected > p.limit {
		return denied(fmt.Sprintf("projected power %.0f W above cap %.0f W", projected, p.limit))
	}
	return granted()
}

func (p *powerCap) OnLaunch(j *registry.Job, now float64)   {}
func (p *powerCap) OnComplete(j *registry.Job, now float64) {}

func (p *powerCap) PivotNotRunnable(j *registry.Job, now, expectedStart float64) {}
func (p *powerCap) PivotRunnable()                                              {}

func (p *powerCap) EagerLaunch() bool {
	return false
}

func (p *powerCap) ExpectedStart(j *registry.Job, now, hostStart float64) float64 {
	return hostStart
}

func (p *powerCap) Stats() Stats {
	return Stats{
		Policy:     config.PolicyPowerCap,
		PowerLimit: p.limit,
	}
}
