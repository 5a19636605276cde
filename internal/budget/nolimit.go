// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
)

// noLimit is the plain EASY baseline: host availability is the only
// constraint.
type noLimit struct{}

func newNoLimit() *noLimit {
	return &noLimit{}
}

func (n *noLimit) Policy() config.Policy {
	return config.PolicyFCFS
}

func (n *noLimit) OnTick(now float64) {}

func (n *noLimit) Admit(j *registry.Job, now float64, hosts HostView) Admission {
	if hosts.FreeCount() < j.Width {
		return denied("insufficient free hosts")
	}
	return granted()
}

func (n *noLimit) OnLaunch(j *registry.Job, now float64)   {}
func (n *noLimit) OnComplete(j *registry.Job, now float64) {}

func (n *noLimit) PivotNotRunnable(j *registry.Job, now, expectedStart float64) {}
func (n *noLimit) PivotRunnable()                                              {}

func (n *noLimit) EagerLaunch() bool {
	return false
}

func (n *noLimit) ExpectedStart(j *registry.Job, now, hostStart float64) float64 {
	return hostStart
}

func (n *noLimit) Stats() Stats {
	return Stats{Policy: config.PolicyFCFS}
}
