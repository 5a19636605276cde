// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package energy holds the estimation model shared by all budget policies.
//
// The model is deliberately coarse: two per-host power figures, no dynamic
// frequency scaling, no network. An over-estimated PComp is safe — it only
// makes the resulting schedules more conservative.
package energy

// Params is the per-run estimation parameter block. Both values are in
// watts per host. The simulator may run with different true values; the
// scheduler only ever sees these estimates.
type Params struct {
	PIdle float64
	PComp float64
}

// JobEnergy returns the estimated energy in joules a job consumes over its
// full walltime: width hosts at compute power for walltime seconds.
func JobEnergy(p Params, width int, walltime float64) float64 {
	return float64(width) * p.PComp * walltime
}

// PlatformPower returns the estimated instantaneous platform power in watts
// given the number of busy and idle hosts.
func PlatformPower(p Params, busy, idle int) float64 {
	return float64(busy)*p.PComp + float64(idle)*p.PIdle
}

// JobPower returns the estimated instantaneous power draw of a running job.
func JobPower(p Params, width int) float64 {
	return float64(width) * p.PComp
}

// JobPowerDelta returns the power increase over the idle baseline caused by
// launching a job of the given width.
func JobPowerDelta(p Params, width int) float64 {
	return float64(width) * (p.PComp - p.PIdle)
}
