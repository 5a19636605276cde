// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
)

// Policy selects the budget controller variant.
type Policy string

const (
	// PolicyFCFS is the unconstrained EASY baseline: no energy accounting.
	PolicyFCFS Policy = "fcfs"

	// PolicyPowerCap enforces a hard instantaneous power ceiling.
	PolicyPowerCap Policy = "power_cap"

	// PolicyEnergyBudget runs a continuously replenished energy counter.
	PolicyEnergyBudget Policy = "energy_budget"

	// PolicyReducePC expresses the head-of-queue reservation as a reduced
	// replenishment rate.
	PolicyReducePC Policy = "reduce_pc"
)

// Config holds the recognised scheduler options. It arrives as the opaque
// JSON parameter blob handed to init; there is no environment or filesystem
// loading between simulations.
type Config struct {
	// Policy is the budget controller variant to run.
	Policy Policy `json:"policy"`

	// BudgetFraction is the fraction of the theoretical maximum budget to
	// honour, in (0, 1].
	BudgetFraction float64 `json:"budget_fraction"`

	// PeriodLength is the budget period in seconds. The budget scales with
	// the period, so the derived rate (fraction · H · PComp) does not depend
	// on it; the value is validated but not used in the arithmetic.
	PeriodLength float64 `json:"period_length"`

	// PIdle is the estimated idle power per host, in watts.
	PIdle float64 `json:"p_idle"`

	// PComp is the estimated compute power per host, in watts.
	PComp float64 `json:"p_comp"`

	// SeedInterval is the interval, in seconds, whose worth of
	// replenishment seeds the energy counter on the first tick. Zero
	// starts the counter empty.
	SeedInterval float64 `json:"seed_interval"`
}

// NewDefault creates a configuration with default values.
func NewDefault() *Config {
	return &Config{
		Policy:         PolicyEnergyBudget,
		BudgetFraction: 1.0,
		PeriodLength:   600,
		PIdle:          100,
		PComp:          200,
	}
}

// Parse decodes an init parameter blob on top of the defaults and
// validates the result. An empty blob yields the defaults unchanged.
func Parse(blob []byte) (*Config, error) {
	cfg := NewDefault()
	if len(blob) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(blob, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParameters, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Policy {
	case PolicyFCFS, PolicyPowerCap, PolicyEnergyBudget, PolicyReducePC:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Policy)
	}

	if c.BudgetFraction <= 0 || c.BudgetFraction > 1 {
		return ErrInvalidBudgetFraction
	}

	if c.PeriodLength <= 0 {
		return ErrInvalidPeriodLength
	}

	if c.PComp <= 0 || c.PIdle < 0 || c.PComp < c.PIdle {
		return ErrInvalidPowerEstimates
	}

	if c.SeedInterval < 0 {
		return ErrInvalidSeedInterval
	}

	return nil
}
