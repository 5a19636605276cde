package config

import "errors"

var (
	// ErrMalformedParameters is returned when the init parameter blob does
	// not decode.
	ErrMalformedParameters = errors.New("malformed scheduler parameters")

	// ErrUnknownPolicy is returned for an unrecognised policy name.
	ErrUnknownPolicy = errors.New("unknown scheduling policy")

	// ErrInvalidBudgetFraction is returned when the budget fraction is
	// outside (0, 1].
	ErrInvalidBudgetFraction = errors.New("budget fraction must be in (0, 1]")

	// ErrInvalidPeriodLength is returned when the period length is not
	// positive.
	ErrInvalidPeriodLength = errors.New("period length must be greater than 0")

	// ErrInvalidPowerEstimates is returned when the power estimates are
	// inconsistent.
	ErrInvalidPowerEstimates = errors.New("power estimates must satisfy 0 <= p_idle <= p_comp, p_comp > 0")

	// ErrInvalidSeedInterval is returned when the seed interval is negative.
	ErrInvalidSeedInterval = errors.New("seed interval must be greater than or equal to 0")
)
