// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import "fmt"

// New creates a structured scheduler error.
func New(code ErrorCode, message string) *SchedError {
	return &SchedError{
		Code:     code,
		Category: categoryOf(code),
		Message:  message,
		Fatal:    fatalOf(code),
	}
}

// Wrap creates a structured scheduler error with an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *SchedError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// ForJob attaches a job id to the error.
func (e *SchedError) ForJob(id string) *SchedError {
	e.JobID = id
	return e
}

// NewDecodeFailed reports an undecodable event batch; fatal for the tick.
func NewDecodeFailed(cause error) *SchedError {
	return Wrap(ErrorCodeDecodeFailed, "event batch could not be decoded", cause)
}

// NewUnknownFormat reports unrecognised format flags at init.
func NewUnknownFormat(flags uint32) *SchedError {
	return New(ErrorCodeUnknownFormat, fmt.Sprintf("unrecognised wire format flags 0x%08x", flags))
}

// NewWidthExceeded reports a submission wider than the platform.
func NewWidthExceeded(jobID string) *SchedError {
	return New(ErrorCodeWidthExceeded, "requested width exceeds platform").ForJob(jobID)
}
