// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry owns the wait queue and the running-job map. The queue
// is kept strictly in submission order; policies may pick which entry they
// launch but never reorder it.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/batkit/energysched/internal/platform"
)

// ErrWidthExceeded is returned when a submitted job requests more hosts
// than the platform has.
var ErrWidthExceeded = errors.New("registry: job width exceeds platform size")

// Job is a single batch job. The descriptor fields are immutable after
// submission; Allocation, StartTime and EndTime are set when the job is
// promoted to the running set.
type Job struct {
	ID         string
	Width      int
	Walltime   float64
	SubmitTime float64

	Allocation platform.Allocation
	StartTime  float64
	EndTime    float64
}

// Running reports whether the job has been dispatched.
func (j *Job) Running() bool {
	return j.Allocation != nil
}

// Registry holds all jobs known to the scheduler, split into the wait
// queue and the running map.
type Registry struct {
	hostCount int
	queue     []*Job
	running   map[string]*Job
}

// New creates an empty registry for a platform of the given size.
func New(hostCount int) *Registry {
	return &Registry{
		hostCount: hostCount,
		running:   make(map[string]*Job),
	}
}

// Enqueue appends a job to the tail of the wait queue. Jobs wider than the
// platform are refused; the caller turns that into a reject decision.
func (r *Registry) Enqueue(j *Job) error {
	if j.Width > r.hostCount {
		return fmt.Errorf("%w: job %s wants %d of %d hosts", ErrWidthExceeded, j.ID, j.Width, r.hostCount)
	}
	r.queue = append(r.queue, j)
	return nil
}

// Head returns the queue head (the job governed by FCFS) without removing
// it, or nil when the queue is empty.
func (r *Registry) Head() *Job {
	if len(r.queue) == 0 {
		return nil
	}
	return r.queue[0]
}

// QueueLen returns the number of waiting jobs.
func (r *Registry) QueueLen() int {
	return len(r.queue)
}

// RunningLen returns the number of running jobs.
func (r *Registry) RunningLen() int {
	return len(r.running)
}

// Waiting returns a snapshot of the wait queue in submission order.
func (r *Registry) Waiting() []*Job {
	out := make([]*Job, len(r.queue))
	copy(out, r.queue)
	return out
}

// Backfill returns a snapshot of the wait queue after the head: the
// backfill candidates, in submission order.
func (r *Registry) Backfill() []*Job {
	if len(r.queue) <= 1 {
		return nil
	}
	out := make([]*Job, len(r.queue)-1)
	copy(out, r.queue[1:])
	return out
}

// Promote moves a waiting job into the running map with the given
// allocation and start time. The projected end is start + walltime.
func (r *Registry) Promote(j *Job, alloc platform.Allocation, now float64) {
	for i, q := range r.queue {
		if q == j {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	j.Allocation = alloc
	j.StartTime = now
	j.EndTime = now + j.Walltime
	r.running[j.ID] = j
}

// Complete removes a running job and hands it back for host release.
// ok is false for unknown ids (duplicate completions are tolerated there).
func (r *Registry) Complete(id string) (*Job, bool) {
	j, ok := r.running[id]
	if !ok {
		return nil, false
	}
	delete(r.running, id)
	return j, true
}

// Running returns the running jobs sorted by projected end time, then id.
// The expected-start estimation walks this list accumulating completions.
func (r *Registry) Running() []*Job {
	out := make([]*Job, 0, len(r.running))
	for _, j := range r.running {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].EndTime != out[k].EndTime {
			return out[i].EndTime < out[k].EndTime
		}
		return out[i].ID < out[k].ID
	})
	return out
}
