// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batkit/energysched/internal/platform"
)

func job(id string, width int, walltime float64) *Job {
	return &Job{ID: id, Width: width, Walltime: walltime}
}

func TestEnqueueOrder(t *testing.T) {
	r := New(4)
	require.NoError(t, r.Enqueue(job("a", 1, 10)))
	require.NoError(t, r.Enqueue(job("b", 2, 10)))
	require.NoError(t, r.Enqueue(job("c", 3, 10)))

	assert.Equal(t, "a", r.Head().ID)
	waiting := r.Waiting()
	require.Len(t, waiting, 3)
	assert.Equal(t, "a", waiting[0].ID)
	assert.Equal(t, "b", waiting[1].ID)
	assert.Equal(t, "c", waiting[2].ID)

	backfill := r.Backfill()
	require.Len(t, backfill, 2)
	assert.Equal(t, "b", backfill[0].ID)
	assert.Equal(t, "c", backfill[1].ID)
}

func TestEnqueueWidthExceeded(t *testing.T) {
	r := New(4)
	err := r.Enqueue(job("too-wide", 5, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWidthExceeded)
	assert.Equal(t, 0, r.QueueLen())
}

func TestEnqueueFullWidthAllowed(t *testing.T) {
	r := New(4)
	assert.NoError(t, r.Enqueue(job("full", 4, 10)))
}

func TestPromoteAndComplete(t *testing.T) {
	r := New(4)
	j := job("a", 2, 30)
	require.NoError(t, r.Enqueue(j))

	alloc := platform.Allocation{{Lo: 0, Hi: 1}}
	r.Promote(j, alloc, 100)

	assert.Equal(t, 0, r.QueueLen())
	assert.Equal(t, 1, r.RunningLen())
	assert.True(t, j.Running())
	assert.Equal(t, 100.0, j.StartTime)
	assert.Equal(t, 130.0, j.EndTime)

	done, ok := r.Complete("a")
	require.True(t, ok)
	assert.Equal(t, j, done)
	assert.Equal(t, 0, r.RunningLen())

	// Duplicate completion is reported, not fatal.
	_, ok = r.Complete("a")
	assert.False(t, ok)
}

func TestPromoteMidQueue(t *testing.T) {
	r := New(8)
	a, b, c := job("a", 4, 100), job("b", 1, 5), job("c", 2, 10)
	for _, j := range []*Job{a, b, c} {
		require.NoError(t, r.Enqueue(j))
	}

	// Backfilling b must not disturb the relative order of a and c.
	r.Promote(b, platform.Allocation{{Lo: 0, Hi: 0}}, 0)
	waiting := r.Waiting()
	require.Len(t, waiting, 2)
	assert.Equal(t, "a", waiting[0].ID)
	assert.Equal(t, "c", waiting[1].ID)
}

func TestRunningSortedByEnd(t *testing.T) {
	r := New(8)
	for _, j := range []*Job{job("long", 2, 100), job("short", 2, 10), job("mid", 2, 50)} {
		require.NoError(t, r.Enqueue(j))
	}
	for _, id := range []string{"long", "short", "mid"} {
		for _, j := range r.Waiting() {
			if j.ID == id {
				alloc := platform.Allocation{{Lo: 0, Hi: 1}}
				r.Promote(j, alloc, 0)
			}
		}
	}

	running := r.Running()
	require.Len(t, running, 3)
	assert.Equal(t, "short", running[0].ID)
	assert.Equal(t, "mid", running[1].ID)
	assert.Equal(t, "long", running[2].ID)
}

func TestNoJobInBothSets(t *testing.T) {
	r := New(4)
	j := job("a", 1, 10)
	require.NoError(t, r.Enqueue(j))
	r.Promote(j, platform.Allocation{{Lo: 0, Hi: 0}}, 0)

	for _, w := range r.Waiting() {
		assert.NotEqual(t, "a", w.ID)
	}
	assert.Equal(t, 1, r.RunningLen())
}
