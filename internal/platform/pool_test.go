// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	p := NewPool(8)
	assert.Equal(t, 8, p.TotalCount())
	assert.Equal(t, 8, p.FreeCount())
	assert.Equal(t, 0, p.BusyCount())
}

func TestTryAllocateLowestFirst(t *testing.T) {
	p := NewPool(8)

	a, ok := p.TryAllocate(3)
	require.True(t, ok)
	assert.Equal(t, "0-2", a.String())
	assert.Equal(t, 5, p.FreeCount())

	b, ok := p.TryAllocate(2)
	require.True(t, ok)
	assert.Equal(t, "3-4", b.String())
}

func TestTryAllocateInsufficient(t *testing.T) {
	p := NewPool(4)
	_, ok := p.TryAllocate(5)
	assert.False(t, ok)
	assert.Equal(t, 4, p.FreeCount(), "failed allocation must not touch the pool")

	_, ok = p.TryAllocate(4)
	assert.True(t, ok)
	_, ok = p.TryAllocate(1)
	assert.False(t, ok)
}

func TestTryAllocateSpansGaps(t *testing.T) {
	p := NewPool(8)
	a, _ := p.TryAllocate(2) // 0-1
	b, _ := p.TryAllocate(2) // 2-3
	require.NoError(t, p.Release(a))

	// Free set is now 0-1,4-7. A width-4 request takes the lowest ids
	// across the gap.
	c, ok := p.TryAllocate(4)
	require.True(t, ok)
	assert.Equal(t, "0-1,4-5", c.String())
	assert.Equal(t, []int{0, 1, 4, 5}, c.Hosts())
	_ = b
}

func TestReleaseCoalesces(t *testing.T) {
	p := NewPool(8)
	a, _ := p.TryAllocate(4)
	b, _ := p.TryAllocate(4)
	assert.Equal(t, 0, p.FreeCount())

	require.NoError(t, p.Release(b))
	require.NoError(t, p.Release(a))
	assert.Equal(t, 8, p.FreeCount())
	assert.Equal(t, []Interval{{Lo: 0, Hi: 7}}, p.FreeSet())
}

func TestReleaseDoubleReleaseFails(t *testing.T) {
	p := NewPool(4)
	a, _ := p.TryAllocate(2)
	require.NoError(t, p.Release(a))

	err := p.Release(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDoubleRelease)
	assert.Equal(t, 4, p.FreeCount(), "failed release must leave the pool untouched")
}

func TestReleaseOutOfRange(t *testing.T) {
	p := NewPool(4)
	err := p.Release(Allocation{{Lo: 2, Hi: 9}})
	assert.Error(t, err)
}

func TestAllocationString(t *testing.T) {
	tests := []struct {
		name     string
		alloc    Allocation
		expected string
	}{
		{"single host", Allocation{{Lo: 3, Hi: 3}}, "3"},
		{"single range", Allocation{{Lo: 0, Hi: 3}}, "0-3"},
		{"mixed", Allocation{{Lo: 0, Hi: 1}, {Lo: 4, Hi: 4}, {Lo: 6, Hi: 7}}, "0-1,4,6-7"},
		{"empty", Allocation{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.alloc.String())
		})
	}
}

// The free set plus the union of live allocations must always partition the
// platform.
func TestPartitionInvariant(t *testing.T) {
	p := NewPool(16)
	var live []Allocation
	widths := []int{3, 1, 5, 2, 4}

	for _, w := range widths {
		a, ok := p.TryAllocate(w)
		require.True(t, ok)
		live = append(live, a)
	}
	allocated := 0
	for _, a := range live {
		allocated += a.Count()
	}
	assert.Equal(t, 16, p.FreeCount()+allocated)

	// Release in a scrambled order and re-check.
	for _, i := range []int{2, 0, 4, 1, 3} {
		require.NoError(t, p.Release(live[i]))
	}
	assert.Equal(t, 16, p.FreeCount())
	assert.Equal(t, []Interval{{Lo: 0, Hi: 15}}, p.FreeSet())
}
