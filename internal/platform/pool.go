// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform tracks the free/busy state of the simulated host pool
// and produces host allocations for launching jobs.
package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDoubleRelease is returned when a released allocation overlaps the free
// set. Double release is a programming error and is never absorbed.
var ErrDoubleRelease = errors.New("platform: host released twice")

// Interval is an inclusive range of host ids.
type Interval struct {
	Lo int
	Hi int
}

func (iv Interval) count() int {
	return iv.Hi - iv.Lo + 1
}

// Allocation is a disjoint, ascending set of host id intervals. Its
// cardinality equals the width of the job it was produced for.
type Allocation []Interval

// Count returns the number of hosts in the allocation.
func (a Allocation) Count() int {
	n := 0
	for _, iv := range a {
		n += iv.count()
	}
	return n
}

// Hosts expands the allocation to individual host ids, ascending.
func (a Allocation) Hosts() []int {
	ids := make([]int, 0, a.Count())
	for _, iv := range a {
		for h := iv.Lo; h <= iv.Hi; h++ {
			ids = append(ids, h)
		}
	}
	return ids
}

// String renders the compact ascending form the simulator accepts:
// single ids separated by commas, runs collapsed to "lo-hi".
func (a Allocation) String() string {
	var b strings.Builder
	for i, iv := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		if iv.Lo == iv.Hi {
			b.WriteString(strconv.Itoa(iv.Lo))
		} else {
			b.WriteString(strconv.Itoa(iv.Lo))
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(iv.Hi))
		}
	}
	return b.String()
}

// Pool maintains the free-host set for a platform of fixed size. The free
// set is kept as a sorted list of disjoint, non-adjacent intervals, which
// keeps "take k lowest" and "return set" cheap and makes the wire form of
// an allocation fall out directly.
type Pool struct {
	total int
	free  []Interval
}

// NewPool creates a pool with all hosts {0,…,hostCount-1} free.
func NewPool(hostCount int) *Pool {
	p := &Pool{total: hostCount}
	if hostCount > 0 {
		p.free = []Interval{{Lo: 0, Hi: hostCount - 1}}
	}
	return p
}

// TotalCount returns the platform host count.
func (p *Pool) TotalCount() int {
	return p.total
}

// FreeCount returns the number of idle hosts.
func (p *Pool) FreeCount() int {
	n := 0
	for _, iv := range p.free {
		n += iv.count()
	}
	return n
}

// BusyCount returns the number of allocated hosts.
func (p *Pool) BusyCount() int {
	return p.total - p.FreeCount()
}

// TryAllocate removes width hosts from the free set, lowest ids first, and
// returns them. Returns ok=false without side effects when fewer than width
// hosts are free.
func (p *Pool) TryAllocate(width int) (Allocation, bool) {
	if width <= 0 || p.FreeCount() < width {
		return nil, false
	}

	var alloc Allocation
	remaining := width
	for remaining > 0 {
		head := p.free[0]
		if head.count() <= remaining {
			alloc = append(alloc, head)
			remaining -= head.count()
			p.free = p.free[1:]
			continue
		}
		take := Interval{Lo: head.Lo, Hi: head.Lo + remaining - 1}
		alloc = append(alloc, take)
		p.free[0].Lo = take.Hi + 1
		remaining = 0
	}
	return alloc, true
}

// Release returns an allocation's hosts to the free set. Any overlap with
// hosts that are already free, or ids outside the platform, is reported as
// an error and the pool is left untouched.
func (p *Pool) Release(a Allocation) error {
	for _, iv := range a {
		if iv.Lo < 0 || iv.Hi >= p.total || iv.Lo > iv.Hi {
			return fmt.Errorf("platform: release of invalid interval %d-%d", iv.Lo, iv.Hi)
		}
		for _, free := range p.free {
			if iv.Lo <= free.Hi && free.Lo <= iv.Hi {
				return fmt.Errorf("%w: interval %d-%d overlaps free set", ErrDoubleRelease, iv.Lo, iv.Hi)
			}
		}
	}

	merged := make([]Interval, 0, len(p.free)+len(a))
	merged = append(merged, p.free...)
	merged = append(merged, a...)
	sortIntervals(merged)
	p.free = coalesce(merged)
	return nil
}

// FreeSet returns a copy of the current free intervals, ascending.
func (p *Pool) FreeSet() []Interval {
	out := make([]Interval, len(p.free))
	copy(out, p.free)
	return out
}

func sortIntervals(ivs []Interval) {
	// Insertion sort: interval lists here are short-lived and tiny.
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].Lo < ivs[j-1].Lo; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

func coalesce(sorted []Interval) []Interval {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Lo <= last.Hi+1 {
			if iv.Hi > last.Hi {
				last.Hi = iv.Hi
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
