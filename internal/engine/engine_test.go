// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batkit/energysched/internal/protocol"
	"github.com/batkit/energysched/pkg/config"
	"github.com/batkit/energysched/pkg/metrics"
)

func newTestEngine(policy config.Policy, mutate ...func(*config.Config)) (*Engine, *metrics.InMemoryCollector) {
	cfg := config.NewDefault()
	cfg.Policy = policy
	for _, m := range mutate {
		m(cfg)
	}
	collector := metrics.NewInMemoryCollector()
	e := New(cfg, Options{Metrics: collector, Name: "energysched", Version: "test"})
	return e, collector
}

func run(t *testing.T, e *Engine, now float64, events ...protocol.Event) *protocol.DecisionBatch {
	t.Helper()
	out, err := e.HandleBatch(&protocol.EventBatch{Now: now, Events: events})
	require.NoError(t, err)
	return out
}

func begins(hosts int) protocol.Event {
	return protocol.Event{Type: protocol.EventSimulationBegins, HostCount: hosts}
}

func submit(id string, width int, walltime float64) protocol.Event {
	return protocol.Event{Type: protocol.EventJobSubmitted, JobID: id, Width: width, Walltime: walltime}
}

func completed(id string) protocol.Event {
	return protocol.Event{Type: protocol.EventJobCompleted, JobID: id}
}

// executions maps launched job ids to their allocation strings.
func executions(out *protocol.DecisionBatch) map[string]string {
	m := make(map[string]string)
	for _, d := range out.Decisions {
		if d.Type == protocol.DecisionExecuteJob {
			m[d.JobID] = d.Hosts
		}
	}
	return m
}

func rejections(out *protocol.DecisionBatch) []string {
	var ids []string
	for _, d := range out.Decisions {
		if d.Type == protocol.DecisionRejectJob {
			ids = append(ids, d.JobID)
		}
	}
	return ids
}

func TestHelloHandshake(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)
	out := run(t, e, 0, protocol.Event{Type: protocol.EventHello})

	require.Len(t, out.Decisions, 1)
	assert.Equal(t, protocol.DecisionHello, out.Decisions[0].Type)
	assert.Equal(t, "energysched", out.Decisions[0].Name)
	assert.Equal(t, "test", out.Decisions[0].Version)
}

// Scenario: a job that fits launches in the tick that submitted it.
func TestPowerCapImmediateFit(t *testing.T) {
	// H=4, full fraction: cap = 4*200 = 800 W. Width 2 projects 600 W.
	e, _ := newTestEngine(config.PolicyPowerCap)
	out := run(t, e, 0, begins(4), submit("j1", 2, 10))

	assert.Equal(t, map[string]string{"j1": "0-1"}, executions(out))
	state := e.State()
	assert.Equal(t, 2, state.FreeHosts)
	assert.Equal(t, 1, state.RunningJobs)
}

// Scenario: the cap is memoryless, a too-hungry head stays queued forever.
func TestPowerCapWithholds(t *testing.T) {
	e, _ := newTestEngine(config.PolicyPowerCap, func(c *config.Config) { c.BudgetFraction = 0.75 })

	// cap = 600 W; a width-4 launch projects 800 W.
	out := run(t, e, 0, begins(4), submit("j1", 4, 10))
	assert.Empty(t, executions(out))

	for _, now := range []float64{10, 100, 1000} {
		out = run(t, e, now)
		assert.Empty(t, executions(out))
	}
	state := e.State()
	assert.Equal(t, 1, state.QueueDepth)
	assert.Equal(t, 4, state.FreeHosts)
}

// Scenario: EASY backfill. With the platform partly held, short jobs slip
// past a wide head that must wait, and both finish before it starts.
func TestEASYBackfill(t *testing.T) {
	e, collector := newTestEngine(config.PolicyFCFS)

	out := run(t, e, 0,
		begins(4),
		submit("j0", 2, 100),
		submit("j1", 4, 100),
		submit("j2", 2, 5),
		submit("j3", 2, 50),
	)

	// j0 launches head-of-line; j1 reserves (expected start 100 from j0's
	// projected end); j2 fits before 100 and backfills; j3 would too, but
	// no hosts remain this tick.
	execs := executions(out)
	assert.Equal(t, "0-1", execs["j0"])
	assert.Equal(t, "2-3", execs["j2"])
	assert.NotContains(t, execs, "j1")
	assert.NotContains(t, execs, "j3")

	state := e.State()
	assert.Equal(t, "j1", state.ReservedJob)
	assert.Equal(t, 100.0, state.ReservedStart)

	// j2 completes at 5; j3 (5+50 <= 100) backfills onto the freed pair.
	out = run(t, e, 5, completed("j2"))
	assert.Equal(t, map[string]string{"j3": "2-3"}, executions(out))

	// j3 completes at 55; the head still cannot run (j0 holds 0-1).
	out = run(t, e, 55, completed("j3"))
	assert.Empty(t, executions(out))

	// j0 completes at 100: the reserved head finally launches, alone.
	out = run(t, e, 100, completed("j0"))
	assert.Equal(t, map[string]string{"j1": "0-3"}, executions(out))
	state = e.State()
	assert.Empty(t, state.ReservedJob)
	assert.Equal(t, 0, state.QueueDepth)

	stats := collector.GetStats()
	assert.Equal(t, int64(4), stats.Launches)
	assert.Equal(t, int64(2), stats.Backfills)
}

// Scenario: the lookahead rule admits a job whose own runtime replenishes
// enough energy, even with the counter at zero.
func TestEnergyBudgetLookaheadLaunch(t *testing.T) {
	// H=2: rate = 400 W; counter starts empty; E_job = 2000 J against a
	// 4000 J lookahead.
	e, _ := newTestEngine(config.PolicyEnergyBudget)
	out := run(t, e, 0, begins(2), submit("j1", 1, 10))

	assert.Equal(t, map[string]string{"j1": "0"}, executions(out))
}

// Scenario: the ReducePC reservation slows replenishment instead of
// setting energy aside, and the residual flow still admits small backfill.
func TestReducePCReservationAndBackfill(t *testing.T) {
	e, _ := newTestEngine(config.PolicyReducePC, func(c *config.Config) { c.SeedInterval = 600 })

	// j0 takes half the platform; the wide head must wait for it.
	out := run(t, e, 0, begins(4), submit("j0", 2, 50), submit("j1", 4, 100))
	execs := executions(out)
	assert.Equal(t, "0-1", execs["j0"])
	assert.NotContains(t, execs, "j1")

	state := e.State()
	assert.Equal(t, "j1", state.ReservedJob)
	assert.Equal(t, 50.0, state.ReservedStart)
	// rNominal = 800 W; 800 - 80000/50 is below the 0.3 floor -> 240 W.
	assert.True(t, state.Budget.ReservationActive)
	assert.InDelta(t, 240, state.Budget.RateCurrent, 1e-9)

	// A one-host job arriving later fits inside the reduced envelope and
	// finishes well before the reserved start.
	out = run(t, e, 1, submit("j2", 1, 20))
	assert.Equal(t, map[string]string{"j2": "2"}, executions(out))
	assert.InDelta(t, 240, e.State().Budget.RateCurrent, 1e-9)

	out = run(t, e, 21, completed("j2"))
	assert.Empty(t, executions(out))

	// j0 completes at the reserved start: the reservation window closes,
	// the head launches and the nominal rate is restored.
	out = run(t, e, 50, completed("j0"))
	assert.Equal(t, map[string]string{"j1": "0-3"}, executions(out))
	state = e.State()
	assert.Empty(t, state.ReservedJob)
	assert.False(t, state.Budget.ReservationActive)
	assert.Equal(t, 800.0, state.Budget.RateCurrent)
}

// Scenario: completion launches the reserved head mid-window and clears
// the reduced rate through the runnable path, not the timeout path.
func TestReducePCEarlyCompletionRestoresRate(t *testing.T) {
	e, _ := newTestEngine(config.PolicyReducePC, func(c *config.Config) { c.SeedInterval = 600 })

	run(t, e, 0, begins(4), submit("j0", 2, 10), submit("j1", 4, 20))
	require.Equal(t, "j1", e.State().ReservedJob)
	require.True(t, e.State().Budget.ReservationActive)

	// j0 finishes early at t=4, inside the reservation window.
	out := run(t, e, 4, completed("j0"))
	assert.Equal(t, map[string]string{"j1": "0-3"}, executions(out))
	state := e.State()
	assert.Empty(t, state.ReservedJob)
	assert.False(t, state.Budget.ReservationActive)
	assert.Equal(t, 800.0, state.Budget.RateCurrent)
}

func TestRejectOversizedSubmission(t *testing.T) {
	e, collector := newTestEngine(config.PolicyFCFS)
	out := run(t, e, 0, begins(4), submit("wide", 5, 10))

	assert.Equal(t, []string{"wide"}, rejections(out))
	assert.Equal(t, 0, e.State().QueueDepth)
	assert.Equal(t, int64(1), collector.GetStats().Rejections)
}

func TestFullWidthJobRunsAlone(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	out := run(t, e, 0, begins(4), submit("j0", 1, 10), submit("big", 4, 10), submit("j2", 1, 3))
	execs := executions(out)
	assert.Contains(t, execs, "j0")
	assert.NotContains(t, execs, "big")
	// j2 fits before big's expected start (10) and backfills.
	assert.Contains(t, execs, "j2")

	// Only when the platform is completely free does the full-width job go.
	out = run(t, e, 3, completed("j2"))
	assert.Empty(t, executions(out))
	out = run(t, e, 10, completed("j0"))
	assert.Equal(t, map[string]string{"big": "0-3"}, executions(out))
}

func TestZeroWalltimeJob(t *testing.T) {
	e, _ := newTestEngine(config.PolicyEnergyBudget)

	out := run(t, e, 0, begins(4), submit("instant", 1, 0))
	require.Contains(t, executions(out), "instant")

	// The simulator can deliver the completion at the same timestamp.
	out = run(t, e, 0, completed("instant"))
	assert.Empty(t, executions(out))
	state := e.State()
	assert.Equal(t, 4, state.FreeHosts)
	assert.Equal(t, 0, state.RunningJobs)
}

func TestEmptyBatchIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(config.PolicyEnergyBudget, func(c *config.Config) { c.SeedInterval = 10 })

	run(t, e, 0, begins(4), submit("j0", 2, 100))
	before := e.State()

	out := run(t, e, 30)
	assert.Empty(t, out.Decisions)

	after := e.State()
	assert.Equal(t, before.FreeHosts, after.FreeHosts)
	assert.Equal(t, before.QueueDepth, after.QueueDepth)
	assert.Equal(t, before.RunningJobs, after.RunningJobs)
	// Energy state advances with elapsed time only.
	assert.NotEqual(t, before.Budget.Consumed, after.Budget.Consumed)
}

func TestSubmitThenCompleteRoundTrip(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	run(t, e, 0, begins(8))
	pre := e.State()

	run(t, e, 1, submit("j1", 3, 10))
	run(t, e, 11, completed("j1"))

	post := e.State()
	assert.Equal(t, pre.FreeHosts, post.FreeHosts)
	assert.Equal(t, pre.QueueDepth, post.QueueDepth)
	assert.Equal(t, pre.RunningJobs, post.RunningJobs)
}

func TestDuplicateCompletionIgnored(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	run(t, e, 0, begins(4), submit("j1", 2, 5))
	run(t, e, 5, completed("j1"))

	// Second delivery of the same completion is silently tolerated.
	out := run(t, e, 6, completed("j1"))
	assert.Empty(t, out.Decisions)
	assert.Equal(t, 4, e.State().FreeHosts)
}

func TestUnknownEventIgnored(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	out := run(t, e, 0,
		begins(4),
		protocol.Event{Type: "network_weather_report"},
		submit("j1", 1, 5),
	)
	assert.Contains(t, executions(out), "j1")
}

func TestAllStaticJobsSubmittedTriggersSweep(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	run(t, e, 0, begins(4), submit("j0", 4, 10), submit("j1", 1, 2))
	// j1 could not start at t=0 (no free hosts) and holds the reservation.
	// The batch that completes j0 also carries the informational event; the
	// event is accepted and the tick's sweep launches j1.
	out := run(t, e, 10, completed("j0"), protocol.Event{Type: protocol.EventAllStaticJobsSubmitted})
	assert.Contains(t, executions(out), "j1")
}

func TestSubmitBeforeBeginIsFatal(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	_, err := e.HandleBatch(&protocol.EventBatch{Now: 0, Events: []protocol.Event{submit("j1", 1, 1)}})
	assert.Error(t, err)
}

// The free set and the running allocations partition the platform after
// every tick of a busy little workload.
func TestPartitionInvariantUnderChurn(t *testing.T) {
	e, _ := newTestEngine(config.PolicyEnergyBudget, func(c *config.Config) { c.SeedInterval = 600 })

	run(t, e, 0, begins(8),
		submit("a", 3, 10),
		submit("b", 2, 20),
		submit("c", 4, 5),
		submit("d", 1, 1),
	)

	check := func() {
		state := e.State()
		busy := 0
		for _, j := range e.Active() {
			busy += j.Allocation.Count()
		}
		assert.Equal(t, state.HostCount, state.FreeHosts+busy)
	}
	check()

	for _, step := range []struct {
		now float64
		id  string
	}{{1, "d"}, {10, "a"}, {15, "c"}, {30, "b"}} {
		run(t, e, step.now, completed(step.id))
		check()
	}
}

func TestDecisionOrderFollowsProcessing(t *testing.T) {
	e, _ := newTestEngine(config.PolicyFCFS)

	out := run(t, e, 0,
		protocol.Event{Type: protocol.EventHello},
		begins(2),
		submit("wide", 3, 1),
		submit("j1", 1, 1),
	)

	require.Len(t, out.Decisions, 3)
	assert.Equal(t, protocol.DecisionHello, out.Decisions[0].Type)
	assert.Equal(t, protocol.DecisionRejectJob, out.Decisions[1].Type)
	assert.Equal(t, protocol.DecisionExecuteJob, out.Decisions[2].Type)
}
