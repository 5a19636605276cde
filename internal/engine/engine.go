// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the EASY-backfilling decision routine: head-of
// line FCFS with a reservation for the queue head, then backfill of later
// jobs that provably cannot delay it, all gated by a budget controller.
package engine

import (
	"github.com/batkit/energysched/internal/budget"
	"github.com/batkit/energysched/internal/energy"
	"github.com/batkit/energysched/internal/platform"
	"github.com/batkit/energysched/internal/protocol"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
	scherr "github.com/batkit/energysched/pkg/errors"
	"github.com/batkit/energysched/pkg/logging"
	"github.com/batkit/energysched/pkg/metrics"
)

// Options carries the engine's collaborators and identification.
type Options struct {
	Logger  logging.Logger
	Metrics metrics.Collector
	Name    string
	Version string
}

// Engine consumes event batches and produces decision batches. It is
// single-threaded and cooperative: one call sees one frozen timestamp,
// and the caller drives time forward monotonically.
type Engine struct {
	cfg     *config.Config
	params  energy.Params
	log     logging.Logger
	metrics metrics.Collector
	name    string
	version string

	pool *platform.Pool
	reg  *registry.Registry
	ctrl budget.Controller

	// The engine owns the reservation bookkeeping (which job, expected
	// start); controllers own its energetics.
	reservedID    string
	reservedStart float64

	began bool
	now   float64
}

// New creates an engine. The host pool, registry and controller come to
// life when the simulation_begins event arrives.
func New(cfg *config.Config, opts Options) *Engine {
	e := &Engine{
		cfg:     cfg,
		params:  energy.Params{PIdle: cfg.PIdle, PComp: cfg.PComp},
		log:     opts.Logger,
		metrics: opts.Metrics,
		name:    opts.Name,
		version: opts.Version,
	}
	if e.log == nil {
		e.log = logging.NoOpLogger{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NoOpCollector{}
	}
	return e
}

// HandleBatch runs one tick: ingest every event, advance the controller,
// then sweep the queue in the policy's order. Decisions come back in the
// order they were taken.
func (e *Engine) HandleBatch(batch *protocol.EventBatch) (*protocol.DecisionBatch, error) {
	e.now = batch.Now
	out := &protocol.DecisionBatch{Now: batch.Now}

	// Phase 1: ingest events, in order.
	for i := range batch.Events {
		if err := e.ingest(&batch.Events[i], out); err != nil {
			return nil, err
		}
	}

	if !e.began {
		// Nothing to schedule before the platform exists; a hello reply
		// may already be in the batch.
		return out, nil
	}

	// Phase 2: advance the controller.
	e.ctrl.OnTick(e.now)

	// Phase 3: eager launch sweep. The counter-based policies walk the
	// whole queue head to tail; both backfill and the head may advance
	// here without any reservation.
	if e.ctrl.EagerLaunch() {
		for _, j := range e.reg.Waiting() {
			adm := e.ctrl.Admit(j, e.now, e.pool)
			if !adm.OK {
				e.metrics.RecordWithheld(adm.Reason)
				continue
			}
			if e.allocateAndLaunch(j, out) && j.ID == e.reservedID {
				e.clearReservation()
			}
		}
	}

	// Phase 4: head launches and reservation. Admissible heads launch in
	// FCFS order; the first blocked head gets the reservation that the
	// backfill sweep below must honour.
	for e.reservedID == "" {
		head := e.reg.Head()
		if head == nil {
			break
		}
		adm := e.ctrl.Admit(head, e.now, e.pool)
		if !adm.OK {
			e.metrics.RecordWithheld(adm.Reason)
			e.reserve(head)
			break
		}
		if !e.allocateAndLaunch(head, out) {
			e.reserve(head)
			break
		}
	}

	// Phase 5: backfill sweep over the non-head waiting jobs.
	for _, j := range e.reg.Backfill() {
		if e.pool.FreeCount() < j.Width {
			continue
		}
		adm := e.ctrl.Admit(j, e.now, e.pool)
		if !adm.OK {
			e.metrics.RecordWithheld(adm.Reason)
			continue
		}
		if e.reservedID != "" && e.now+j.Walltime > e.reservedStart {
			// Would overlap the reserved start; the candidate must prove
			// it frees its hosts in time.
			continue
		}
		e.allocateAndLaunch(j, out)
	}

	// Phase 6: reserved-head recheck.
	if e.reservedID != "" {
		head := e.reg.Head()
		if head == nil || head.ID != e.reservedID {
			// The reserved job left the queue through another path.
			e.clearReservation()
		} else if adm := e.ctrl.Admit(head, e.now, e.pool); adm.OK {
			if e.allocateAndLaunch(head, out) {
				e.clearReservation()
			}
		}
	}

	st := e.ctrl.Stats()
	e.metrics.SetEnergyState(st.Available, st.Consumed)
	return out, nil
}

func (e *Engine) ingest(ev *protocol.Event, out *protocol.DecisionBatch) error {
	e.metrics.RecordEvent(string(ev.Type))

	switch ev.Type {
	case protocol.EventHello:
		e.emit(out, protocol.Decision{
			Type:    protocol.DecisionHello,
			Name:    e.name,
			Version: e.version,
		})

	case protocol.EventSimulationBegins:
		return e.begin(ev.HostCount)

	case protocol.EventJobSubmitted:
		return e.submit(ev, out)

	case protocol.EventJobCompleted:
		return e.complete(ev.JobID)

	case protocol.EventAllStaticJobsSubmitted:
		// Informational; the sweep below is the scheduling attempt.

	default:
		e.log.Debug("ignoring unknown event type", "type", string(ev.Type))
	}
	return nil
}

func (e *Engine) begin(hostCount int) error {
	e.pool = platform.NewPool(hostCount)
	e.reg = registry.New(hostCount)

	ctrl, err := budget.New(e.cfg, e.params, e.pool, e.reg)
	if err != nil {
		return scherr.Wrap(scherr.ErrorCodeInvalidConfiguration, "controller construction failed", err)
	}
	e.ctrl = ctrl
	e.reservedID = ""
	e.reservedStart = 0
	e.began = true

	e.log.Info("simulation begins",
		"hosts", hostCount,
		"policy", string(e.ctrl.Policy()),
		"p_idle", e.params.PIdle,
		"p_comp", e.params.PComp)
	return nil
}

func (e *Engine) submit(ev *protocol.Event, out *protocol.DecisionBatch) error {
	if !e.began {
		return scherr.New(scherr.ErrorCodeNotInitialized, "job submitted before simulation_begins")
	}

	j := &registry.Job{
		ID:         ev.JobID,
		Width:      ev.Width,
		Walltime:   ev.Walltime,
		SubmitTime: e.now,
	}
	if err := e.reg.Enqueue(j); err != nil {
		e.log.Warn("rejecting oversized job", "job_id", j.ID, "width", j.Width)
		e.metrics.RecordRejection(j.ID)
		e.emit(out, protocol.Decision{Type: protocol.DecisionRejectJob, JobID: j.ID})
		return nil
	}
	e.log.Debug("job queued", "job_id", j.ID, "width", j.Width, "walltime", j.Walltime)
	return nil
}

func (e *Engine) complete(id string) error {
	if !e.began {
		return scherr.New(scherr.ErrorCodeNotInitialized, "job completed before simulation_begins")
	}

	j, ok := e.reg.Complete(id)
	if !ok {
		// Duplicate or unknown delivery is tolerated.
		e.log.Warn("completion for unknown job ignored", "job_id", id)
		return nil
	}
	if err := e.pool.Release(j.Allocation); err != nil {
		return scherr.Wrap(scherr.ErrorCodeDoubleRelease, "host release failed", err).ForJob(id)
	}
	e.ctrl.OnComplete(j, e.now)
	if id == e.reservedID {
		e.clearReservation()
	}
	e.log.Debug("job completed", "job_id", id, "hosts", j.Allocation.String())
	return nil
}

// allocateAndLaunch is the single dispatch path: the pool has the final
// word, and a failed allocation leaves the candidate queued for the next
// tick.
func (e *Engine) allocateAndLaunch(j *registry.Job, out *protocol.DecisionBatch) bool {
	alloc, ok := e.pool.TryAllocate(j.Width)
	if !ok {
		e.log.Debug("allocation failed, job stays queued", "job_id", j.ID, "width", j.Width)
		return false
	}

	backfilled := e.reg.Head() != j
	e.reg.Promote(j, alloc, e.now)
	e.ctrl.OnLaunch(j, e.now)
	e.metrics.RecordLaunch(j.ID, backfilled)
	e.emit(out, protocol.Decision{
		Type:  protocol.DecisionExecuteJob,
		JobID: j.ID,
		Hosts: alloc.String(),
	})
	e.log.Debug("job launched",
		"job_id", j.ID,
		"hosts", alloc.String(),
		"backfilled", backfilled,
		"projected_end", j.EndTime)
	return true
}

func (e *Engine) reserve(head *registry.Job) {
	expected := e.ctrl.ExpectedStart(head, e.now, e.hostAvailableTime(head))
	if expected < e.now {
		expected = e.now
	}
	e.reservedID = head.ID
	e.reservedStart = expected
	e.ctrl.PivotNotRunnable(head, e.now, expected)
	e.log.Debug("reservation installed",
		"job_id", head.ID,
		"expected_start", expected)
}

func (e *Engine) clearReservation() {
	e.reservedID = ""
	e.reservedStart = 0
	e.ctrl.PivotRunnable()
}

// hostAvailableTime returns the earliest time at which enough hosts are
// projected free for the job: walk running jobs by projected end and
// accumulate their allocations onto the free count.
func (e *Engine) hostAvailableTime(j *registry.Job) float64 {
	free := e.pool.FreeCount()
	if free >= j.Width {
		return e.now
	}
	for _, r := range e.reg.Running() {
		free += r.Allocation.Count()
		if free >= j.Width {
			if r.EndTime > e.now {
				return r.EndTime
			}
			return e.now
		}
	}
	// Unreachable for enqueued jobs: width never exceeds the platform.
	return e.now
}

func (e *Engine) emit(out *protocol.DecisionBatch, d protocol.Decision) {
	out.Decisions = append(out.Decisions, d)
	e.metrics.RecordDecision(string(d.Type))
}

// State is a consistent snapshot of the engine for the monitor and tests.
type State struct {
	Began         bool          `json:"simulation_started"`
	Now           float64       `json:"now"`
	HostCount     int           `json:"host_count"`
	FreeHosts     int           `json:"free_hosts"`
	QueueDepth    int           `json:"queue_depth"`
	RunningJobs   int           `json:"running_jobs"`
	ReservedJob   string        `json:"reserved_job,omitempty"`
	ReservedStart float64       `json:"reserved_start,omitempty"`
	Budget        budget.Stats  `json:"budget"`
	Policy        config.Policy `json:"policy"`
}

// State snapshots the engine.
func (e *Engine) State() State {
	s := State{
		Began:  e.began,
		Now:    e.now,
		Policy: e.cfg.Policy,
	}
	if !e.began {
		return s
	}
	s.HostCount = e.pool.TotalCount()
	s.FreeHosts = e.pool.FreeCount()
	s.QueueDepth = e.reg.QueueLen()
	s.RunningJobs = e.reg.RunningLen()
	s.ReservedJob = e.reservedID
	s.ReservedStart = e.reservedStart
	s.Budget = e.ctrl.Stats()
	return s
}

// Waiting exposes the queued jobs in submission order for the monitor.
func (e *Engine) Waiting() []*registry.Job {
	if !e.began {
		return nil
	}
	return e.reg.Waiting()
}

// Active exposes the running jobs sorted by projected end for the monitor.
func (e *Engine) Active() []*registry.Job {
	if !e.began {
		return nil
	}
	return e.reg.Running()
}
