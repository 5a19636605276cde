// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package energysched

import (
	"sync"

	"github.com/google/uuid"

	"github.com/batkit/energysched/internal/engine"
	"github.com/batkit/energysched/internal/protocol"
	"github.com/batkit/energysched/internal/registry"
	"github.com/batkit/energysched/pkg/config"
	scherr "github.com/batkit/energysched/pkg/errors"
	"github.com/batkit/energysched/pkg/logging"
	"github.com/batkit/energysched/pkg/metrics"
)

// Name and Version identify the scheduler in the hello handshake.
const (
	Name    = "energysched"
	Version = "1.0.0"
)

// Flags selects the wire format at init time. At most one format bit may
// be set (none selects JSON); unknown bits fail initialisation.
type Flags uint32

const (
	// FlagFormatBinary selects the compact binary encoding.
	FlagFormatBinary Flags = 1 << 0

	// FlagFormatJSON selects the JSON encoding.
	FlagFormatJSON Flags = 1 << 1

	knownFlags = FlagFormatBinary | FlagFormatJSON
)

// Scheduler owns all core state for one simulation: host pool, job
// registry, budget controller and codec. It is created empty; Init brings
// it to life and Deinit tears it down.
type Scheduler struct {
	mu sync.Mutex

	log       logging.Logger
	collector metrics.Collector

	sessionID   string
	initialized bool
	cfg         *config.Config
	codec       protocol.Codec
	engine      *engine.Engine
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Scheduler) { s.collector = c }
}

// New creates an uninitialised scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:       logging.NoOpLogger{},
		collector: metrics.NewInMemoryCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates all core state from the opaque parameter blob and the
// format flags. It returns an error (the simulator aborts) on unknown
// flags or an invalid configuration.
func (s *Scheduler) Init(params []byte, flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return scherr.New(scherr.ErrorCodeAlreadyInitialized, "scheduler already initialised")
	}

	format, err := resolveFormat(flags)
	if err != nil {
		return err
	}

	cfg, err := config.Parse(params)
	if err != nil {
		return scherr.Wrap(scherr.ErrorCodeInvalidConfiguration, "invalid scheduler parameters", err)
	}

	codec, err := protocol.NewCodec(format)
	if err != nil {
		return scherr.Wrap(scherr.ErrorCodeUnknownFormat, "no codec for format", err)
	}

	s.sessionID = uuid.NewString()
	s.cfg = cfg
	s.codec = codec
	s.engine = engine.New(cfg, engine.Options{
		Logger:  s.log.With("session", s.sessionID, "policy", string(cfg.Policy)),
		Metrics: s.collector,
		Name:    Name,
		Version: Version,
	})
	s.initialized = true

	s.log.Info("scheduler initialised",
		"session", s.sessionID,
		"policy", string(cfg.Policy),
		"budget_fraction", cfg.BudgetFraction)
	return nil
}

// TakeDecisions runs one tick of the decision loop: decode the event
// batch, schedule, encode the decision batch. A returned error is fatal
// and instructs the simulator to abort.
func (s *Scheduler) TakeDecisions(in []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, scherr.New(scherr.ErrorCodeNotInitialized, "scheduler not initialised")
	}

	batch, err := s.codec.DecodeEvents(in)
	if err != nil {
		return nil, scherr.NewDecodeFailed(err)
	}

	out, err := s.engine.HandleBatch(batch)
	if err != nil {
		return nil, err
	}

	data, err := s.codec.EncodeDecisions(out)
	if err != nil {
		return nil, scherr.Wrap(scherr.ErrorCodeEncodeFailed, "decision batch could not be encoded", err)
	}
	return data, nil
}

// Deinit releases all core state. The scheduler can be initialised again
// for a fresh simulation; nothing persists across the cycle.
func (s *Scheduler) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	s.sessionID = ""
	s.cfg = nil
	s.codec = nil
	s.engine = nil
	s.collector.Reset()
	return nil
}

func resolveFormat(flags Flags) (protocol.Format, error) {
	if unknown := flags &^ knownFlags; unknown != 0 {
		return 0, scherr.NewUnknownFormat(uint32(unknown))
	}
	switch flags & knownFlags {
	case FlagFormatBinary:
		return protocol.FormatBinary, nil
	case FlagFormatJSON, 0:
		// JSON is the default when no format bit is set.
		return protocol.FormatJSON, nil
	default:
		return 0, scherr.New(scherr.ErrorCodeUnknownFormat, "conflicting wire format flags")
	}
}

// Snapshot is a consistent view of the scheduler for the monitor.
type Snapshot struct {
	SessionID   string       `json:"session_id"`
	Initialized bool         `json:"initialized"`
	Engine      engine.State `json:"engine"`
}

// Snapshot captures the current state. Safe to call from another
// goroutine; it serialises against the decision loop.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:   s.sessionID,
		Initialized: s.initialized,
	}
	if s.engine != nil {
		snap.Engine = s.engine.State()
	}
	return snap
}

// JobInfo is the monitor-facing description of a job.
type JobInfo struct {
	ID         string  `json:"id"`
	Width      int     `json:"width"`
	Walltime   float64 `json:"walltime"`
	SubmitTime float64 `json:"submit_time"`
	Hosts      string  `json:"hosts,omitempty"`
	StartTime  float64 `json:"start_time,omitempty"`
	EndTime    float64 `json:"projected_end,omitempty"`
}

// Queue returns the waiting jobs in submission order.
func (s *Scheduler) Queue() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return jobInfos(s.engine.Waiting())
}

// Running returns the running jobs sorted by projected end.
func (s *Scheduler) Running() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return jobInfos(s.engine.Active())
}

func jobInfos(jobs []*registry.Job) []JobInfo {
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{
			ID:         j.ID,
			Width:      j.Width,
			Walltime:   j.Walltime,
			SubmitTime: j.SubmitTime,
		}
		if j.Running() {
			info.Hosts = j.Allocation.String()
			info.StartTime = j.StartTime
			info.EndTime = j.EndTime
		}
		out = append(out, info)
	}
	return out
}

// Stats returns the metrics snapshot.
func (s *Scheduler) Stats() *metrics.Stats {
	return s.collector.GetStats()
}
