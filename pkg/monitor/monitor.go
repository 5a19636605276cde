// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor provides a read-only HTTP/WebSocket view of a live
// scheduler. It runs outside the decision loop and only ever reads
// consistent snapshots.
package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/batkit/energysched"
	"github.com/batkit/energysched/pkg/logging"
	"github.com/batkit/energysched/pkg/metrics"
)

// Source is the scheduler surface the monitor reads. *energysched.Scheduler
// satisfies it.
type Source interface {
	Snapshot() energysched.Snapshot
	Queue() []energysched.JobInfo
	Running() []energysched.JobInfo
	Stats() *metrics.Stats
}

// Server serves scheduler state over HTTP.
type Server struct {
	source   Source
	log      logging.Logger
	interval time.Duration
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStreamInterval sets the push period of the websocket stream.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) { s.interval = d }
}

// NewServer creates a monitor server over a scheduler.
func NewServer(source Source, opts ...Option) *Server {
	s := &Server{
		source:   source,
		log:      logging.NoOpLogger{},
		interval: time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/queue", s.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/v1/jobs/running", s.handleRunning).Methods(http.MethodGet)
	r.HandleFunc("/v1/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/v1/stream", s.handleStream)
	return r
}

// ListenAndServe binds the monitor on addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("monitor listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Snapshot())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	jobs := s.source.Queue()
	if jobs == nil {
		jobs = []energysched.JobInfo{}
	}
	s.writeJSON(w, jobs)
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	jobs := s.source.Running()
	if jobs == nil {
		jobs = []energysched.JobInfo{}
	}
	s.writeJSON(w, jobs)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Stats())
}

// StreamMessage is one websocket push.
type StreamMessage struct {
	Type      string               `json:"type"`
	Snapshot  energysched.Snapshot `json:"snapshot"`
	Timestamp time.Time            `json:"timestamp"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// Reader goroutine: the client never sends payloads we care about,
	// but reading is what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Push one snapshot immediately so clients see state on connect.
	if err := s.push(conn); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := s.push(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) push(conn *websocket.Conn) error {
	return conn.WriteJSON(StreamMessage{
		Type:      "snapshot",
		Snapshot:  s.source.Snapshot(),
		Timestamp: time.Now(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("monitor response write failed", "error", err.Error())
	}
}
