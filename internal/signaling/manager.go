// Package signaling brokers WebRTC session signaling between a room's host
// and its guests.
//
// The broker only routes opaque SDP and ICE payloads. A host opens a room
// under a 4-digit code; guests join by code and take the next slot until the
// room is full. The host batches offers for every guest that joined since its
// last batch, then collects their answers in whatever order they arrive and
// returns its ICE candidate to each one. Closing the host handle ends the room
// for everyone and frees the code.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/bola/internal/alive"
)

// Manager is the registry of live sessions. Sessions are stored in a
// sync.Map so that unrelated rooms never contend on a shared lock.
type Manager struct {
	sessions sync.Map // RoomCode -> *session
	live     atomic.Int64

	generate func() RoomCode
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithCodeGenerator replaces RandomRoomCode for HostRandom.
func WithCodeGenerator(generate func() RoomCode) Option {
	return func(m *Manager) { m.generate = generate }
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		generate: RandomRoomCode,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Host opens a room under code that accepts up to maxSize guests. It never
// replaces an existing room: if code is taken it returns ErrSessionExists.
// Codes outside [MinRoomCode, MaxRoomCode] are rejected with
// ErrInvalidRoomCode.
func (m *Manager) Host(code RoomCode, maxSize int) (*Host, error) {
	if code < MinRoomCode || code > MaxRoomCode {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRoomCode, code)
	}
	if maxSize < 1 {
		return nil, ErrInvalidRoomSize
	}

	flag, tracker := alive.Pair()
	s := newSession(code, maxSize, tracker)
	if _, loaded := m.sessions.LoadOrStore(code, s); loaded {
		return nil, ErrSessionExists
	}
	m.live.Add(1)

	m.logger.Debug("session hosted", "room", code, "max_size", maxSize)
	return &Host{manager: m, session: s, flag: flag}, nil
}

// HostRandom opens a room under a random unused code. Collisions are retried
// until a code is free; the only way out without a room is ctx ending.
func (m *Manager) HostRandom(ctx context.Context, maxSize int) (*Host, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		host, err := m.Host(m.generate(), maxSize)
		if errors.Is(err, ErrSessionExists) {
			runtime.Gosched()
			continue
		}
		return host, err
	}
}

// Join takes the next slot in the room under code.
func (m *Manager) Join(code RoomCode) (*Guest, error) {
	value, ok := m.sessions.Load(code)
	if !ok {
		return nil, ErrNotFound
	}

	guest, err := value.(*session).join()
	if err != nil {
		m.logger.Debug("join rejected", "room", code, "error", err)
		return nil, err
	}

	m.logger.Debug("guest joined", "room", code, "slot", guest.slot)
	return guest, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return int(m.live.Load())
}

// Stats summarizes the registry.
type Stats struct {
	Sessions int `json:"sessions"`
	Peers    int `json:"peers"`
	Capacity int `json:"capacity"`
}

// Stats walks every live session. The result is not an atomic snapshot
// across sessions.
func (m *Manager) Stats() Stats {
	var stats Stats
	m.sessions.Range(func(_, value any) bool {
		peers, capacity := value.(*session).size()
		stats.Sessions++
		stats.Peers += peers
		stats.Capacity += capacity
		return true
	})
	return stats
}

// remove drops s from the registry. Only Host.Close calls it.
func (m *Manager) remove(s *session) {
	if m.sessions.CompareAndDelete(s.code, s) {
		m.live.Add(-1)
		m.logger.Debug("session closed", "room", s.code)
	}
}
