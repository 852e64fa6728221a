// Package presence implements the heartbeat liveness gate. Every heartbeat
// refreshes a session's timestamp; operations with external side effects call
// [Gate.Check] first and are refused while the heartbeat is stale. A stale
// session is not closed and recovers on its next heartbeat.
package presence

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStaleAfter is the staleness threshold used when none is configured.
const DefaultStaleAfter = 15 * time.Second

// CodeStale is the stable client-facing code for a stale session.
const CodeStale = "PRESENCE_STALE"

// ErrStale is returned by [Gate.Check] when the last heartbeat is too old or
// the session never sent one.
var ErrStale = errors.New("presence: heartbeat stale")

// Ack acknowledges a heartbeat.
type Ack struct {
	Seq      int64
	ServerTS time.Time
}

// Record is the presence state of one session.
type Record struct {
	SessionID     string
	LastHeartbeat time.Time
}

// Gate tracks heartbeats per session. It is safe for concurrent use and
// never touches conversation state.
type Gate struct {
	now        func() time.Time
	staleAfter atomic.Int64

	mu      sync.RWMutex
	records map[string]Record
}

// Option is a functional option for [New].
type Option func(*Gate)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithStaleAfter sets the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(g *Gate) { g.SetStaleAfter(d) }
}

// New returns an empty Gate.
func New(opts ...Option) *Gate {
	g := &Gate{now: time.Now, records: make(map[string]Record)}
	g.staleAfter.Store(int64(DefaultStaleAfter))
	for _, o := range opts {
		o(g)
	}
	return g
}

// StaleAfter returns the current staleness threshold.
func (g *Gate) StaleAfter() time.Duration { return time.Duration(g.staleAfter.Load()) }

// SetStaleAfter replaces the staleness threshold. Non-positive values are
// ignored.
func (g *Gate) SetStaleAfter(d time.Duration) {
	if d > 0 {
		g.staleAfter.Store(int64(d))
	}
}

// Touch marks sessionID live without a heartbeat message, e.g. at auth.
func (g *Gate) Touch(sessionID string) {
	now := g.now()
	g.mu.Lock()
	g.records[sessionID] = Record{SessionID: sessionID, LastHeartbeat: now}
	g.mu.Unlock()
}

// Heartbeat records a heartbeat and returns the acknowledgement echoing seq.
func (g *Gate) Heartbeat(sessionID string, seq int64) Ack {
	now := g.now()
	g.mu.Lock()
	g.records[sessionID] = Record{SessionID: sessionID, LastHeartbeat: now}
	g.mu.Unlock()
	return Ack{Seq: seq, ServerTS: now}
}

// Check returns nil if sessionID heartbeated within the threshold, or an
// error wrapping [ErrStale].
func (g *Gate) Check(sessionID string) error {
	g.mu.RLock()
	rec, ok := g.records[sessionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no heartbeat for session %s", ErrStale, sessionID)
	}
	elapsed := g.now().Sub(rec.LastHeartbeat)
	if limit := g.StaleAfter(); elapsed > limit {
		return fmt.Errorf("%w: last heartbeat %s ago (limit %s)", ErrStale, elapsed.Round(time.Millisecond), limit)
	}
	return nil
}

// Lookup returns the record for sessionID.
func (g *Gate) Lookup(sessionID string) (Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[sessionID]
	return rec, ok
}

// Forget drops sessionID.
func (g *Gate) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.records, sessionID)
	g.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
