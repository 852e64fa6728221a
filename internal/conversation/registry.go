package conversation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
)

// DefaultCaptureWindow is the capture window used when none is configured.
const DefaultCaptureWindow = 2 * time.Minute

// Registry owns every [State], keyed by session ID with a secondary user ID
// index. All mutations for one user are serialised by a per-user lock, so a
// fragment append racing a migration lands exactly once under whichever
// session key is authoritative when it is applied.
//
// Lock order is user lock, then r.mu. r.mu is never held while waiting for a
// user lock.
type Registry struct {
	now      func() time.Time
	window   time.Duration
	budget   int
	required []Dimension
	metrics  *observe.Metrics

	mu        sync.Mutex
	bySession map[string]*State
	byUser    map[string]string
	locks     map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Option is a functional option for [NewRegistry].
type Option func(*Registry)

// WithClock overrides the clock used to stamp new states.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCaptureWindow sets the window after which Sweep removes a state.
func WithCaptureWindow(d time.Duration) Option {
	return func(r *Registry) { r.window = d }
}

// WithQuestionBudget sets the per-mandate question budget, capped at
// [MaxQuestions].
func WithQuestionBudget(n int) Option {
	return func(r *Registry) { r.budget = clampBudget(n) }
}

// WithRequiredDimensions sets the dimensions tracked by new checklists.
func WithRequiredDimensions(dims ...Dimension) Option {
	return func(r *Registry) { r.required = slices.Clone(dims) }
}

// WithMetrics reports state counts and migrations to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns an empty registry. By default it tracks what, who and
// when with a budget of [MaxQuestions].
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:       time.Now,
		window:    DefaultCaptureWindow,
		budget:    MaxQuestions,
		required:  []Dimension{DimensionWhat, DimensionWho, DimensionWhen},
		bySession: make(map[string]*State),
		byUser:    make(map[string]string),
		locks:     make(map[string]*userLock),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ConnectResult describes the state a newly authenticated session starts with.
type ConnectResult struct {
	State    State
	Migrated bool
}

// Connect binds sessionID to userID. Prior state with fragments is migrated
// to sessionID; prior state without fragments is discarded and a fresh state
// is created.
func (r *Registry) Connect(userID, sessionID string) ConnectResult {
	unlock := r.lockUser(userID)
	defer unlock()

	if r.migrateLocked(userID, sessionID) {
		r.recordMigration("migrated")
		return ConnectResult{State: r.lookupLocked(userID).Snapshot(), Migrated: true}
	}

	r.mu.Lock()
	if old, ok := r.byUser[userID]; ok {
		delete(r.bySession, old)
		r.stateCountAdd(-1)
	}
	st := NewState(userID, sessionID, r.budget, r.required)
	r.bySession[sessionID] = st
	r.byUser[userID] = sessionID
	r.stateCountAdd(1)
	r.mu.Unlock()

	r.recordMigration("fresh")
	return ConnectResult{State: st.Snapshot()}
}

// AddFragment appends f to the user's authoritative state, creating one
// under sessionID if the user has none, and returns a snapshot.
func (r *Registry) AddFragment(userID, sessionID string, f Fragment) State {
	if f.At.IsZero() {
		f.At = r.now()
	}
	st, _ := r.update(userID, sessionID, true, func(s *State) { s.AddFragment(f) })
	return st
}

// Update runs fn on the user's state under the user lock and returns a
// snapshot. It reports false if the user has no state.
func (r *Registry) Update(userID string, fn func(*State)) (State, bool) {
	return r.update(userID, "", false, fn)
}

func (r *Registry) update(userID, sessionID string, create bool, fn func(*State)) (State, bool) {
	unlock := r.lockUser(userID)
	defer unlock()

	st := r.lookupLocked(userID)
	if st == nil {
		if !create {
			return State{}, false
		}
		st = NewState(userID, sessionID, r.budget, r.required)
		r.mu.Lock()
		r.bySession[sessionID] = st
		r.byUser[userID] = sessionID
		r.stateCountAdd(1)
		r.mu.Unlock()
	}
	fn(st)
	return st.Snapshot(), true
}

// Get returns a snapshot of the state stored under sessionID.
func (r *Registry) Get(sessionID string) (State, bool) {
	r.mu.Lock()
	st, ok := r.bySession[sessionID]
	var userID string
	if ok {
		userID = st.UserID
	}
	r.mu.Unlock()
	if !ok {
		return State{}, false
	}
	snap, ok := r.GetByUser(userID)
	if !ok || snap.SessionID != sessionID {
		return State{}, false
	}
	return snap, true
}

// GetByUser returns a snapshot of the user's state.
func (r *Registry) GetByUser(userID string) (State, bool) {
	unlock := r.lockUser(userID)
	defer unlock()
	st := r.lookupLocked(userID)
	if st == nil {
		return State{}, false
	}
	return st.Snapshot(), true
}

// Migrate moves the user's state, unchanged, to newSessionID and removes the
// old key. It reports false and changes nothing if the user has no state or
// the state has no fragments.
func (r *Registry) Migrate(userID, newSessionID string) bool {
	unlock := r.lockUser(userID)
	defer unlock()
	ok := r.migrateLocked(userID, newSessionID)
	if ok {
		r.recordMigration("migrated")
	}
	return ok
}

// migrateLocked must be called with the user lock held.
func (r *Registry) migrateLocked(userID, newSessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byUser[userID]
	if !ok {
		return false
	}
	st := r.bySession[old]
	if st == nil || len(st.Fragments) == 0 {
		return false
	}
	if old != newSessionID {
		delete(r.bySession, old)
		r.bySession[newSessionID] = st
		r.byUser[userID] = newSessionID
	}
	st.SessionID = newSessionID
	return true
}

// Reset clears the user's state for the next mandate. It reports false if
// the user has no state.
func (r *Registry) Reset(userID string) bool {
	_, ok := r.Update(userID, func(s *State) { s.Reset() })
	return ok
}

// Remove deletes the user's state and reports whether there was one.
func (r *Registry) Remove(userID string) bool {
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(r.byUser, userID)
	delete(r.bySession, sid)
	r.stateCountAdd(-1)
	return true
}

// Sweep removes every state whose capture window has elapsed at now and
// returns their final snapshots.
func (r *Registry) Sweep(now time.Time) []State {
	r.mu.Lock()
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	r.mu.Unlock()
	slices.Sort(users)

	var expired []State
	for _, u := range users {
		if st, ok := r.sweepUser(u, now); ok {
			expired = append(expired, st)
		}
	}
	return expired
}

func (r *Registry) sweepUser(userID string, now time.Time) (State, bool) {
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byUser[userID]
	if !ok {
		return State{}, false
	}
	st := r.bySession[sid]
	if st == nil || !st.Expired(now, r.window) {
		return State{}, false
	}
	delete(r.byUser, userID)
	delete(r.bySession, sid)
	r.stateCountAdd(-1)
	return st.Snapshot(), true
}

// Len returns the number of live states.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySession)
}

// CaptureWindow returns the configured capture window.
func (r *Registry) CaptureWindow() time.Duration { return r.window }

// lookupLocked must be called with the user lock held.
func (r *Registry) lookupLocked(userID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	return r.bySession[sid]
}

// lockUser acquires the user's lock and returns its release function.
func (r *Registry) lockUser(userID string) func() {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, userID)
		}
		r.mu.Unlock()
	}
}

// stateCountAdd must be called with r.mu held.
func (r *Registry) stateCountAdd(n int64) {
	if r.metrics != nil {
		r.metrics.CaptureStates.Add(context.Background(), n)
	}
}

func (r *Registry) recordMigration(result string) {
	if r.metrics != nil {
		r.metrics.RecordMigration(context.Background(), result)
	}
}
