// Package mock provides call-recording doubles for the pipeline's
// collaborators: an [Emitter] that captures server messages, a [Dispatcher],
// and a [Subscriptions] checker. All types are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

// Emitter records every emitted message.
type Emitter struct {
	mu   sync.Mutex
	msgs []protocol.ServerMessage

	// EmitErr, if non-nil, is returned by every Emit call. The message is
	// still recorded.
	EmitErr error
}

// Emit records msg.
func (e *Emitter) Emit(_ context.Context, msg protocol.ServerMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
	return e.EmitErr
}

// Messages returns a copy of the recorded messages.
func (e *Emitter) Messages() []protocol.ServerMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.ServerMessage(nil), e.msgs...)
}

// Kinds returns the type of every recorded message, in order.
func (e *Emitter) Kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.msgs))
	for i, m := range e.msgs {
		out[i] = m.Kind()
	}
	return out
}

// Last returns the most recent message of the given type.
func (e *Emitter) Last(kind string) (protocol.ServerMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.msgs) - 1; i >= 0; i-- {
		if e.msgs[i].Kind() == kind {
			return e.msgs[i], true
		}
	}
	return nil, false
}

// Reset discards the recorded messages.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = nil
}

// Dispatcher records submitted and dispatched drafts.
type Dispatcher struct {
	mu sync.Mutex

	// SubmitErr, if non-nil, is returned by SubmitDraft.
	SubmitErr error

	// DispatchErr, if non-nil, is returned by Dispatch.
	DispatchErr error

	submitted  []pipeline.Draft
	dispatched []pipeline.Draft
}

// SubmitDraft records d.
func (d *Dispatcher) SubmitDraft(_ context.Context, draft pipeline.Draft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, draft)
	return d.SubmitErr
}

// Dispatch records d.
func (d *Dispatcher) Dispatch(_ context.Context, draft pipeline.Draft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, draft)
	return d.DispatchErr
}

// Submitted returns a copy of the submitted drafts.
func (d *Dispatcher) Submitted() []pipeline.Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pipeline.Draft(nil), d.submitted...)
}

// Dispatched returns a copy of the dispatched drafts.
func (d *Dispatcher) Dispatched() []pipeline.Draft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pipeline.Draft(nil), d.dispatched...)
}

// Subscriptions reports a fixed answer and records queried users.
type Subscriptions struct {
	mu sync.Mutex

	// Inactive makes Active report false.
	Inactive bool

	// Err, if non-nil, is returned by Active.
	Err error

	calls []string
}

// Active reports !Inactive.
func (s *Subscriptions) Active(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID)
	return !s.Inactive, s.Err
}

// Calls returns the user IDs queried so far.
func (s *Subscriptions) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

var (
	_ pipeline.Emitter             = (*Emitter)(nil)
	_ pipeline.Dispatcher          = (*Dispatcher)(nil)
	_ pipeline.SubscriptionChecker = (*Subscriptions)(nil)
)
