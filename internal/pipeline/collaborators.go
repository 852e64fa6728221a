package pipeline

import (
	"context"
	"log/slog"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

// Emitter delivers server messages to the client owning a [Session].
// Implementations must not block for long; the gateway queues frames.
type Emitter interface {
	Emit(ctx context.Context, msg protocol.ServerMessage) error
}

// EmitterFunc adapts a function to [Emitter].
type EmitterFunc func(ctx context.Context, msg protocol.ServerMessage) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, msg protocol.ServerMessage) error { return f(ctx, msg) }

// Extraction is what a [DimensionExtractor] found in one fragment.
type Extraction struct {
	// Values maps each dimension found to its extracted value.
	Values map[conversation.Dimension]string

	// SubIntents lists the separate requests contained in the fragment, if
	// it holds more than one.
	SubIntents []string
}

// DimensionExtractor finds checklist dimensions in user input.
type DimensionExtractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

// Dispatcher hands mandate drafts to downstream intent resolution and
// dispatches approved drafts for execution.
type Dispatcher interface {
	SubmitDraft(ctx context.Context, d Draft) error
	Dispatch(ctx context.Context, d Draft) error
}

// SubscriptionChecker reports whether a user may execute mandates.
type SubscriptionChecker interface {
	Active(ctx context.Context, userID string) (bool, error)
}

// FragmentLog records appended fragments. Implementations must not fail the
// caller; see capturelog.Guard.
type FragmentLog interface {
	Append(ctx context.Context, userID, sessionID string, f conversation.Fragment)
}

// AlwaysActive is a [SubscriptionChecker] that accepts every user.
type AlwaysActive struct{}

// Active always reports true.
func (AlwaysActive) Active(context.Context, string) (bool, error) { return true, nil }

// logDispatcher is the [Dispatcher] used when none is configured.
type logDispatcher struct{}

func (logDispatcher) SubmitDraft(ctx context.Context, d Draft) error {
	slog.InfoContext(ctx, "draft ready (no dispatcher configured)", "draft_id", d.ID, "user_id", d.UserID)
	return nil
}

func (logDispatcher) Dispatch(ctx context.Context, d Draft) error {
	slog.InfoContext(ctx, "draft dispatched (no dispatcher configured)", "draft_id", d.ID, "user_id", d.UserID)
	return nil
}

type nopFragmentLog struct{}

func (nopFragmentLog) Append(context.Context, string, string, conversation.Fragment) {}

var (
	_ SubscriptionChecker = AlwaysActive{}
	_ Dispatcher          = logDispatcher{}
	_ FragmentLog         = nopFragmentLog{}
)
