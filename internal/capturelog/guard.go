package capturelog

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
)

// Guard wraps a [Writer] and makes every append non-fatal. Failures are
// logged and swallowed, and the guard reports itself degraded until the
// next successful append.
//
// Guard implements [pipeline.FragmentLog]. It is safe for concurrent use.
type Guard struct {
	w        Writer
	degraded atomic.Bool
	failures atomic.Int64
}

var _ pipeline.FragmentLog = (*Guard)(nil)

// NewGuard returns a [Guard] around w.
func NewGuard(w Writer) *Guard {
	return &Guard{w: w}
}

// Append writes f, swallowing any error.
func (g *Guard) Append(ctx context.Context, userID, sessionID string, f conversation.Fragment) {
	if err := g.w.Append(ctx, userID, sessionID, f); err != nil {
		g.degraded.Store(true)
		g.failures.Add(1)
		slog.WarnContext(ctx, "capture log: append failed, swallowing error",
			"user_id", userID,
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	g.degraded.Store(false)
}

// IsDegraded reports whether the most recent append failed.
func (g *Guard) IsDegraded() bool { return g.degraded.Load() }

// Failures returns the number of failed appends since creation.
func (g *Guard) Failures() int64 { return g.failures.Load() }
