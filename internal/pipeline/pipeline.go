// Package pipeline implements the per-session capture pipeline: validated
// audio passes through VAD and STT into transcript fragments, fragments are
// appended to the user's conversation state, and each final fragment is
// checked by the guardrail and the dimension checklist. The outcome is a
// refusal, a clarifying question, or a mandate draft handed to the
// [Dispatcher]. Execution of a draft is gated by presence and subscription.
//
// A [Pipeline] is shared by all connections; each connection owns one
// [Session].
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/guardrail"
	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/presence"
	"github.com/myndlens/myndlens-p-sub000/internal/speech"
	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
)

// Deps holds the collaborators of a [Pipeline]. STT, TTS, VAD, Registry,
// Guardrail and Presence are required; the rest have defaults.
type Deps struct {
	STT       *speech.STT
	TTS       *speech.TTS
	VAD       vad.Engine
	VADConfig vad.Config
	Validator *audio.Validator
	Registry  *conversation.Registry
	Guardrail *guardrail.Gate
	Presence  *presence.Gate

	// Extractor defaults to [KeywordExtractor].
	Extractor DimensionExtractor

	// Dispatcher defaults to one that only logs.
	Dispatcher Dispatcher

	// Subscriptions defaults to [AlwaysActive].
	Subscriptions SubscriptionChecker

	// FragmentLog defaults to discarding fragments.
	FragmentLog FragmentLog

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now defaults to [time.Now].
	Now func() time.Time

	// NewDraftID defaults to random hex identifiers.
	NewDraftID func() string
}

// Pipeline is the shared capture pipeline. It is safe for concurrent use.
type Pipeline struct {
	d      Deps
	drafts *draftStore
}

// New validates d, fills in defaults, and returns a [Pipeline].
func New(d Deps) (*Pipeline, error) {
	var errs []error
	if d.STT == nil {
		errs = append(errs, errors.New("pipeline: STT is required"))
	}
	if d.TTS == nil {
		errs = append(errs, errors.New("pipeline: TTS is required"))
	}
	if d.VAD == nil {
		errs = append(errs, errors.New("pipeline: VAD is required"))
	}
	if d.Registry == nil {
		errs = append(errs, errors.New("pipeline: Registry is required"))
	}
	if d.Guardrail == nil {
		errs = append(errs, errors.New("pipeline: Guardrail is required"))
	}
	if d.Presence == nil {
		errs = append(errs, errors.New("pipeline: Presence is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if d.VADConfig == (vad.Config{}) {
		d.VADConfig = vad.DefaultConfig()
	}
	if d.Validator == nil {
		d.Validator = audio.NewValidator()
	}
	if d.Extractor == nil {
		d.Extractor = KeywordExtractor{}
	}
	if d.Dispatcher == nil {
		d.Dispatcher = logDispatcher{}
	}
	if d.Subscriptions == nil {
		d.Subscriptions = AlwaysActive{}
	}
	if d.FragmentLog == nil {
		d.FragmentLog = nopFragmentLog{}
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewDraftID == nil {
		d.NewDraftID = newDraftID
	}
	return &Pipeline{d: d, drafts: newDraftStore()}, nil
}

// Open starts a session for an authenticated user. Prior capture state with
// fragments is migrated to sessionID; the result reports what was migrated.
func (p *Pipeline) Open(ctx context.Context, userID, sessionID string, emit Emitter) (*Session, conversation.ConnectResult, error) {
	vs, err := p.d.VAD.NewSession(p.d.VADConfig)
	if err != nil {
		return nil, conversation.ConnectResult{}, fmt.Errorf("pipeline: open vad session: %w", err)
	}
	res := p.d.Registry.Connect(userID, sessionID)
	if !res.Migrated {
		p.drafts.drop(userID)
	}
	p.d.Presence.Touch(sessionID)

	slog.InfoContext(ctx, "capture session opened",
		"user_id", userID,
		"session_id", sessionID,
		"migrated", res.Migrated,
		"fragments", len(res.State.Fragments),
		"phase", res.State.Phase.String(),
	)
	return &Session{
		p:         p,
		userID:    userID,
		sessionID: sessionID,
		emit:      emit,
		vad:       vs,
	}, res, nil
}

// Sweep tears down every capture whose window has elapsed at now, drops
// their drafts, and returns how many were removed.
func (p *Pipeline) Sweep(now time.Time) int {
	expired := p.d.Registry.Sweep(now)
	for _, st := range expired {
		p.drafts.drop(st.UserID)
		slog.Info("capture window expired",
			"user_id", st.UserID,
			"session_id", st.SessionID,
			"fragments", len(st.Fragments),
		)
	}
	return len(expired)
}

// PendingDrafts returns the number of drafts awaiting execution.
func (p *Pipeline) PendingDrafts() int { return p.drafts.len() }
