package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/guardrail"
	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// Outcomes recorded per evaluated fragment.
const (
	OutcomeBlocked       = "blocked"
	OutcomeQuestion      = "question"
	OutcomeDraft         = "draft"
	OutcomeHandoffFailed = "handoff_failed"
)

// Session is the pipeline bound to one connection. Message handlers are
// meant to be called from a single goroutine; [Session.Heartbeat] and
// [Session.Close] may be called from any goroutine.
type Session struct {
	p         *Pipeline
	userID    string
	sessionID string
	emit      Emitter

	mu        sync.Mutex
	vad       vad.SessionHandle
	streaming bool
	closed    bool
}

// UserID returns the authenticated user.
func (s *Session) UserID() string { return s.userID }

// SessionID returns the connection's session ID.
func (s *Session) SessionID() string { return s.sessionID }

// Heartbeat refreshes presence and returns the acknowledgement.
func (s *Session) Heartbeat(seq int64) protocol.HeartbeatAck {
	ack := s.p.d.Presence.Heartbeat(s.sessionID, seq)
	return protocol.HeartbeatAck{Seq: ack.Seq, ServerTS: ack.ServerTS.UnixMilli()}
}

// AudioChunk validates one chunk, runs it through VAD and STT, and emits any
// partial transcript. A VAD speech end finishes the utterance.
func (s *Session) AudioChunk(ctx context.Context, payload string, seq int64) {
	frame, err := s.p.d.Validator.Validate(payload, seq)
	if err != nil {
		slog.DebugContext(ctx, "audio chunk rejected", "session_id", s.sessionID, "seq", seq, "error", err)
		s.send(ctx, protocol.Error{Code: protocol.CodeAudioInvalid, Message: err.Error()})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.streaming {
		s.streaming = s.p.d.STT.StartStream(ctx, s.sessionID)
	}
	ev, vadErr := s.vad.ProcessFrame(frame)
	s.mu.Unlock()

	if vadErr != nil {
		slog.WarnContext(ctx, "vad failed on frame", "session_id", s.sessionID, "seq", seq, "error", vadErr)
	} else if ev.Type == types.VADSpeechStart || ev.Type == types.VADSpeechEnd {
		s.p.d.Metrics.RecordVADEvent(ctx, ev.Type.String())
	}

	if partial := s.p.d.STT.FeedAudio(ctx, s.sessionID, frame.Data, frame.Seq); partial != nil {
		s.send(ctx, protocol.TranscriptPartial{
			Text:       partial.Text,
			IsFinal:    false,
			Confidence: partial.Confidence,
			SpanIDs:    partial.SpanIDs,
		})
	}

	if vadErr == nil && ev.Type == types.VADSpeechEnd {
		s.finishUtterance(ctx)
	}
}

// StreamEnd finishes the current utterance.
func (s *Session) StreamEnd(ctx context.Context) {
	s.finishUtterance(ctx)
}

// TextInput handles typed input as a final fragment.
func (s *Session) TextInput(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.send(ctx, protocol.Error{Code: protocol.CodeBadRequest, Message: "text must not be empty"})
		return
	}
	t := types.Transcript{
		Text:       text,
		IsFinal:    true,
		Confidence: 1,
		Provenance: types.ProvenanceTyped,
		Timestamp:  s.p.d.Now(),
	}
	s.send(ctx, protocol.TranscriptFinal{Text: t.Text, Confidence: t.Confidence, Provenance: string(t.Provenance)})
	s.handleFragment(ctx, conversation.FragmentFromTranscript(t))
}

// Execute dispatches draftID after checking, in order, presence, the
// subscription, that the draft exists, and the guardrail.
func (s *Session) Execute(ctx context.Context, draftID string) {
	d := s.p.d
	if err := d.Presence.Check(s.sessionID); err != nil {
		s.rejectExecute(ctx, draftID, protocol.CodePresenceStale, "heartbeat is stale, reconnect or wait for the next heartbeat")
		return
	}

	active, err := d.Subscriptions.Active(ctx, s.userID)
	if err != nil {
		slog.WarnContext(ctx, "subscription check failed", "user_id", s.userID, "error", err)
	}
	if err != nil || !active {
		s.rejectExecute(ctx, draftID, protocol.CodeSubscriptionInactive, "subscription is not active")
		return
	}

	draft, ok := s.p.drafts.get(s.userID, draftID)
	if !ok {
		s.rejectExecute(ctx, draftID, protocol.CodeDraftNotFound, "no pending draft with that id")
		return
	}

	if v := d.Guardrail.Evaluate(guardrail.Input{Text: draft.Transcript}); v.BlockExecution {
		s.p.drafts.drop(s.userID)
		d.Registry.Reset(s.userID)
		s.rejectExecute(ctx, draftID, protocol.CodeGuardrailBlocked, v.Reason)
		return
	}

	if err := d.Dispatcher.Dispatch(ctx, draft); err != nil {
		slog.ErrorContext(ctx, "draft dispatch failed", "draft_id", draftID, "user_id", s.userID, "error", err)
		s.send(ctx, protocol.Error{Code: protocol.CodeInternal, Message: "dispatch failed, try again"})
		return
	}

	s.p.drafts.drop(s.userID)
	d.Registry.Reset(s.userID)
	slog.InfoContext(ctx, "mandate dispatched", "draft_id", draftID, "user_id", s.userID, "session_id", s.sessionID)
	s.send(ctx, protocol.ExecuteOK{DraftID: draftID, DispatchedAt: d.Now().UnixMilli()})
}

// Close cancels any in-flight STT stream and forgets presence. The
// conversation state is kept for a later reconnect. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.streaming {
		s.p.d.STT.CancelStream(s.sessionID)
		s.streaming = false
	}
	_ = s.vad.Close()
	s.p.d.Presence.Forget(s.sessionID)
}

// finishUtterance ends the STT stream and handles the final fragment.
func (s *Session) finishUtterance(ctx context.Context) {
	s.mu.Lock()
	if !s.streaming || s.closed {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	s.vad.Reset()
	s.mu.Unlock()

	final := s.p.d.STT.EndStream(ctx, s.sessionID)
	if final == nil || strings.TrimSpace(final.Text) == "" {
		return
	}
	if final.Timestamp.IsZero() {
		final.Timestamp = s.p.d.Now()
	}
	s.send(ctx, protocol.TranscriptFinal{
		Text:       final.Text,
		Confidence: final.Confidence,
		Provenance: string(final.Provenance),
	})
	s.handleFragment(ctx, conversation.FragmentFromTranscript(*final))
}

// handleFragment appends f, applies gap answers and extracted dimensions,
// reports the capture state, and evaluates the result.
func (s *Session) handleFragment(ctx context.Context, f conversation.Fragment) {
	d := s.p.d
	start := time.Now()

	ex, err := d.Extractor.Extract(ctx, f.Text)
	if err != nil {
		slog.WarnContext(ctx, "dimension extraction failed", "session_id", s.sessionID, "error", err)
	}
	f.SubIntents = ex.SubIntents

	d.Registry.AddFragment(s.userID, s.sessionID, f)
	d.FragmentLog.Append(ctx, s.userID, s.sessionID, f)
	d.Metrics.RecordFragment(ctx, string(f.Provenance))

	amended := false
	st, _ := d.Registry.Update(s.userID, func(st *conversation.State) {
		switch st.Phase {
		case conversation.PhaseHeld:
			st.FillChecklist(st.Pending, f.Text, conversation.SourceGapAnswer)
			st.Resume()
		case conversation.PhaseProcessing:
			st.Phase = conversation.PhaseActiveCapture
			amended = true
		}
		for _, it := range st.Unfilled() {
			if v, ok := ex.Values[it.Dimension]; ok {
				st.FillChecklist(it.Dimension, v, conversation.SourceUserSaid)
			}
		}
	})
	if amended {
		s.p.drafts.drop(s.userID)
	}

	s.send(ctx, captureState(st))
	outcome := s.evaluate(ctx, st)

	d.Metrics.RecordOutcome(ctx, outcome)
	d.Metrics.EvaluationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("outcome", outcome)))
}

// evaluate decides what follows a fragment: refusal, question, or draft.
func (s *Session) evaluate(ctx context.Context, st conversation.State) string {
	d := s.p.d
	unfilled := st.Unfilled()
	transcript := st.CombinedTranscript()

	v := d.Guardrail.Evaluate(guardrail.Input{
		Text:     transcript,
		Unfilled: len(unfilled),
		Tracked:  st.Checklist.Len(),
	})
	d.Metrics.RecordVerdict(ctx, string(v.Result))

	if v.Result == guardrail.ResultBlock {
		slog.InfoContext(ctx, "guardrail blocked request",
			"user_id", s.userID,
			"session_id", s.sessionID,
			"pattern", v.Pattern,
			"category", string(v.Category),
		)
		s.p.drafts.drop(s.userID)
		d.Registry.Reset(s.userID)
		s.speak(ctx, protocol.PromptRefusal, refusalText, protocol.CodeGuardrailBlocked, "")
		return OutcomeBlocked
	}

	if len(unfilled) > 0 || v.Result == guardrail.ResultNudge {
		dim := conversation.DimensionWhat
		text := clarifyText
		if len(unfilled) > 0 {
			dim = unfilled[0].Dimension
			text = questionFor(dim)
		}
		asked := false
		d.Registry.Update(s.userID, func(st *conversation.State) {
			if st.RecordQuestion(text) {
				st.Hold(dim)
				asked = true
			}
		})
		if asked {
			s.speak(ctx, protocol.PromptQuestion, text, "", dim.String())
			return OutcomeQuestion
		}
	}

	draft := Draft{
		ID:         d.NewDraftID(),
		UserID:     s.userID,
		SessionID:  s.sessionID,
		Transcript: transcript,
		SubIntents: st.SubIntents(),
		Checklist:  st.Checklist.Items(),
		Progress:   st.Checklist.Progress(),
		Verdict:    v,
		CreatedAt:  d.Now(),
	}
	if err := d.Dispatcher.SubmitDraft(ctx, draft); err != nil {
		slog.ErrorContext(ctx, "draft handoff failed", "draft_id", draft.ID, "user_id", s.userID, "error", err)
		s.send(ctx, protocol.Error{Code: protocol.CodeInternal, Message: "draft handoff failed"})
		return OutcomeHandoffFailed
	}
	s.p.drafts.put(draft)
	d.Registry.Update(s.userID, func(st *conversation.State) { st.MarkProcessing() })

	s.send(ctx, protocol.DraftReady{
		DraftID:    draft.ID,
		Transcript: draft.Transcript,
		Progress:   draft.Progress,
		Checklist:  checklistEntries(draft.Checklist),
		Verdict:    string(v.Result),
		Ambiguity:  v.Ambiguity,
	})
	return OutcomeDraft
}

// speak synthesises text and emits it as an assistant prompt.
func (s *Session) speak(ctx context.Context, kind, text, code, dimension string) {
	res := s.p.d.TTS.Synthesize(ctx, text)
	s.send(ctx, protocol.AssistantPrompt{
		Prompt:    kind,
		Text:      res.Text,
		Audio:     res.Audio,
		Format:    res.Format,
		IsMock:    res.IsMock,
		Code:      code,
		Dimension: dimension,
	})
}

func (s *Session) rejectExecute(ctx context.Context, draftID, code, reason string) {
	slog.InfoContext(ctx, "execute rejected", "user_id", s.userID, "session_id", s.sessionID, "code", code)
	s.p.d.Metrics.RecordExecuteRejection(ctx, code)
	s.send(ctx, protocol.ExecuteBlocked{DraftID: draftID, Code: code, Reason: reason})
}

func (s *Session) send(ctx context.Context, msg protocol.ServerMessage) {
	if err := s.emit.Emit(ctx, msg); err != nil {
		slog.DebugContext(ctx, "dropping server message", "session_id", s.sessionID, "type", msg.Kind(), "error", err)
	}
}

func captureState(st conversation.State) protocol.CaptureState {
	return protocol.CaptureState{
		Phase:              st.Phase.String(),
		Progress:           st.Checklist.Progress(),
		FragmentCount:      len(st.Fragments),
		QuestionsRemaining: st.RemainingQuestions(),
		Checklist:          checklistEntries(st.Checklist.Items()),
	}
}
