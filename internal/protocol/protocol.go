// Package protocol defines the JSON messages exchanged on the capture
// WebSocket. Every frame is a JSON object whose "type" field names the
// message; the remaining fields are flat.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client message types.
const (
	TypeAuth           = "auth"
	TypeHeartbeat      = "heartbeat"
	TypeAudioChunk     = "audio_chunk"
	TypeStreamEnd      = "stream_end"
	TypeTextInput      = "text_input"
	TypeExecuteRequest = "execute_request"
)

// Server message types.
const (
	TypeAuthOK            = "auth_ok"
	TypeHeartbeatAck      = "heartbeat_ack"
	TypeTranscriptPartial = "transcript_partial"
	TypeTranscriptFinal   = "transcript_final"
	TypeAssistantPrompt   = "assistant_prompt"
	TypeCaptureState      = "capture_state"
	TypeDraftReady        = "draft_ready"
	TypeExecuteOK         = "execute_ok"
	TypeExecuteBlocked    = "execute_blocked"
	TypeError             = "error"
)

// Stable error and refusal codes.
const (
	CodeAudioInvalid         = "AUDIO_INVALID"
	CodeBadRequest           = "BAD_REQUEST"
	CodeNotAuthenticated     = "NOT_AUTHENTICATED"
	CodeSessionMismatch      = "SESSION_MISMATCH"
	CodePresenceStale        = "PRESENCE_STALE"
	CodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	CodeGuardrailBlocked     = "GUARDRAIL_BLOCKED"
	CodeDraftNotFound        = "DRAFT_NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a
	// string "type" field, or whose fields do not match the type.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType is returned for frames with an unrecognised type.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrInvalidAudio is returned alongside [ErrMalformed] when an
	// audio_chunk frame carries fields of the wrong type.
	ErrInvalidAudio = errors.New("protocol: invalid audio chunk")
)

// --- Client messages ---

// ClientMessage is implemented by every message a client can send.
type ClientMessage interface {
	Kind() string
}

// Auth is the first frame on every connection.
type Auth struct {
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
}

// Heartbeat keeps the session's presence fresh.
type Heartbeat struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	ClientTS  int64  `json:"client_ts"`
}

// AudioChunk carries one base64 audio payload.
type AudioChunk struct {
	SessionID string `json:"session_id"`
	Audio     string `json:"audio"`
	Seq       int64  `json:"seq"`
}

// StreamEnd marks the end of an utterance.
type StreamEnd struct {
	SessionID string `json:"session_id"`
}

// TextInput carries typed user input.
type TextInput struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ExecuteRequest asks for a ready draft to be dispatched.
type ExecuteRequest struct {
	SessionID string `json:"session_id"`
	DraftID   string `json:"draft_id"`
}

func (Auth) Kind() string           { return TypeAuth }
func (Heartbeat) Kind() string      { return TypeHeartbeat }
func (AudioChunk) Kind() string     { return TypeAudioChunk }
func (StreamEnd) Kind() string      { return TypeStreamEnd }
func (TextInput) Kind() string      { return TypeTextInput }
func (ExecuteRequest) Kind() string { return TypeExecuteRequest }

// Decode parses one client frame.
func Decode(data []byte) (ClientMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg ClientMessage
	switch head.Type {
	case TypeAuth:
		msg = &Auth{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeAudioChunk:
		msg = &AudioChunk{}
	case TypeStreamEnd:
		msg = &StreamEnd{}
	case TypeTextInput:
		msg = &TextInput{}
	case TypeExecuteRequest:
		msg = &ExecuteRequest{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		if head.Type == TypeAudioChunk {
			return nil, fmt.Errorf("%w: %w: %v", ErrMalformed, ErrInvalidAudio, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, head.Type, err)
	}
	return msg, nil
}

// ErrorCode maps a [Decode] error to the code reported to the client.
func ErrorCode(err error) string {
	if errors.Is(err, ErrInvalidAudio) {
		return CodeAudioInvalid
	}
	return CodeBadRequest
}

// PeekType returns the top-level "type" of a frame that may be truncated,
// or "" when it cannot be found before the data ends. A top-level "audio"
// field identifies an audio_chunk even when "type" comes after it.
func PeekType(data []byte) string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return ""
		}
		if key == "type" {
			var typ string
			if err := dec.Decode(&typ); err != nil {
				return ""
			}
			return typ
		}
		if key == "audio" {
			return TypeAudioChunk
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return ""
		}
	}
	return ""
}

// --- Server messages ---

// ServerMessage is implemented by every message the server sends.
type ServerMessage interface {
	Kind() string
}

// AuthOK confirms authentication. The migration fields let a reconnecting
// client restore its UI to match the migrated capture state.
type AuthOK struct {
	SessionID             string `json:"session_id"`
	UserID                string `json:"user_id"`
	HeartbeatIntervalMS   int64  `json:"heartbeat_interval_ms"`
	HasMigratedFragments  bool   `json:"has_migrated_fragments"`
	MigratedFragmentCount int    `json:"migrated_fragment_count"`
	MigratedPhase         string `json:"migrated_phase"`
	CaptureStartedAtMS    int64  `json:"capture_started_at_ms"` // 0 until the first fragment
}

// HeartbeatAck echoes a heartbeat's sequence number.
type HeartbeatAck struct {
	Seq      int64 `json:"seq"`
	ServerTS int64 `json:"server_ts"`
}

// TranscriptPartial is an interim transcript.
type TranscriptPartial struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	SpanIDs    []int64 `json:"span_ids"`
}

// TranscriptFinal is the authoritative transcript of an utterance or typed input.
type TranscriptFinal struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Provenance string  `json:"provenance"`
}

// Prompt kinds carried by AssistantPrompt.
const (
	PromptQuestion = "question"
	PromptRefusal  = "refusal"
	PromptNotice   = "notice"
)

// AssistantPrompt is spoken output: a clarifying question or a refusal.
type AssistantPrompt struct {
	Prompt    string `json:"prompt"`
	Text      string `json:"text"`
	Audio     []byte `json:"audio"`
	Format    string `json:"format"`
	IsMock    bool   `json:"is_mock"`
	Code      string `json:"code,omitempty"`
	Dimension string `json:"dimension,omitempty"`
}

// ChecklistEntry is one checklist item on the wire.
type ChecklistEntry struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value,omitempty"`
	Filled    bool   `json:"filled"`
	Source    string `json:"source,omitempty"`
}

// CaptureState reports the capture progress after every fragment.
type CaptureState struct {
	Phase              string           `json:"phase"`
	Progress           int              `json:"progress"`
	FragmentCount      int              `json:"fragment_count"`
	QuestionsRemaining int              `json:"questions_remaining"`
	Checklist          []ChecklistEntry `json:"checklist"`
}

// DraftReady announces a mandate draft handed to intent resolution.
type DraftReady struct {
	DraftID    string           `json:"draft_id"`
	Transcript string           `json:"transcript"`
	Progress   int              `json:"progress"`
	Checklist  []ChecklistEntry `json:"checklist"`
	Verdict    string           `json:"verdict"`
	Ambiguity  float64          `json:"ambiguity"`
}

// ExecuteOK confirms dispatch of a draft.
type ExecuteOK struct {
	DraftID      string `json:"draft_id"`
	DispatchedAt int64  `json:"dispatched_at_ms"`
}

// ExecuteBlocked refuses an execute request.
type ExecuteBlocked struct {
	DraftID string `json:"draft_id,omitempty"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// Error reports a non-fatal problem with a client frame.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (AuthOK) Kind() string            { return TypeAuthOK }
func (HeartbeatAck) Kind() string      { return TypeHeartbeatAck }
func (TranscriptPartial) Kind() string { return TypeTranscriptPartial }
func (TranscriptFinal) Kind() string   { return TypeTranscriptFinal }
func (AssistantPrompt) Kind() string   { return TypeAssistantPrompt }
func (CaptureState) Kind() string      { return TypeCaptureState }
func (DraftReady) Kind() string        { return TypeDraftReady }
func (ExecuteOK) Kind() string         { return TypeExecuteOK }
func (ExecuteBlocked) Kind() string    { return TypeExecuteBlocked }
func (Error) Kind() string             { return TypeError }

// Encode marshals m with its "type" field first.
func Encode(m ServerMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("protocol: encode %s: not a JSON object", m.Kind())
	}
	kind, _ := json.Marshal(m.Kind())

	out := make([]byte, 0, len(body)+len(kind)+9)
	out = append(out, `{"type":`...)
	out = append(out, kind...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}
