package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want protocol.ClientMessage
	}{
		{"auth", `{"type":"auth","token":"tok","user_id":"u1"}`, &protocol.Auth{Token: "tok", UserID: "u1"}},
		{"heartbeat", `{"type":"heartbeat","session_id":"s1","seq":4,"client_ts":99}`, &protocol.Heartbeat{SessionID: "s1", Seq: 4, ClientTS: 99}},
		{"audio", `{"type":"audio_chunk","session_id":"s1","audio":"AAAA","seq":2}`, &protocol.AudioChunk{SessionID: "s1", Audio: "AAAA", Seq: 2}},
		{"stream end", `{"type":"stream_end","session_id":"s1"}`, &protocol.StreamEnd{SessionID: "s1"}},
		{"text", `{"type":"text_input","session_id":"s1","text":"hi"}`, &protocol.TextInput{SessionID: "s1", Text: "hi"}},
		{"execute", `{"type":"execute_request","session_id":"s1","draft_id":"d1"}`, &protocol.ExecuteRequest{SessionID: "s1", DraftID: "d1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := protocol.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Kind() != tt.want.Kind() {
				t.Fatalf("Kind = %q, want %q", got.Kind(), tt.want.Kind())
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("Decode = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		want     error
		wantCode string
	}{
		{"not json", `hello`, protocol.ErrMalformed, protocol.CodeBadRequest},
		{"array", `[1,2]`, protocol.ErrMalformed, protocol.CodeBadRequest},
		{"missing type", `{"seq":1}`, protocol.ErrMalformed, protocol.CodeBadRequest},
		{"unknown type", `{"type":"teleport"}`, protocol.ErrUnknownType, protocol.CodeBadRequest},
		{"wrong field type", `{"type":"heartbeat","seq":"one"}`, protocol.ErrMalformed, protocol.CodeBadRequest},
		{"numeric audio", `{"type":"audio_chunk","audio":123,"seq":1}`, protocol.ErrInvalidAudio, protocol.CodeAudioInvalid},
		{"string audio seq", `{"type":"audio_chunk","audio":"AAAA","seq":"x"}`, protocol.ErrInvalidAudio, protocol.CodeAudioInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := protocol.Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
			if tt.want == protocol.ErrInvalidAudio && !errors.Is(err, protocol.ErrMalformed) {
				t.Errorf("Decode error = %v, want it to wrap %v too", err, protocol.ErrMalformed)
			}
			if got := protocol.ErrorCode(err); got != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestPeekType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"type first", `{"type":"audio_chunk","audio":"AAAA`, "audio_chunk"},
		{"type after fields", `{"session_id":"s","seq":4,"type":"text_input","text":"hel`, "text_input"},
		{"audio field first", `{"seq":2,"audio":"AAAAAAAA`, "audio_chunk"},
		{"type cut off", `{"session_id":"s","text":"hello wor`, ""},
		{"nested type ignored", `{"meta":{"type":"auth"},"seq":1}`, ""},
		{"not an object", `["type","auth"]`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := protocol.PeekType([]byte(tt.in)); got != tt.want {
				t.Errorf("PeekType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode_TypeFirst(t *testing.T) {
	t.Parallel()

	got, err := protocol.Encode(protocol.HeartbeatAck{Seq: 7, ServerTS: 1000})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"heartbeat_ack","seq":7,"server_ts":1000}`
	if string(got) != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestEncode_ExecuteBlocked(t *testing.T) {
	t.Parallel()

	got, err := protocol.Encode(protocol.ExecuteBlocked{Code: protocol.CodePresenceStale, Reason: "stale"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["type"] != protocol.TypeExecuteBlocked {
		t.Errorf("type = %v, want %q", m["type"], protocol.TypeExecuteBlocked)
	}
	if m["code"] != "PRESENCE_STALE" {
		t.Errorf("code = %v, want PRESENCE_STALE", m["code"])
	}
	if _, ok := m["draft_id"]; ok {
		t.Error("empty draft_id should be omitted")
	}
}
