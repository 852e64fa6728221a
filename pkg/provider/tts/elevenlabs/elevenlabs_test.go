package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
)

// ---- URL construction ----

func TestBuildURL(t *testing.T) {
	p := New("key", WithVoice("voice-abc123"), WithModel("eleven_flash_v2_5"), WithOutputFormat("pcm_16000"))
	raw, err := p.buildURL()
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(raw, "wss://") {
		t.Errorf("URL should be a WebSocket URL, got: %s", raw)
	}
	if u.Path != "/v1/text-to-speech/voice-abc123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("model_id"); got != "eleven_flash_v2_5" {
		t.Errorf("model_id = %q", got)
	}
	if got := u.Query().Get("output_format"); got != "pcm_16000" {
		t.Errorf("output_format = %q", got)
	}
}

// ---- Response parsing ----

func TestParseAudioResponse(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("abc"))
	tests := []struct {
		name      string
		raw       string
		wantAudio string
		wantFinal bool
		wantErr   bool
	}{
		{"audio chunk", `{"audio":"` + enc + `"}`, "abc", false, false},
		{"final marker", `{"isFinal":true}`, "", true, false},
		{"server error", `{"message":"quota exceeded"}`, "", false, true},
		{"invalid json ignored", `{bad`, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audio, final, err := parseAudioResponse([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(audio) != tt.wantAudio {
				t.Errorf("audio = %q, want %q", audio, tt.wantAudio)
			}
			if final != tt.wantFinal {
				t.Errorf("final = %v, want %v", final, tt.wantFinal)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	p := New("")
	if p.Healthy() {
		t.Error("Healthy() = true for empty API key")
	}
	if _, err := p.Synthesize(context.Background(), "hello"); !errors.Is(err, tts.ErrUnavailable) {
		t.Errorf("Synthesize: got %v, want ErrUnavailable", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New("key")
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if !p.Healthy() {
		t.Error("Healthy() = false")
	}
}

// ---- Synthesis against a fake server ----

func TestSynthesize_FakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, first, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var boi boiMessage
		if json.Unmarshal(first, &boi) != nil || boi.XiAPIKey != "key" {
			conn.Close(websocket.StatusPolicyViolation, "bad key")
			return
		}
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var tm textMessage
			_ = json.Unmarshal(msg, &tm)
			if tm.Text == "" {
				break
			}
		}
		for _, part := range []string{"ID3", "frame"} {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte(part))})
			_ = conn.Write(ctx, websocket.MessageText, b)
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"isFinal":true}`))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p := New("key", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := p.Synthesize(ctx, "When should this happen?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "ID3frame" {
		t.Errorf("Audio = %q, want ID3frame", res.Audio)
	}
	if res.Format != defaultOutputFmt {
		t.Errorf("Format = %q", res.Format)
	}
	if res.IsMock {
		t.Error("IsMock = true")
	}
	if res.Text != "When should this happen?" {
		t.Errorf("Text = %q", res.Text)
	}
}
