// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
	defaultVoice     = "21m00Tcm4TlvDq8ikWAM"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.outputFormat = format
		}
	}
}

// WithVoice sets the voice ID used for every synthesis.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		if voiceID != "" {
			p.voiceID = voiceID
		}
	}
}

// WithBaseURL overrides the WebSocket base URL (scheme and host).
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = base
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voiceID      string
	baseURL      string
	initErr      error
}

// New creates a new ElevenLabs Provider. An empty apiKey does not fail
// construction; the provider reports unhealthy and Synthesize returns
// [tts.ErrUnavailable].
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voiceID:      defaultVoice,
		baseURL:      defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	if apiKey == "" {
		p.initErr = errors.New("elevenlabs: apiKey must not be empty")
	}
	return p
}

// Name returns "elevenlabs".
func (p *Provider) Name() string { return "elevenlabs" }

// Healthy reports whether the provider initialised successfully.
func (p *Provider) Healthy() bool { return p.initErr == nil }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize opens a stream-input WebSocket, sends text followed by the
// end-of-input marker, and collects audio until ElevenLabs reports isFinal.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	if p.initErr != nil {
		return tts.Result{}, fmt.Errorf("%w: %w", tts.ErrUnavailable, p.initErr)
	}
	if text == "" {
		return tts.Result{}, errors.New("elevenlabs: text must not be empty")
	}
	start := time.Now()

	wsURL, err := p.buildURL()
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: build URL: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(4 << 20)

	boi := boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey: p.apiKey,
	}
	for _, msg := range []any{boi, textMessage{Text: text + " ", Flush: true}, textMessage{Text: ""}} {
		b, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return tts.Result{}, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	var audio []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(audio) > 0 {
				break
			}
			return tts.Result{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		chunk, final, err := parseAudioResponse(msg)
		if err != nil {
			return tts.Result{}, err
		}
		audio = append(audio, chunk...)
		if final {
			break
		}
	}
	if len(audio) == 0 {
		return tts.Result{}, errors.New("elevenlabs: no audio returned")
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	return tts.Result{
		Text:    text,
		Audio:   audio,
		Format:  p.outputFormat,
		Latency: time.Since(start),
	}, nil
}

// ---- helpers ----

// buildURL constructs the stream-input WebSocket URL for the configured voice.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("v1", "text-to-speech", p.voiceID, "stream-input")
	q := u.Query()
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseAudioResponse decodes one server message into audio bytes. A message
// carrying only an error text is reported as an error.
func parseAudioResponse(data []byte) ([]byte, bool, error) {
	var resp audioResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, nil
	}
	if resp.Audio == "" {
		if resp.Message != "" && !resp.IsFinal {
			return nil, false, fmt.Errorf("elevenlabs: server: %s", resp.Message)
		}
		return nil, resp.IsFinal, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, resp.IsFinal, nil
	}
	return pcm, resp.IsFinal, nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
