// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
	initErr    error

	mu      sync.Mutex
	streams map[string]*stream
}

// New creates a new Deepgram Provider. An empty apiKey does not fail
// construction; the provider reports unhealthy and every stream call returns
// [stt.ErrUnavailable].
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
		streams:    make(map[string]*stream),
	}
	for _, o := range opts {
		o(p)
	}
	if apiKey == "" {
		p.initErr = errors.New("deepgram: apiKey must not be empty")
	}
	return p
}

// Name returns "deepgram".
func (p *Provider) Name() string { return "deepgram" }

// Healthy reports whether the provider initialised successfully.
func (p *Provider) Healthy() bool { return p.initErr == nil }

// StartStream dials Deepgram for sessionID.
func (p *Provider) StartStream(ctx context.Context, sessionID string, cfg stt.StreamConfig) error {
	if p.initErr != nil {
		return fmt.Errorf("%w: %w", stt.ErrUnavailable, p.initErr)
	}
	p.mu.Lock()
	_, open := p.streams[sessionID]
	p.mu.Unlock()
	if open {
		return nil
	}

	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}

	// The stream outlives the request that opened it.
	streamCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		conn:      conn,
		collector: stt.NewCollector(),
		audio:     make(chan []byte, 256),
		cancel:    cancel,
	}
	s.wg.Add(2)
	go s.readLoop(streamCtx)
	go s.writeLoop(streamCtx)

	p.mu.Lock()
	if _, raced := p.streams[sessionID]; raced {
		p.mu.Unlock()
		s.abort()
		return nil
	}
	p.streams[sessionID] = s
	p.mu.Unlock()
	return nil
}

func (p *Provider) lookup(sessionID string) *stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[sessionID]
}

func (p *Provider) take(sessionID string) *stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.streams[sessionID]
	delete(p.streams, sessionID)
	return s
}

// FeedAudio queues chunk for delivery and returns the latest interim result.
func (p *Provider) FeedAudio(ctx context.Context, sessionID string, chunk []byte, seq int64) (*types.Transcript, error) {
	if p.initErr != nil {
		return nil, stt.ErrUnavailable
	}
	s := p.lookup(sessionID)
	if s == nil {
		return nil, stt.ErrNoStream
	}
	select {
	case <-s.collector.Done():
		p.CancelStream(sessionID)
		return nil, errors.New("deepgram: stream closed by server")
	default:
	}
	select {
	case s.audio <- chunk:
		s.collector.Fed(seq)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.collector.TakePartial(), nil
}

// EndStream asks Deepgram to flush, waits for the server to close the stream
// or ctx to expire, and returns the joined finals.
func (p *Provider) EndStream(ctx context.Context, sessionID string) (*types.Transcript, error) {
	if p.initErr != nil {
		return nil, stt.ErrUnavailable
	}
	s := p.take(sessionID)
	if s == nil {
		return nil, nil
	}
	s.finish()
	select {
	case <-s.collector.Done():
	case <-ctx.Done():
		// Keep whatever arrived before the deadline.
	}
	s.abort()
	return s.collector.Final(), nil
}

// CancelStream closes the stream immediately, discarding pending results.
func (p *Provider) CancelStream(sessionID string) {
	if s := p.take(sessionID); s != nil {
		s.abort()
	}
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(sr))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// stream is a live Deepgram connection owned by one capture session.
type stream struct {
	conn      *websocket.Conn
	collector *stt.Collector
	audio     chan []byte
	cancel    context.CancelFunc

	finishOnce sync.Once
	abortOnce  sync.Once
	wg         sync.WaitGroup
}

// finish stops accepting audio; writeLoop drains and sends CloseStream.
func (s *stream) finish() {
	s.finishOnce.Do(func() { close(s.audio) })
}

// abort tears the connection down and waits for both loops.
func (s *stream) abort() {
	s.abortOnce.Do(func() {
		s.cancel()
		_ = s.conn.CloseNow()
		s.wg.Wait()
		s.collector.Close()
	})
}

// writeLoop sends queued audio as binary messages. When the audio channel is
// closed it asks Deepgram to flush with a CloseStream control message.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and offers them to the collector.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.collector.Close()

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation: exit gracefully.
			return
		}
		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		s.collector.Offer(t)
	}
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (types.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" {
		return types.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Provenance: types.ProvenanceProvider,
	}, true
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
