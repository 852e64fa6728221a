// Package google provides a Google Cloud Speech-to-Text streaming provider.
// It implements the stt.Provider interface over the StreamingRecognize gRPC API.
package google

import (
	"context"
	"fmt"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// opener starts a bidirectional recognition stream.
type opener func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// Option is a functional option for configuring the Google Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code (e.g., "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithSampleRate sets the provider-level default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithModel selects a recognition model (e.g., "latest_short").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithClientOptions passes options through to the Speech client, for example
// option.WithCredentialsFile or option.WithEndpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
type Provider struct {
	language   string
	sampleRate int
	model      string
	clientOpts []option.ClientOption

	client  *speech.Client
	open    opener
	initErr error

	mu      sync.Mutex
	streams map[string]*stream
}

// New creates the Speech client. A client construction failure (missing
// credentials, for example) does not fail New; the provider reports
// unhealthy and every stream call returns [stt.ErrUnavailable].
func New(ctx context.Context, opts ...Option) *Provider {
	p := newProvider(opts...)
	client, err := speech.NewClient(ctx, p.clientOpts...)
	if err != nil {
		p.initErr = fmt.Errorf("google: create speech client: %w", err)
		return p
	}
	p.client = client
	p.open = func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return client.StreamingRecognize(ctx)
	}
	return p
}

func newProvider(opts ...Option) *Provider {
	p := &Provider{
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		streams:    make(map[string]*stream),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "google".
func (p *Provider) Name() string { return "google" }

// Healthy reports whether the Speech client was created.
func (p *Provider) Healthy() bool { return p.initErr == nil }

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *Provider) recognitionConfig(cfg stt.StreamConfig) *speechpb.StreamingRecognitionConfig {
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sr),
			LanguageCode:               lang,
			Model:                      p.model,
			EnableAutomaticPunctuation: true,
		},
		InterimResults: true,
	}
}

// StartStream opens a StreamingRecognize call and sends the recognition config.
func (p *Provider) StartStream(ctx context.Context, sessionID string, cfg stt.StreamConfig) error {
	if p.initErr != nil {
		return fmt.Errorf("%w: %w", stt.ErrUnavailable, p.initErr)
	}
	p.mu.Lock()
	_, exists := p.streams[sessionID]
	p.mu.Unlock()
	if exists {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	rpc, err := p.open(streamCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("google: open stream: %w", err)
	}
	err = rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.recognitionConfig(cfg),
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("google: send config: %w", err)
	}

	s := &stream{rpc: rpc, collector: stt.NewCollector(), cancel: cancel}
	go s.listen()

	p.mu.Lock()
	p.streams[sessionID] = s
	p.mu.Unlock()
	return nil
}

// FeedAudio sends chunk as AudioContent and returns the latest interim result.
func (p *Provider) FeedAudio(_ context.Context, sessionID string, chunk []byte, seq int64) (*types.Transcript, error) {
	if p.initErr != nil {
		return nil, stt.ErrUnavailable
	}
	p.mu.Lock()
	s := p.streams[sessionID]
	p.mu.Unlock()
	if s == nil {
		return nil, stt.ErrNoStream
	}
	err := s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
	if err != nil {
		p.CancelStream(sessionID)
		return nil, fmt.Errorf("google: send audio: %w", err)
	}
	s.collector.Fed(seq)
	return s.collector.TakePartial(), nil
}

// EndStream half-closes the call and waits for Google to deliver the
// remaining finals, bounded by ctx.
func (p *Provider) EndStream(ctx context.Context, sessionID string) (*types.Transcript, error) {
	if p.initErr != nil {
		return nil, stt.ErrUnavailable
	}
	p.mu.Lock()
	s := p.streams[sessionID]
	delete(p.streams, sessionID)
	p.mu.Unlock()
	if s == nil {
		return nil, nil
	}
	if err := s.rpc.CloseSend(); err != nil {
		s.cancel()
		return s.collector.Final(), nil
	}
	select {
	case <-s.collector.Done():
	case <-ctx.Done():
	}
	s.cancel()
	return s.collector.Final(), nil
}

// CancelStream aborts the call without waiting for results.
func (p *Provider) CancelStream(sessionID string) {
	p.mu.Lock()
	s := p.streams[sessionID]
	delete(p.streams, sessionID)
	p.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

type stream struct {
	rpc       speechpb.Speech_StreamingRecognizeClient
	collector *stt.Collector
	cancel    context.CancelFunc
}

// listen receives responses until the call ends.
func (s *stream) listen() {
	defer s.collector.Close()
	for {
		resp, err := s.rpc.Recv()
		if err != nil {
			return
		}
		for _, t := range toTranscripts(resp) {
			s.collector.Offer(t)
		}
	}
}

// toTranscripts maps the first alternative of every result to a Transcript.
func toTranscripts(resp *speechpb.StreamingRecognizeResponse) []types.Transcript {
	if resp == nil {
		return nil
	}
	out := make([]types.Transcript, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		out = append(out, types.Transcript{
			Text:       alt.Transcript,
			IsFinal:    r.IsFinal,
			Confidence: float64(alt.Confidence),
			Provenance: types.ProvenanceProvider,
		})
	}
	return out
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
