// Package mock provides the deterministic STT provider used in development and
// tests.
//
// Provider accumulates fed chunks per session and, every [ChunksPerPartial]
// chunks, emits the next text from a fixed canned list as a partial
// transcript. EndStream returns the concatenation of the partials emitted for
// that stream. Every call is recorded, and failures can be injected through
// the Err fields so orchestrator degradation paths can be exercised.
//
// Example:
//
//	p := mock.New()
//	_ = p.StartStream(ctx, "sess-1", stt.StreamConfig{})
//	for i := range 4 {
//	    t, _ := p.FeedAudio(ctx, "sess-1", chunk, int64(i))
//	    // t is non-nil on the 4th chunk: "Hello"
//	}
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// ChunksPerPartial is the number of chunks accumulated before a partial is emitted.
const ChunksPerPartial = 4

// Confidence is the fixed confidence reported on every mock transcript.
const Confidence = 0.92

// Utterances is the ordered list of canned partial texts. Streams cycle
// through it when more partials are requested than it holds.
var Utterances = []string{
	"Hello",
	"I need to",
	"book a flight",
	"to Berlin",
	"next Monday",
	"for two people",
}

// FeedCall records a single invocation of Provider.FeedAudio.
type FeedCall struct {
	SessionID string
	Bytes     int
	Seq       int64
}

type stream struct {
	pending int
	total   int
	emitted []string
	spans   []int64
}

// Provider is the deterministic implementation of stt.Provider.
type Provider struct {
	mu      sync.Mutex
	streams map[string]*stream

	// StartErr, FeedErr and EndErr, if non-nil, are returned by the
	// respective calls.
	StartErr error
	FeedErr  error
	EndErr   error

	// Unhealthy makes Healthy report false.
	Unhealthy bool

	// --- Call records ---

	// StartCalls records the session IDs passed to StartStream.
	StartCalls []string

	// FeedCalls records every FeedAudio call.
	FeedCalls []FeedCall

	// EndCalls records the session IDs passed to EndStream.
	EndCalls []string

	// CancelCalls records the session IDs passed to CancelStream.
	CancelCalls []string
}

// New returns a ready Provider.
func New() *Provider {
	return &Provider{streams: make(map[string]*stream)}
}

// Name returns "mock".
func (p *Provider) Name() string { return "mock" }

// StartStream opens a stream for sessionID unless one is already open.
func (p *Provider) StartStream(_ context.Context, sessionID string, _ stt.StreamConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, sessionID)
	if p.StartErr != nil {
		return p.StartErr
	}
	p.ensure(sessionID)
	return nil
}

func (p *Provider) ensure(sessionID string) *stream {
	if p.streams == nil {
		p.streams = make(map[string]*stream)
	}
	s, ok := p.streams[sessionID]
	if !ok {
		s = &stream{}
		p.streams[sessionID] = s
	}
	return s
}

// FeedAudio counts the chunk and returns a partial on every fourth chunk.
// Feeding a session without an open stream opens one implicitly.
func (p *Provider) FeedAudio(_ context.Context, sessionID string, chunk []byte, seq int64) (*types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FeedCalls = append(p.FeedCalls, FeedCall{SessionID: sessionID, Bytes: len(chunk), Seq: seq})
	if p.FeedErr != nil {
		return nil, p.FeedErr
	}

	s := p.ensure(sessionID)
	s.pending++
	s.total++
	s.spans = append(s.spans, seq)
	if s.pending < ChunksPerPartial {
		return nil, nil
	}

	text := Utterances[len(s.emitted)%len(Utterances)]
	s.emitted = append(s.emitted, text)
	spans := s.spans
	s.pending = 0
	s.spans = nil
	return &types.Transcript{
		Text:       text,
		Confidence: Confidence,
		Provenance: types.ProvenanceSynthetic,
		SpanIDs:    spans,
		Timestamp:  time.Now(),
	}, nil
}

// EndStream closes the stream and returns the joined partials, or nil when
// no chunks were fed.
func (p *Provider) EndStream(_ context.Context, sessionID string) (*types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EndCalls = append(p.EndCalls, sessionID)
	if p.EndErr != nil {
		return nil, p.EndErr
	}
	s, ok := p.streams[sessionID]
	delete(p.streams, sessionID)
	if !ok || s.total == 0 {
		return nil, nil
	}
	return &types.Transcript{
		Text:       strings.Join(s.emitted, " "),
		IsFinal:    true,
		Confidence: Confidence,
		Provenance: types.ProvenanceSynthetic,
		Timestamp:  time.Now(),
	}, nil
}

// CancelStream discards the stream for sessionID.
func (p *Provider) CancelStream(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CancelCalls = append(p.CancelCalls, sessionID)
	delete(p.streams, sessionID)
}

// Healthy reports !Unhealthy.
func (p *Provider) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Unhealthy
}

// OpenStreams returns the number of streams currently open. Thread-safe.
func (p *Provider) OpenStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
