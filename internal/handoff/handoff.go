// Package handoff delivers mandate drafts to intent resolution over Kafka.
//
// A [Publisher] writes submitted drafts to one topic and approved drafts to
// another, keyed by user ID so a user's drafts stay ordered within a
// partition. When disabled, or when no brokers are configured, it only logs.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
)

const (
	// DefaultDraftTopic receives drafts awaiting intent resolution.
	DefaultDraftTopic = "myndlens.mandate.drafts"

	// DefaultDispatchTopic receives drafts approved for execution.
	DefaultDispatchTopic = "myndlens.mandate.dispatch"

	// DefaultWriteTimeout bounds a single write.
	DefaultWriteTimeout = 10 * time.Second
)

// Event header values.
const (
	EventDraftReady    = "draft_ready"
	EventDraftDispatch = "draft_dispatch"
)

// Config holds publisher configuration.
type Config struct {
	Enabled       bool
	Brokers       []string
	DraftTopic    string
	DispatchTopic string
	WriteTimeout  time.Duration
}

// MessageWriter is the subset of [kafka.Writer] used by [Publisher].
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements [pipeline.Dispatcher]. It is safe for concurrent use.
type Publisher struct {
	draft         MessageWriter
	dispatch      MessageWriter
	draftTopic    string
	dispatchTopic string
	metrics       *observe.Metrics
}

var _ pipeline.Dispatcher = (*Publisher)(nil)

// Option is a functional option for [New].
type Option func(*Publisher)

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithWriters replaces the Kafka writers, enabling the publisher regardless
// of the configuration.
func WithWriters(draft, dispatch MessageWriter) Option {
	return func(p *Publisher) {
		p.draft = draft
		p.dispatch = dispatch
	}
}

// New returns a Publisher for cfg.
func New(cfg Config, opts ...Option) *Publisher {
	if cfg.DraftTopic == "" {
		cfg.DraftTopic = DefaultDraftTopic
	}
	if cfg.DispatchTopic == "" {
		cfg.DispatchTopic = DefaultDispatchTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	p := &Publisher{
		draftTopic:    cfg.DraftTopic,
		dispatchTopic: cfg.DispatchTopic,
		metrics:       observe.DefaultMetrics(),
	}

	if cfg.Enabled && len(cfg.Brokers) > 0 {
		dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
		transport := &kafka.Transport{Dial: dialer.DialFunc}
		p.draft = newWriter(cfg, cfg.DraftTopic, transport)
		p.dispatch = newWriter(cfg, cfg.DispatchTopic, transport)
		slog.Info("kafka handoff enabled",
			"brokers", cfg.Brokers,
			"draft_topic", cfg.DraftTopic,
			"dispatch_topic", cfg.DispatchTopic,
		)
	} else {
		slog.Info("kafka handoff disabled, using log-only mode")
	}

	for _, o := range opts {
		o(p)
	}
	return p
}

func newWriter(cfg Config, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether drafts are written to Kafka.
func (p *Publisher) Enabled() bool { return p.draft != nil }

// SubmitDraft publishes d to the draft topic.
func (p *Publisher) SubmitDraft(ctx context.Context, d pipeline.Draft) error {
	return p.publish(ctx, p.draft, p.draftTopic, EventDraftReady, d)
}

// Dispatch publishes d to the dispatch topic.
func (p *Publisher) Dispatch(ctx context.Context, d pipeline.Draft) error {
	return p.publish(ctx, p.dispatch, p.dispatchTopic, EventDraftDispatch, d)
}

func (p *Publisher) publish(ctx context.Context, w MessageWriter, topic, event string, d pipeline.Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("handoff: marshal draft %s: %w", d.ID, err)
	}

	if w == nil {
		slog.DebugContext(ctx, "handoff (log only)",
			"topic", topic, "event", event, "draft_id", d.ID, "user_id", d.UserID)
		p.metrics.RecordProviderRequest(ctx, "kafka", event, "skipped")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(d.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
			{Key: "draft_id", Value: []byte(d.ID)},
		},
		Time: d.CreatedAt,
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordProviderError(ctx, "kafka", event)
		p.metrics.RecordProviderRequest(ctx, "kafka", event, "error")
		return fmt.Errorf("handoff: write %s to %s: %w", d.ID, topic, err)
	}
	p.metrics.RecordProviderRequest(ctx, "kafka", event, "ok")
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, w := range []MessageWriter{p.draft, p.dispatch} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
