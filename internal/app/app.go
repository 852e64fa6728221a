// Package app wires the MyndLens capture subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the conversation
// registry, gates, speech adapters and pipeline from the config, Run serves
// HTTP and sweeps expired capture states, and Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithDispatcher,
// WithFragmentWriter, etc.). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/myndlens/myndlens-p-sub000/internal/capturelog"
	"github.com/myndlens/myndlens-p-sub000/internal/config"
	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/gateway"
	"github.com/myndlens/myndlens-p-sub000/internal/guardrail"
	"github.com/myndlens/myndlens-p-sub000/internal/handoff"
	"github.com/myndlens/myndlens-p-sub000/internal/health"
	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
	"github.com/myndlens/myndlens-p-sub000/internal/presence"
	"github.com/myndlens/myndlens-p-sub000/internal/speech"
	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
)

const (
	// shutdownTimeout bounds the graceful HTTP drain when Run's context ends.
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var (
	errSTTUnavailable = errors.New("stt provider unavailable")
	errTTSUnavailable = errors.New("tts provider unavailable, replies fall back to text")
	errLogDegraded    = errors.New("capture log writes failing")
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	levels        *slog.LevelVar
	metrics       *observe.Metrics
	gatherer      prometheus.Gatherer
	auth          gateway.Authenticator
	dispatcher    pipeline.Dispatcher
	subscriptions pipeline.SubscriptionChecker
	fragments     capturelog.Writer

	// Subsystems, initialised in New and torn down in Shutdown.
	registry   *conversation.Registry
	presence   *presence.Gate
	guardrail  *guardrail.Gate
	stt        *speech.STT
	tts        *speech.TTS
	captureLog *capturelog.Guard
	pipeline   *pipeline.Pipeline
	handler    http.Handler
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLevelVar lets hot reload adjust the log level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the Prometheus gatherer served on /metrics. Default:
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithAuthenticator overrides how capture connections are authenticated.
func WithAuthenticator(auth gateway.Authenticator) Option {
	return func(a *App) { a.auth = auth }
}

// WithDispatcher injects a draft dispatcher instead of the Kafka publisher.
func WithDispatcher(d pipeline.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// WithSubscriptions injects a subscription checker.
func WithSubscriptions(s pipeline.SubscriptionChecker) Option {
	return func(a *App) { a.subscriptions = s }
}

// WithFragmentWriter injects a capture log writer instead of connecting to
// capture_log.postgres_dsn.
func WithFragmentWriter(w capturelog.Writer) Option {
	return func(a *App) { a.fragments = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.TTS == nil || providers.VAD == nil {
		return nil, errors.New("app: STT, TTS and VAD providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		gatherer:  prometheus.DefaultGatherer,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Conversation state and gates ───────────────────────────────────
	if err := a.initConversation(); err != nil {
		return nil, fmt.Errorf("app: init conversation: %w", err)
	}

	// ── 2. Speech adapters ───────────────────────────────────────────────
	a.initSpeech()

	// ── 3. Handoff ───────────────────────────────────────────────────────
	a.initHandoff()

	// ── 4. Capture log ───────────────────────────────────────────────────
	if err := a.initCaptureLog(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init capture log: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initConversation() error {
	c := a.cfg.Capture
	dims := make([]conversation.Dimension, 0, len(c.RequiredDimensions))
	for _, name := range c.RequiredDimensions {
		d, ok := conversation.ParseDimension(name)
		if !ok {
			return fmt.Errorf("unknown required dimension %q", name)
		}
		dims = append(dims, d)
	}

	a.registry = conversation.NewRegistry(
		conversation.WithCaptureWindow(c.CaptureWindow),
		conversation.WithQuestionBudget(c.QuestionBudget),
		conversation.WithRequiredDimensions(dims...),
		conversation.WithMetrics(a.metrics),
	)
	a.presence = presence.New(presence.WithStaleAfter(a.cfg.Presence.StaleAfter))
	a.guardrail = guardrail.New(guardrail.WithAmbiguityThreshold(a.cfg.Guardrail.AmbiguityThreshold))
	return nil
}

func (a *App) initSpeech() {
	c := a.cfg.Capture
	a.stt = speech.NewSTT(a.providers.STT,
		speech.WithSTTMetrics(a.metrics),
		speech.WithStreamConfig(stt.StreamConfig{SampleRate: c.SampleRate, Language: c.Language}),
		speech.WithEndTimeout(c.EndStreamTimeout),
	)
	a.tts = speech.NewTTS(a.providers.TTS, speech.WithTTSMetrics(a.metrics))
}

// initHandoff creates the Kafka publisher if no dispatcher was injected.
func (a *App) initHandoff() {
	if a.dispatcher != nil {
		return
	}
	h := a.cfg.Handoff
	pub := handoff.New(handoff.Config{
		Enabled:       h.Enabled,
		Brokers:       h.Brokers,
		DraftTopic:    h.DraftTopic,
		DispatchTopic: h.DispatchTopic,
		WriteTimeout:  h.WriteTimeout,
	}, handoff.WithMetrics(a.metrics))
	a.dispatcher = pub
	a.closers = append(a.closers, pub.Close)
	slog.Info("handoff configured", "kafka", pub.Enabled(), "draft_topic", h.DraftTopic)
}

// initCaptureLog connects the fragment audit log when one is configured.
func (a *App) initCaptureLog(ctx context.Context) error {
	if a.fragments == nil {
		dsn := a.cfg.CaptureLog.PostgresDSN
		if dsn == "" {
			return nil
		}
		store, err := capturelog.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.fragments = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	a.captureLog = capturelog.NewGuard(a.fragments)
	return nil
}

func (a *App) initPipeline() error {
	c := a.cfg.Capture
	enc := audio.Encoding(c.SampleEncoding)

	deps := pipeline.Deps{
		STT: a.stt,
		TTS: a.tts,
		VAD: a.providers.VAD,
		VADConfig: vad.Config{
			Threshold:         c.VADThreshold,
			SilenceDuration:   c.VADSilence,
			MinSpeechDuration: c.VADMinSpeech,
			Encoding:          enc,
		},
		Validator: audio.NewValidator(
			audio.WithMaxBytes(c.MaxChunkBytes),
			audio.WithEncoding(enc),
			audio.WithSampleRate(c.SampleRate),
		),
		Registry:      a.registry,
		Guardrail:     a.guardrail,
		Presence:      a.presence,
		Dispatcher:    a.dispatcher,
		Subscriptions: a.subscriptions,
		Metrics:       a.metrics,
	}
	if a.captureLog != nil {
		deps.FragmentLog = a.captureLog
	}

	p, err := pipeline.New(deps)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// routes builds the HTTP mux: the capture socket, probes and metrics.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	gwOpts := []gateway.Option{
		gateway.WithMetrics(a.metrics),
		gateway.WithConfig(gateway.Config{
			HeartbeatInterval: a.cfg.Server.HeartbeatInterval,
			HandshakeTimeout:  a.cfg.Server.HandshakeTimeout,
			MaxMessageBytes:   a.cfg.Server.MaxMessageBytes,
			AllowedOrigins:    a.cfg.Server.AllowedOrigins,
		}),
	}
	if a.auth != nil {
		gwOpts = append(gwOpts, gateway.WithAuthenticator(a.auth))
	}
	mux.Handle("GET /v1/capture", gateway.NewHandler(a.pipeline, gwOpts...))

	checkers := []health.Checker{
		{Name: "stt", Check: health.CheckFunc(a.stt.Healthy, errSTTUnavailable)},
		{Name: "tts", Check: health.CheckFunc(a.tts.Healthy, errTTSUnavailable), Optional: true},
	}
	if a.captureLog != nil {
		checkers = append(checkers, health.Checker{
			Name:     "capture_log",
			Check:    health.CheckFunc(func() bool { return !a.captureLog.IsDegraded() }, errLogDegraded),
			Optional: true,
		})
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Handler returns the root HTTP handler. Useful for tests that serve the
// app through httptest.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the capture pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and sweeps expired capture states until ctx is cancelled.
// A cancelled ctx drains the server and returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("capture server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	g.Go(func() error {
		a.sweep(gctx)
		return nil
	})
	return g.Wait()
}

// sweep collects expired capture states every capture.sweep_interval.
func (a *App) sweep(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Capture.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.pipeline.Sweep(now); n > 0 {
				slog.Debug("swept expired capture states", "count", n)
			}
		}
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// It matches the callback signature of [config.NewWatcher].
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(LogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.StaleAfterChanged {
		a.presence.SetStaleAfter(d.NewStaleAfter)
		slog.Info("presence stale_after changed", "stale_after", d.NewStaleAfter)
	}
	if d.AmbiguityThresholdChanged {
		a.guardrail.SetThreshold(d.NewAmbiguityThreshold)
		slog.Info("guardrail threshold changed", "threshold", d.NewAmbiguityThreshold)
	}
	if d.RestartRequired {
		slog.Warn("config changed outside the hot-reloadable set; restart to apply")
	}
}

// LogLevel maps a config level to its [slog.Level].
func LogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. If ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New created before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
