// Package gateway serves the capture WebSocket. Each connection
// authenticates with its first frame, is bound to a [pipeline.Session], and
// then runs three goroutines: a reader that answers heartbeats inline, a
// worker that feeds every other message to the session in order, and a
// writer that serialises outbound frames.
//
// Closing the socket cancels in-flight STT work but leaves the user's
// capture state in place for the next connection to migrate.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultMaxMessageBytes   = 128 * 1024
	oversizeDrainFactor      = 8
	defaultSendBuffer        = 64
	defaultWorkBuffer        = 64
	writeTimeout             = 10 * time.Second
)

// Config holds per-connection limits.
type Config struct {
	// HeartbeatInterval is advertised to clients in auth_ok.
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds the wait for the auth frame.
	HandshakeTimeout time.Duration

	// MaxMessageBytes caps a single inbound frame. Larger frames are drained
	// and answered with an error frame; the connection stays open unless a
	// frame exceeds eight times this size.
	MaxMessageBytes int64

	// AllowedOrigins lists origin patterns accepted in addition to the
	// request host. Empty means same-origin only.
	AllowedOrigins []string
}

// Handler is the capture WebSocket endpoint. It is safe for concurrent use.
type Handler struct {
	pipeline     *pipeline.Pipeline
	auth         Authenticator
	cfg          Config
	metrics      *observe.Metrics
	newSessionID func() string
}

// Option is a functional option for [NewHandler].
type Option func(*Handler)

// WithAuthenticator sets the authenticator. Default: [TrustingAuthenticator].
func WithAuthenticator(a Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithConfig sets connection limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		if cfg.HeartbeatInterval > 0 {
			h.cfg.HeartbeatInterval = cfg.HeartbeatInterval
		}
		if cfg.HandshakeTimeout > 0 {
			h.cfg.HandshakeTimeout = cfg.HandshakeTimeout
		}
		if cfg.MaxMessageBytes > 0 {
			h.cfg.MaxMessageBytes = cfg.MaxMessageBytes
		}
		h.cfg.AllowedOrigins = cfg.AllowedOrigins
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(fn func() string) Option {
	return func(h *Handler) { h.newSessionID = fn }
}

// NewHandler returns a Handler serving p.
func NewHandler(p *pipeline.Pipeline, opts ...Option) *Handler {
	h := &Handler{
		pipeline: p,
		auth:     TrustingAuthenticator{},
		cfg: Config{
			HeartbeatInterval: defaultHeartbeatInterval,
			HandshakeTimeout:  defaultHandshakeTimeout,
			MaxMessageBytes:   defaultMaxMessageBytes,
		},
		metrics:      observe.DefaultMetrics(),
		newSessionID: newSessionID,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(h.cfg.MaxMessageBytes * oversizeDrainFactor)

	c := &conn{h: h, ws: ws}
	c.run(r.Context())
}

// newSessionID returns a random session identifier.
func newSessionID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "sess_" + hex.EncodeToString(b[:])
}

// writeFrame encodes and writes one message with a bounded deadline.
func writeFrame(ctx context.Context, ws *websocket.Conn, msg protocol.ServerMessage) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, b)
}
