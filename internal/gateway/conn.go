package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/pipeline"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

var (
	// errClosed ends the connection goroutines after a clean close.
	errClosed = errors.New("gateway: connection closed")

	// errOversized marks a frame longer than Config.MaxMessageBytes.
	errOversized = errors.New("gateway: message too large")
)

// conn is one authenticated capture connection.
type conn struct {
	h         *Handler
	ws        *websocket.Conn
	sessionID string
	out       chan protocol.ServerMessage
	done      <-chan struct{}
}

func (c *conn) run(parent context.Context) {
	auth, err := c.handshake(parent)
	if err != nil {
		observe.Logger(parent).Debug("capture handshake failed", "error", err)
		_ = writeFrame(parent, c.ws, protocol.Error{Code: protocol.CodeNotAuthenticated, Message: "first message must be auth"})
		c.ws.Close(websocket.StatusPolicyViolation, "auth required")
		return
	}
	userID, err := c.h.auth.Authenticate(parent, auth)
	if err != nil {
		observe.Logger(parent).Info("capture authentication rejected", "error", err)
		_ = writeFrame(parent, c.ws, protocol.Error{Code: protocol.CodeNotAuthenticated, Message: "authentication failed"})
		c.ws.Close(websocket.StatusPolicyViolation, "unauthenticated")
		return
	}

	c.sessionID = c.h.newSessionID()
	log := observe.SessionLogger(parent, c.sessionID, userID)

	g, ctx := errgroup.WithContext(parent)
	c.out = make(chan protocol.ServerMessage, defaultSendBuffer)
	c.done = ctx.Done()

	sess, res, err := c.h.pipeline.Open(ctx, userID, c.sessionID, pipeline.EmitterFunc(c.enqueue))
	if err != nil {
		log.Error("capture session failed to open", "error", err)
		c.ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer sess.Close()

	st := res.State
	authOK := protocol.AuthOK{
		SessionID:             c.sessionID,
		UserID:                userID,
		HeartbeatIntervalMS:   c.h.cfg.HeartbeatInterval.Milliseconds(),
		HasMigratedFragments:  res.Migrated,
		MigratedFragmentCount: len(st.Fragments),
		MigratedPhase:         st.Phase.String(),
	}
	if !st.CreatedAt.IsZero() {
		authOK.CaptureStartedAtMS = st.CreatedAt.UnixMilli()
	}
	if err := writeFrame(ctx, c.ws, authOK); err != nil {
		log.Debug("auth_ok write failed", "error", err)
		return
	}

	c.h.metrics.ActiveConnections.Add(parent, 1)
	defer c.h.metrics.ActiveConnections.Add(parent, -1)
	log.Info("capture connection established", "migrated", res.Migrated)

	work := make(chan protocol.ClientMessage, defaultWorkBuffer)
	g.Go(func() error { return c.readLoop(ctx, sess, work) })
	g.Go(func() error { return c.workLoop(ctx, sess, work) })
	g.Go(func() error { return c.writeLoop(ctx) })

	err = g.Wait()
	if errors.Is(err, errClosed) {
		log.Info("capture connection closed")
		c.ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Info("capture connection dropped", "error", err)
	c.ws.CloseNow()
}

// handshake reads the auth frame.
func (c *conn) handshake(ctx context.Context) (protocol.Auth, error) {
	ctx, cancel := context.WithTimeout(ctx, c.h.cfg.HandshakeTimeout)
	defer cancel()

	typ, data, err := c.readFrame(ctx)
	if err != nil {
		return protocol.Auth{}, fmt.Errorf("read auth: %w", err)
	}
	if typ != websocket.MessageText {
		return protocol.Auth{}, errors.New("auth must be a text frame")
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return protocol.Auth{}, err
	}
	auth, ok := msg.(*protocol.Auth)
	if !ok {
		return protocol.Auth{}, fmt.Errorf("first message is %s, not auth", msg.Kind())
	}
	return *auth, nil
}

// readLoop answers heartbeats directly and queues everything else.
func (c *conn) readLoop(ctx context.Context, sess *pipeline.Session, work chan<- protocol.ClientMessage) error {
	for {
		typ, data, err := c.readFrame(ctx)
		if errors.Is(err, errOversized) {
			c.rejectOversized(ctx, data)
			continue
		}
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errClosed
			}
			return err
		}
		if typ != websocket.MessageText {
			c.reply(ctx, protocol.Error{Code: protocol.CodeBadRequest, Message: "binary frames are not supported"})
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.reply(ctx, protocol.Error{Code: protocol.ErrorCode(err), Message: err.Error()})
			continue
		}

		if hb, ok := msg.(*protocol.Heartbeat); ok {
			if c.sameSession(ctx, hb.SessionID) {
				c.reply(ctx, sess.Heartbeat(hb.Seq))
			}
			continue
		}
		select {
		case work <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readFrame reads one message of at most Config.MaxMessageBytes. A longer
// message is read to its end and returned truncated with errOversized.
func (c *conn) readFrame(ctx context.Context) (websocket.MessageType, []byte, error) {
	typ, r, err := c.ws.Reader(ctx)
	if err != nil {
		return 0, nil, err
	}
	limit := c.h.cfg.MaxMessageBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return 0, nil, err
	}
	if int64(len(data)) <= limit {
		return typ, data, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return 0, nil, err
	}
	return typ, data[:limit], errOversized
}

// rejectOversized answers a frame that exceeded the size limit. Oversized
// audio is an invalid chunk; anything else is a bad request.
func (c *conn) rejectOversized(ctx context.Context, prefix []byte) {
	code := protocol.CodeBadRequest
	if protocol.PeekType(prefix) == protocol.TypeAudioChunk {
		code = protocol.CodeAudioInvalid
	}
	observe.Logger(ctx).Debug("oversized capture frame dropped", "session_id", c.sessionID, "code", code)
	c.reply(ctx, protocol.Error{
		Code:    code,
		Message: fmt.Sprintf("message exceeds %d bytes", c.h.cfg.MaxMessageBytes),
	})
}

// workLoop feeds queued messages to the session in arrival order.
func (c *conn) workLoop(ctx context.Context, sess *pipeline.Session, work <-chan protocol.ClientMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-work:
			c.handle(ctx, sess, msg)
		}
	}
}

func (c *conn) handle(ctx context.Context, sess *pipeline.Session, msg protocol.ClientMessage) {
	ctx, span := observe.StartCaptureSpan(ctx, msg.Kind(), c.sessionID, sess.UserID())
	defer span.End()

	switch m := msg.(type) {
	case *protocol.AudioChunk:
		if c.sameSession(ctx, m.SessionID) {
			sess.AudioChunk(ctx, m.Audio, m.Seq)
		}
	case *protocol.StreamEnd:
		if c.sameSession(ctx, m.SessionID) {
			sess.StreamEnd(ctx)
		}
	case *protocol.TextInput:
		if c.sameSession(ctx, m.SessionID) {
			sess.TextInput(ctx, m.Text)
		}
	case *protocol.ExecuteRequest:
		if c.sameSession(ctx, m.SessionID) {
			sess.Execute(ctx, m.DraftID)
		}
	case *protocol.Auth:
		c.reply(ctx, protocol.Error{Code: protocol.CodeBadRequest, Message: "already authenticated"})
	default:
		c.reply(ctx, protocol.Error{Code: protocol.CodeBadRequest, Message: "unexpected message " + msg.Kind()})
	}
}

// writeLoop serialises outbound frames.
func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.out:
			if err := writeFrame(ctx, c.ws, msg); err != nil {
				return err
			}
		}
	}
}

// sameSession reports whether id addresses this connection. An empty id is
// taken to mean this connection.
func (c *conn) sameSession(ctx context.Context, id string) bool {
	if id == "" || id == c.sessionID {
		return true
	}
	c.reply(ctx, protocol.Error{Code: protocol.CodeSessionMismatch, Message: "session_id does not match this connection"})
	return false
}

// enqueue implements [pipeline.Emitter].
func (c *conn) enqueue(ctx context.Context, msg protocol.ServerMessage) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) reply(ctx context.Context, msg protocol.ServerMessage) {
	_ = c.enqueue(ctx, msg)
}
