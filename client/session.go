// Package client is the consumer-facing side of collabsync: a
// reconnecting transport session and a reconciler that mirrors the
// server's confirmed broadcasts into local structures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/protocol"
)

type ConnState string

const (
	StateDisconnected  ConnState = "disconnected"
	StateConnecting    ConnState = "connecting"
	StateConnected     ConnState = "connected"
	StateAuthenticated ConnState = "authenticated"
	StateReconnecting  ConnState = "reconnecting"
	StateFailed        ConnState = "failed"
)

var (
	ErrNotConnected    = errors.New("session not connected")
	ErrClosed          = errors.New("session closed")
	ErrRetriesExceeded = errors.New("connection attempts exhausted")
)

// Conn is the minimal websocket surface the session needs; the fake
// in tests implements it without a network.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens one transport connection. gorilla's dialer is the
// production implementation.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	timeout time.Duration
}

func (d wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	return conn, err
}

// Handlers is the session's subscription arena: one unit of callbacks
// installed and replaced atomically, so listeners can never pile up
// across reconnects. Nil members are skipped.
type Handlers struct {
	// OnFrame receives every decoded server frame.
	OnFrame func(event protocol.EventType, data []byte)
	// OnState receives connection state transitions.
	OnState func(state ConnState)
}

type Options struct {
	Logger         zerolog.Logger
	Dialer         Dialer
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// Session is one logical connection to the server. It is an explicit
// handle: callers construct one per UI context and pass it to the
// reconciler, there is no package-level shared instance.
type Session struct {
	url  string
	opts Options

	mu       sync.Mutex
	conn     Conn
	state    ConnState
	handlers Handlers
	lastAuth *protocol.Authenticate
	closed   bool
	gen      int

	writeMu sync.Mutex
}

func NewSession(url string, opts Options) *Session {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 8 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = wsDialer{timeout: opts.AttemptTimeout}
	}
	return &Session{url: url, opts: opts, state: StateDisconnected}
}

// Subscribe installs the handler set, replacing any previous one.
func (s *Session) Subscribe(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials with bounded exponential backoff: MaxAttempts tries,
// delay doubling from BaseDelay with jitter, capped at MaxDelay. On
// exhaustion the session is terminal until Connect is called again.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	s.setState(StateConnecting)
	return s.dialLoop(ctx)
}

func (s *Session) dialLoop(ctx context.Context) error {
	delay := s.opts.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		conn, err := s.opts.Dialer.DialContext(attemptCtx, s.url)
		cancel()
		if err == nil {
			s.attach(conn)
			return nil
		}
		lastErr = err
		s.opts.Logger.Warn().Err(err).Int("attempt", attempt).Msg("connect attempt failed")

		if attempt == s.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			s.setState(StateFailed)
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
		if delay *= 2; delay > s.opts.MaxDelay {
			delay = s.opts.MaxDelay
		}
	}

	s.setState(StateFailed)
	if lastErr == nil {
		lastErr = ErrRetriesExceeded
	}
	return errors.Join(ErrRetriesExceeded, lastErr)
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func (s *Session) attach(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.setState(StateConnected)
	go s.readLoop(conn, gen)

	// re-present the identity after a reconnect so the server side
	// reaches authenticated without caller involvement
	s.mu.Lock()
	auth := s.lastAuth
	s.mu.Unlock()
	if auth != nil {
		_ = s.send(auth)
	}
}

// Authenticate presents the identity. The authenticated state is
// entered when the server's reply arrives, not on send.
func (s *Session) Authenticate(user *domain.User, token string) error {
	msg := &protocol.Authenticate{Type: protocol.EventAuthenticate, User: user, Token: token}
	s.mu.Lock()
	s.lastAuth = msg
	s.mu.Unlock()
	return s.send(msg)
}

// Send submits one intent frame.
func (s *Session) Send(v any) error { return s.send(v) }

func (s *Session) send(v any) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if conn == nil || state == StateDisconnected || state == StateFailed {
		return ErrNotConnected
	}
	data, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.onDrop(gen)
			return
		}
		event, err := protocol.PeekType(data)
		if err != nil {
			s.opts.Logger.Warn().Err(err).Msg("bad frame from server")
			continue
		}
		if event == protocol.EventAuthenticated {
			var p protocol.Authenticated
			if jsonErr := json.Unmarshal(data, &p); jsonErr == nil && p.Success {
				s.setState(StateAuthenticated)
			}
		}
		s.mu.Lock()
		h := s.handlers
		s.mu.Unlock()
		if h.OnFrame != nil {
			h.OnFrame(event, data)
		}
	}
}

// onDrop handles an unexpected connection loss: unless Close was
// called, it enters reconnecting and runs the same bounded dial loop.
func (s *Session) onDrop(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	s.setState(StateReconnecting)
	if err := s.dialLoop(context.Background()); err != nil {
		s.opts.Logger.Error().Err(err).Msg("reconnect failed")
	}
}

// Close tears the session down intentionally; no reconnect follows.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	h := s.handlers
	s.mu.Unlock()
	if h.OnState != nil {
		h.OnState(state)
	}
}
