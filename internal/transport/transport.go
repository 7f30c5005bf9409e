// Package transport owns the push channel: one websocket connection to the
// chat service, kept alive across drops until the session disconnects.
// Inbound frames are handed to the owner's event loop untouched.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const sendQueueSize = 256

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// SendRate is outbound frames per second; zero disables throttling.
	SendRate  float64
	SendBurst int
}

type Transport struct {
	cfg     Config
	poster  Poster
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	log     *logger.Logger

	mu       sync.Mutex
	state    State
	handlers map[string]Handler
	stateFns []func(State)
	fatalFns []func(error)
	conn     *conn
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config, poster Poster) *Transport {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	t := &Transport{
		cfg:    cfg,
		poster: poster,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		handlers: make(map[string]Handler),
		log:      logger.Named("transport"),
	}
	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}
	return t
}

// On registers the handler for an inbound event type, replacing any
// previous one.
func (t *Transport) On(event string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = h
}

// OnState registers a callback run on the event loop after every state change.
func (t *Transport) OnState(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFns = append(t.stateFns, fn)
}

// OnFatal registers a callback run on the event loop when the session ends
// for good, e.g. with an *AuthenticationError.
func (t *Transport) OnFatal(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fatalFns = append(t.fatalFns, fn)
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect starts maintaining the push channel for sess and returns at once.
// Progress is reported through OnState and OnFatal.
func (t *Transport) Connect(ctx context.Context, sess session.Session) error {
	endpoint, err := t.endpoint(sess)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	t.setState(Connecting)
	go t.run(runCtx, endpoint, done)
	return nil
}

// Disconnect closes the push channel and waits for it to stop. It is the
// only way to reach Disconnected and is safe to call repeatedly.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Emit sends one outbound intent. There is no offline queue: without a live
// connection it fails with ErrNotConnected.
func (t *Transport) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	raw, err := json.Marshal(models.Frame{Type: event, Payload: data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (t *Transport) endpoint(sess session.Session) (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", sess.Secret)
	q.Set("username", sess.Username)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	prev := t.state
	t.state = s
	fns := append(([]func(State))(nil), t.stateFns...)
	t.mu.Unlock()

	t.log.Debug("State %s -> %s", prev, s)
	for _, fn := range fns {
		fn := fn
		t.poster.Post(func() { fn(s) })
	}
}

func (t *Transport) fail(err error) {
	t.mu.Lock()
	fns := append(([]func(error))(nil), t.fatalFns...)
	t.mu.Unlock()

	t.log.Error("Session ended: %v", err)
	for _, fn := range fns {
		fn := fn
		t.poster.Post(func() { fn(err) })
	}
}

func (t *Transport) finish() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = nil
	t.conn = nil
	t.mu.Unlock()
	t.setState(Disconnected)
}

func (t *Transport) run(ctx context.Context, endpoint string, done chan struct{}) {
	defer close(done)
	defer t.finish()

	b := backoff.NewExponentialBackOff()
	if t.cfg.ReconnectInitial > 0 {
		b.InitialInterval = t.cfg.ReconnectInitial
	}
	if t.cfg.ReconnectMax > 0 {
		b.MaxInterval = t.cfg.ReconnectMax
	}

	for {
		ws, err := t.dial(ctx, endpoint)
		if err == nil {
			b.Reset()
			t.serve(ctx, ws)
		}
		if ctx.Err() != nil {
			return
		}

		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			t.fail(authErr)
			return
		}

		t.setState(Reconnecting)
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = b.MaxInterval
		}
		if err != nil {
			t.log.Warn("Dial failed: %v; retrying in %s", err, wait)
		} else {
			t.log.Warn("Connection lost; reconnecting in %s", wait)
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (t *Transport) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthenticationError{StatusCode: resp.StatusCode}
		}
		return nil, err
	}
	return ws, nil
}

// serve runs the pumps of one live connection and returns once it drops or
// ctx is cancelled.
func (t *Transport) serve(ctx context.Context, ws *websocket.Conn) {
	c := newConn(ws)
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
	t.setState(Connected)
	t.log.Info("Connected to %s", ws.RemoteAddr())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.writePump(ctx, c)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(t.cfg.WriteWait))
			c.close()
		case <-c.closed:
		}
	}()

	t.readPump(c)
	c.close()
	wg.Wait()

	t.mu.Lock()
	if t.conn == c {
		t.conn = nil
	}
	t.mu.Unlock()
}

func (t *Transport) readPump(c *conn) {
	extend := func() {
		if t.cfg.PongWait > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	c.ws.SetPingHandler(func(appData string) error {
		extend()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(t.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Error("WebSocket error: %v", err)
			}
			return
		}
		extend()

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			t.log.Warn("Dropping undecodable frame (%d bytes): %v", len(data), err)
			continue
		}
		if !t.poster.Post(func() { t.dispatch(frame) }) {
			return
		}
	}
}

func (t *Transport) dispatch(frame models.Frame) {
	t.mu.Lock()
	h, ok := t.handlers[frame.Type]
	t.mu.Unlock()
	if !ok {
		t.log.Debug("No handler for event %q", frame.Type)
		return
	}
	h(frame.Payload)
}

func (t *Transport) writePump(ctx context.Context, c *conn) {
	var ping <-chan time.Time
	if t.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(t.cfg.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.closed:
			return

		case msg := <-c.send:
			if t.limiter != nil {
				if err := t.limiter.Wait(ctx); err != nil {
					return
				}
			}
			c.setWriteDeadline(t.cfg.WriteWait)
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				t.log.Error("Write error: %v", err)
				c.close()
				return
			}

		case <-ping:
			c.setWriteDeadline(t.cfg.WriteWait)
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

type conn struct {
	ws        *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *conn) setWriteDeadline(d time.Duration) {
	if d > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(d))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
