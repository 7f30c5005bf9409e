package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/transport"

	"github.com/stretchr/testify/require"
)

var alice = session.Session{UserID: 1, Username: "alice", Secret: "tok"}

type emitted struct {
	event   string
	payload interface{}
}

// fakeTransport delivers events through the loop the same way the websocket
// transport does.
type fakeTransport struct {
	loop *Loop

	mu       sync.Mutex
	handlers map[string]transport.Handler
	stateFns []func(transport.State)
	fatalFns []func(error)
	state    transport.State
	emits    []emitted
	emitErr  error
	onEmit   func(event string, payload interface{})
	fatal    error
}

func newFakeTransport(loop *Loop) *fakeTransport {
	return &fakeTransport{loop: loop, handlers: make(map[string]transport.Handler)}
}

func (f *fakeTransport) On(event string, h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeTransport) OnState(fn func(transport.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateFns = append(f.stateFns, fn)
}

func (f *fakeTransport) OnFatal(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fatalFns = append(f.fatalFns, fn)
}

func (f *fakeTransport) Connect(_ context.Context, _ session.Session) error {
	f.mu.Lock()
	fatal := f.fatal
	f.mu.Unlock()
	if fatal != nil {
		f.fail(fatal)
		return nil
	}
	f.setState(transport.Connected)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.Disconnected
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	if f.emitErr != nil {
		err := f.emitErr
		f.mu.Unlock()
		return err
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	hook := f.onEmit
	f.mu.Unlock()
	if hook != nil {
		hook(event, payload)
	}
	return nil
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) setState(s transport.State) {
	f.mu.Lock()
	f.state = s
	fns := append(([]func(transport.State))(nil), f.stateFns...)
	f.mu.Unlock()
	f.loop.Post(func() {
		for _, fn := range fns {
			fn(s)
		}
	})
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	fns := append(([]func(error))(nil), f.fatalFns...)
	f.mu.Unlock()
	f.loop.Post(func() {
		for _, fn := range fns {
			fn(err)
		}
	})
}

// push delivers an inbound event as if it came off the wire.
func (f *fakeTransport) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.pushRaw(event, raw)
}

func (f *fakeTransport) pushRaw(event string, raw json.RawMessage) {
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h == nil {
		return
	}
	f.loop.Post(func() { h(raw) })
}

func (f *fakeTransport) emitted(event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

// fakeAPI serves the joined listing and room details from memory.
type fakeAPI struct {
	mu        sync.Mutex
	joined    []*models.Room
	details   map[string]*models.Room
	listErr   error
	roomErr   error
	onRoom    func()
	themeOK   bool
	themeErr  error
	themeSets []models.Theme
}

func newFakeAPI(rooms ...*models.Room) *fakeAPI {
	f := &fakeAPI{details: make(map[string]*models.Room), themeOK: true}
	for _, r := range rooms {
		f.add(r)
	}
	return f
}

// add lists room as joined and serves it, history included, from Room.
func (f *fakeAPI) add(room *models.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	listing := room.Clone()
	f.joined = append(f.joined, listing)
	full := room.Clone()
	full.Messages = append([]models.Message(nil), room.Messages...)
	f.details[room.HashName] = full
}

func (f *fakeAPI) JoinedRooms(_ context.Context) ([]*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.Room, 0, len(f.joined))
	for _, r := range f.joined {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeAPI) Room(_ context.Context, hashName string) (*models.Room, error) {
	f.mu.Lock()
	hook := f.onRoom
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomErr != nil {
		return nil, f.roomErr
	}
	r, ok := f.details[hashName]
	if !ok {
		return nil, errors.New("404 room not found")
	}
	cp := r.Clone()
	cp.Messages = append([]models.Message(nil), r.Messages...)
	return cp, nil
}

func (f *fakeAPI) SetTheme(_ context.Context, _ string, theme models.Theme) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.themeSets = append(f.themeSets, theme)
	return f.themeOK, f.themeErr
}

type harness struct {
	engine    *Engine
	transport *fakeTransport
	api       *fakeAPI
	done      chan error
}

func testConfig() Config {
	return Config{
		PublicRoom:         "global",
		ReconcileWait:      20 * time.Millisecond,
		DedupTTL:           10 * time.Second,
		DedupSweepInterval: time.Hour,
	}
}

func globalRoom() *models.Room {
	return &models.Room{ID: 1, HashName: "global", Name: "Global Chat", Visibility: models.VisibilityPublic}
}

// startEngine runs an engine against fakes and waits for the initial sync.
func startEngine(t *testing.T, api *fakeAPI, opts ...Option) *harness {
	t.Helper()
	h := newHarness(t, api, opts...)
	h.start(t)
	h.waitFor(t, UpdateSynced)
	return h
}

func newHarness(t *testing.T, api *fakeAPI, opts ...Option) *harness {
	t.Helper()
	return newHarnessConfig(t, testConfig(), api, opts...)
}

func newHarnessConfig(t *testing.T, cfg Config, api *fakeAPI, opts ...Option) *harness {
	t.Helper()
	loop := NewLoop()
	tr := newFakeTransport(loop)
	opts = append([]Option{WithLoop(loop)}, opts...)
	return &harness{
		engine:    New(cfg, alice, tr, api, opts...),
		transport: tr,
		api:       api,
		done:      make(chan error, 1),
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

func (h *harness) waitFor(t *testing.T, kind UpdateKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-h.engine.Updates():
			if u.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("no %s update", kind)
		}
	}
}
