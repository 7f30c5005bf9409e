// Package chatsync keeps the client's view of rooms, messages and presence in
// step with the chat service. All state is owned by one event loop: push
// events, fetch results and user operations are queued as tasks and applied
// one at a time.
package chatsync

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"chat-sync/internal/directory"
	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/session"
	"chat-sync/internal/store"
	"chat-sync/internal/transport"
	"chat-sync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Transport is the push channel as the engine uses it. *transport.Transport
// satisfies it.
type Transport interface {
	On(event string, h transport.Handler)
	OnState(fn func(transport.State))
	OnFatal(fn func(error))
	Connect(ctx context.Context, sess session.Session) error
	Disconnect()
	Emit(event string, payload interface{}) error
	State() transport.State
}

// RoomAPI is the fetch side of the service. *api.Client satisfies it.
type RoomAPI interface {
	JoinedRooms(ctx context.Context) ([]*models.Room, error)
	Room(ctx context.Context, hashName string) (*models.Room, error)
	SetTheme(ctx context.Context, hashName string, theme models.Theme) (bool, error)
}

// ImageSearcher looks up image URLs for the image picker.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, page int) ([]string, error)
}

type Config struct {
	PublicRoom         string
	ReconcileWait      time.Duration
	DedupTTL           time.Duration
	DedupSweepInterval time.Duration
	FetchConcurrency   int
}

func (c Config) withDefaults() Config {
	if c.PublicRoom == "" {
		c.PublicRoom = "global"
	}
	if c.ReconcileWait <= 0 {
		c.ReconcileWait = time.Second
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Second
	}
	if c.DedupSweepInterval <= 0 {
		c.DedupSweepInterval = c.DedupTTL / 2
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	return c
}

type UpdateKind int

const (
	UpdateConnection UpdateKind = iota
	UpdateRooms
	UpdateMessages
	UpdatePresence
	UpdateActiveRoom
	// UpdateSynced follows the initial fetch after every (re)connect.
	UpdateSynced
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateConnection:
		return "connection"
	case UpdateRooms:
		return "rooms"
	case UpdateMessages:
		return "messages"
	case UpdatePresence:
		return "presence"
	case UpdateActiveRoom:
		return "active-room"
	case UpdateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Update tells the UI which part of the state changed. RoomHashName is set
// for room scoped updates.
type Update struct {
	Kind         UpdateKind
	RoomHashName string
}

type Option func(*Engine)

// WithLoop makes the engine run on loop, so a transport built with the same
// loop as its poster delivers events into it.
func WithLoop(loop *Loop) Option {
	return func(e *Engine) { e.loop = loop }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithImageSearcher(s ImageSearcher) Option {
	return func(e *Engine) { e.searcher = s }
}

// WithMessageObserver registers fn for every message the store appends or
// confirms. fn runs on the event loop and must not block.
func WithMessageObserver(fn func(models.Message)) Option {
	return func(e *Engine) { e.observer = fn }
}

type Engine struct {
	cfg       Config
	sess      session.Session
	transport Transport
	api       RoomAPI
	searcher  ImageSearcher
	observer  func(models.Message)
	now       func() time.Time
	loop      *Loop
	log       *logger.Logger

	// Owned by the loop.
	directory *directory.Directory
	store     *store.Store
	roster    *presence.Roster
	active    string
	pending   map[string]*Operation
	fatalErr  error
	runCtx    context.Context

	updates chan Update
	running atomic.Bool
}

func New(cfg Config, sess session.Session, t Transport, api RoomAPI, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		sess:      sess,
		transport: t,
		api:       api,
		now:       time.Now,
		log:       logger.Named("chatsync"),
		roster:    presence.New(),
		pending:   make(map[string]*Operation),
		updates:   make(chan Update, 64),
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loop == nil {
		e.loop = NewLoop()
	}
	e.directory = directory.New(cfg.PublicRoom)
	e.store = store.New(cfg.DedupTTL, e.now)
	if e.observer != nil {
		e.store.SetObserver(e.observer)
	}

	t.On(models.EventConnections, e.handleConnections)
	t.On(models.EventUserJoined, e.handleUserJoined)
	t.On(models.EventUserLeft, e.handleUserLeft)
	t.On(models.EventRoomJoined, e.handleRoomJoined)
	t.On(models.EventMessage, e.handleMessage)
	t.OnState(e.handleState)
	t.OnFatal(e.handleFatal)
	return e
}

// Updates delivers change notifications. Sends never block; a slow reader
// misses updates, not state.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

func (e *Engine) Session() session.Session {
	return e.sess
}

// Run connects the transport and runs the event loop until ctx is done or the
// session is rejected. It returns the *transport.AuthenticationError in the
// latter case and nil on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.runCtx = ctx

	// Stop the loop before the transport so its final state posts are
	// refused instead of blocking on a loop nobody drains.
	defer e.transport.Disconnect()
	defer e.loop.stop()

	if err := e.transport.Connect(ctx, e.sess); err != nil {
		return err
	}
	e.log.Info("Engine started for %s (user %d)", e.sess.Username, e.sess.UserID)

	sweep := time.NewTicker(e.cfg.DedupSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case task := <-e.loop.tasks:
			task()
			if e.fatalErr != nil {
				e.log.Error("Session ended: %v", e.fatalErr)
				return e.fatalErr
			}
		case <-sweep.C:
			if n := e.store.Sweep(); n > 0 {
				e.log.Debug("Evicted %d dedup entries", n)
			}
		case <-ctx.Done():
			e.log.Info("Engine stopped")
			return nil
		}
	}
}

func (e *Engine) notify(kind UpdateKind, hashName string) {
	select {
	case e.updates <- Update{Kind: kind, RoomHashName: hashName}:
	default:
	}
}

func (e *Engine) handleState(s transport.State) {
	e.log.Debug("Transport %s", s)
	e.notify(UpdateConnection, "")
	if s == transport.Connected {
		go e.initialFetch(e.runCtx)
	}
}

func (e *Engine) handleFatal(err error) {
	if e.fatalErr == nil {
		e.fatalErr = err
		e.notify(UpdateConnection, "")
	}
}

func (e *Engine) handleConnections(payload json.RawMessage) {
	var users []models.ConnectedUser
	if err := json.Unmarshal(payload, &users); err != nil {
		e.log.Warn("Error decoding %s event: %v", models.EventConnections, err)
		return
	}
	e.roster.ApplySnapshot(users)
	e.notify(UpdatePresence, "")
}

func (e *Engine) handleUserJoined(payload json.RawMessage) {
	var user models.ConnectedUser
	if err := json.Unmarshal(payload, &user); err != nil {
		e.log.Warn("Error decoding %s event: %v", models.EventUserJoined, err)
		return
	}
	if e.roster.Add(user) {
		e.notify(UpdatePresence, "")
	}
}

func (e *Engine) handleUserLeft(payload json.RawMessage) {
	var ev models.UserLeftEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		e.log.Warn("Error decoding %s event: %v", models.EventUserLeft, err)
		return
	}
	if e.roster.Remove(ev.ID) {
		e.notify(UpdatePresence, "")
	}
}

// handleRoomJoined populates the directory passively, whether or not an
// operation is waiting for the room.
func (e *Engine) handleRoomJoined(payload json.RawMessage) {
	var room models.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		e.log.Warn("Error decoding %s event: %v", models.EventRoomJoined, err)
		return
	}
	if room.HashName == "" {
		e.log.Warn("Dropping %s event without hash name", models.EventRoomJoined)
		return
	}
	e.applyRoom(&room)
	if e.active == "" {
		e.setActive(room.HashName)
	}
}

func (e *Engine) handleMessage(payload json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		e.log.Warn("Error decoding %s event: %v", models.EventMessage, err)
		return
	}
	if e.store.Ingest(msg.RoomHashName, msg, store.OriginPush).Changed() {
		e.notify(UpdateMessages, msg.RoomHashName)
	}
}

// applyRoom upserts room and offers its history to the store.
func (e *Engine) applyRoom(room *models.Room) {
	if e.directory.Upsert(room) {
		e.log.Debug("Room %s (%s) added", room.HashName, room.Name)
	}
	e.notify(UpdateRooms, room.HashName)
	if room.Messages == nil {
		return
	}
	if e.store.ReplaceSnapshot(room.HashName, room.Messages) == store.OutcomeReplaced {
		e.notify(UpdateMessages, room.HashName)
	}
}

func (e *Engine) setActive(hashName string) {
	if e.active == hashName {
		return
	}
	e.active = hashName
	e.notify(UpdateActiveRoom, hashName)
}

// initialFetch loads every joined room with its history after a connect.
func (e *Engine) initialFetch(ctx context.Context) {
	listing, err := e.api.JoinedRooms(ctx)
	if err != nil {
		e.log.Error("Error fetching joined rooms: %v", err)
		return
	}

	rooms := make([]*models.Room, len(listing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for i, entry := range listing {
		if entry == nil || entry.HashName == "" {
			continue
		}
		g.Go(func() error {
			full, err := e.api.Room(gctx, entry.HashName)
			if err != nil {
				e.log.Warn("Error fetching room %s, using listing entry: %v", entry.HashName, err)
				rooms[i] = entry
				return nil
			}
			rooms[i] = full
			return nil
		})
	}
	_ = g.Wait()

	e.loop.Post(func() {
		for _, room := range rooms {
			if room != nil {
				e.applyRoom(room)
			}
		}
		if e.active == "" {
			if e.directory.Has(e.cfg.PublicRoom) {
				e.setActive(e.cfg.PublicRoom)
			} else if list := e.directory.List(); len(list) > 0 {
				e.setActive(list[0].HashName)
			}
		}
		e.log.Info("Synced %d rooms", e.directory.Len())
		e.notify(UpdateSynced, "")
	})
}
