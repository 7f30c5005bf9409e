package chatsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-sync/internal/models"

	"github.com/google/uuid"
)

type OpKind int

const (
	OpCreateRoom OpKind = iota
	OpJoinRoom
	OpPrivateChat
)

func (k OpKind) String() string {
	switch k {
	case OpCreateRoom:
		return "create-room"
	case OpJoinRoom:
		return "join-room"
	case OpPrivateChat:
		return "private-chat"
	default:
		return "unknown"
	}
}

type OpState int

const (
	OpRequested OpState = iota
	OpAwaitingConfirmation
	OpReconciled
	OpTimedOut
)

func (s OpState) String() string {
	switch s {
	case OpRequested:
		return "requested"
	case OpAwaitingConfirmation:
		return "awaiting-confirmation"
	case OpReconciled:
		return "reconciled"
	case OpTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Operation is a user request whose outcome only becomes visible through a
// later fetch.
type Operation struct {
	ID        string
	Kind      OpKind
	Target    string
	State     OpState
	StartedAt time.Time
}

// reconcileRequest describes one emit, wait, fetch, match round.
type reconcileRequest struct {
	kind    OpKind
	target  string
	intent  string
	payload interface{}

	// prepare runs on the loop before the intent is emitted. A non-nil room
	// resolves the operation without contacting the service.
	prepare func() *models.Room
	// match runs off the loop against the joined rooms listing.
	match func(rooms []*models.Room) *models.Room
	// failure builds the error returned when nothing matched.
	failure func(cause error) error
}

// CreateRoom asks the service for a new room and waits for it to show up in
// the joined listing.
func (e *Engine) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidRoomInput
	}

	known := make(map[string]bool)
	return e.reconcile(ctx, reconcileRequest{
		kind:    OpCreateRoom,
		target:  name,
		intent:  models.IntentCreateRoom,
		payload: models.CreateRoomRequest{Name: name},
		prepare: func() *models.Room {
			for _, room := range e.directory.List() {
				known[room.HashName] = true
			}
			return nil
		},
		match: func(rooms []*models.Room) *models.Room {
			var newest *models.Room
			for _, room := range rooms {
				if room.Name != name || known[room.HashName] {
					continue
				}
				if newest == nil || room.ID > newest.ID {
					newest = room
				}
			}
			return newest
		},
		failure: func(cause error) error {
			return &CreateRoomTimeoutError{Name: name, Wait: e.cfg.ReconcileWait, Cause: cause}
		},
	})
}

// JoinByHash joins the room with the given hash name.
func (e *Engine) JoinByHash(ctx context.Context, hashName string) (*models.Room, error) {
	hashName = strings.TrimSpace(hashName)
	if hashName == "" {
		return nil, ErrInvalidRoomInput
	}

	return e.reconcile(ctx, reconcileRequest{
		kind:    OpJoinRoom,
		target:  hashName,
		intent:  models.IntentJoinRoom,
		payload: models.JoinRoomRequest{HashName: hashName},
		prepare: func() *models.Room {
			room, _ := e.directory.Get(hashName)
			return room
		},
		match: func(rooms []*models.Room) *models.Room {
			for _, room := range rooms {
				if room.HashName == hashName {
					return room
				}
			}
			return nil
		},
		failure: func(cause error) error {
			return &RoomNotFoundError{Target: hashName, Cause: cause}
		},
	})
}

// StartPrivateChat opens the direct room with other, named after both users
// in either order.
func (e *Engine) StartPrivateChat(ctx context.Context, other string) (*models.Room, error) {
	other = strings.TrimSpace(other)
	if other == "" {
		return nil, ErrInvalidRoomInput
	}
	if other == e.sess.Username {
		return nil, ErrSelfChat
	}

	names := e.sess.PrivateRoomNames(other)
	isPair := func(room *models.Room) bool {
		return room.Name == names[0] || room.Name == names[1]
	}

	return e.reconcile(ctx, reconcileRequest{
		kind:    OpPrivateChat,
		target:  other,
		intent:  models.IntentJoinDirect,
		payload: models.JoinDirectRequest{Username: other},
		prepare: func() *models.Room {
			room, _ := e.directory.Find(isPair)
			return room
		},
		match: func(rooms []*models.Room) *models.Room {
			for _, room := range rooms {
				if isPair(room) {
					return room
				}
			}
			return nil
		},
		failure: func(cause error) error {
			return &RoomNotFoundError{Target: names[0], Cause: cause}
		},
	})
}

// Pending lists the operations still in flight.
func (e *Engine) Pending(ctx context.Context) ([]Operation, error) {
	return query(ctx, e, func() []Operation {
		ops := make([]Operation, 0, len(e.pending))
		for _, op := range e.pending {
			ops = append(ops, *op)
		}
		return ops
	})
}

func (e *Engine) reconcile(ctx context.Context, req reconcileRequest) (*models.Room, error) {
	op := &Operation{
		ID:     uuid.NewString(),
		Kind:   req.kind,
		Target: req.target,
		State:  OpRequested,
	}

	var (
		known   *models.Room
		emitErr error
	)
	err := e.loop.do(ctx, func() {
		op.StartedAt = e.now()
		if req.prepare != nil {
			if known = req.prepare(); known != nil {
				return
			}
		}
		if emitErr = e.transport.Emit(req.intent, req.payload); emitErr != nil {
			return
		}
		op.State = OpAwaitingConfirmation
		e.pending[op.ID] = op
		e.log.Debug("Operation %s %s %q awaiting confirmation", op.ID, op.Kind, op.Target)
	})
	if err != nil {
		return nil, err
	}
	if emitErr != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.intent, emitErr)
	}
	if known != nil {
		if err := e.loop.do(ctx, func() { e.setActive(known.HashName) }); err != nil {
			return nil, err
		}
		return known, nil
	}

	room, cause := e.awaitMatch(ctx, req)
	if ctx.Err() != nil {
		e.loop.Post(func() { delete(e.pending, op.ID) })
		return nil, ctx.Err()
	}

	var out *models.Room
	err = e.loop.do(ctx, func() {
		delete(e.pending, op.ID)
		if room == nil {
			op.State = OpTimedOut
			e.log.Warn("Operation %s %s %q timed out", op.ID, op.Kind, op.Target)
			return
		}
		op.State = OpReconciled
		room.EnsureMember(models.Membership{UserID: e.sess.UserID, Username: e.sess.Username})
		e.applyRoom(room)
		e.setActive(room.HashName)
		out, _ = e.directory.Get(room.HashName)
		e.log.Info("Operation %s %s %q reconciled as %s", op.ID, op.Kind, op.Target, room.HashName)
	})
	if err != nil {
		e.loop.Post(func() { delete(e.pending, op.ID) })
		return nil, err
	}
	if out == nil {
		return nil, req.failure(cause)
	}
	return out, nil
}

// awaitMatch waits out the reconciliation delay, then looks for the room in
// the joined listing and fetches its history. A nil room with a nil error
// means the listing did not contain it.
func (e *Engine) awaitMatch(ctx context.Context, req reconcileRequest) (*models.Room, error) {
	timer := time.NewTimer(e.cfg.ReconcileWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rooms, err := e.api.JoinedRooms(ctx)
	if err != nil {
		return nil, err
	}
	matched := req.match(rooms)
	if matched == nil {
		return nil, nil
	}

	full, err := e.api.Room(ctx, matched.HashName)
	if err != nil {
		e.log.Warn("Error fetching room %s, using listing entry: %v", matched.HashName, err)
		return matched, nil
	}
	return full, nil
}
