// Package store keeps the per-room message history, keyed by hashName and
// ordered by arrival. It is owned by the engine loop and is not safe for
// concurrent use.
package store

import (
	"time"

	"chat-sync/internal/models"
	"chat-sync/pkg/logger"
)

type Origin int

const (
	OriginLocal Origin = iota
	OriginPush
	OriginFetchSnapshot
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local-optimistic"
	case OriginPush:
		return "remote-push"
	case OriginFetchSnapshot:
		return "fetch-snapshot"
	default:
		return "unknown"
	}
}

type Outcome int

const (
	OutcomeAppended Outcome = iota
	OutcomeConfirmed
	OutcomeReplaced
	OutcomeIgnored
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Changed reports whether the visible history of the room changed.
func (o Outcome) Changed() bool {
	return o == OutcomeAppended || o == OutcomeConfirmed || o == OutcomeReplaced
}

type history struct {
	messages []models.Message
	ids      map[string]struct{}
	// live is set once local or push traffic touched the room; snapshots no
	// longer apply after that.
	live bool
}

func newHistory() *history {
	return &history{ids: make(map[string]struct{})}
}

func (h *history) append(msg models.Message) {
	h.messages = append(h.messages, msg)
	if msg.ID != "" {
		h.ids[msg.ID] = struct{}{}
	}
}

func (h *history) has(id string) bool {
	_, ok := h.ids[id]
	return id != "" && ok
}

type Store struct {
	rooms    map[string]*history
	dedup    *dedupCache
	now      func() time.Time
	log      *logger.Logger
	observer func(models.Message)
}

func New(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		rooms: make(map[string]*history),
		dedup: newDedupCache(ttl),
		now:   now,
		log:   logger.Named("store"),
	}
}

// SetObserver registers fn to receive every message that becomes visible or
// is confirmed.
func (s *Store) SetObserver(fn func(models.Message)) {
	s.observer = fn
}

func (s *Store) notify(msg models.Message) {
	if s.observer != nil {
		s.observer(msg)
	}
}

func (s *Store) room(hashName string) *history {
	h, ok := s.rooms[hashName]
	if !ok {
		h = newHistory()
		s.rooms[hashName] = h
	}
	return h
}

// Ingest merges one message into the room's history. It never fails: bad
// input is logged and dropped without affecting other messages.
func (s *Store) Ingest(hashName string, msg models.Message, origin Origin) Outcome {
	if origin == OriginFetchSnapshot {
		return s.ReplaceSnapshot(hashName, []models.Message{msg})
	}
	if hashName == "" {
		s.log.Warn("Dropping %s message %q without room", origin, msg.ID)
		return OutcomeDropped
	}
	msg.RoomHashName = hashName
	if err := msg.Validate(); err != nil {
		s.log.Warn("Dropping %s message %q in %s: %v", origin, msg.ID, hashName, err)
		return OutcomeDropped
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageKindText
	}

	h := s.room(hashName)
	h.live = true
	now := s.now()
	key := keyFor(hashName, &msg)

	switch origin {
	case OriginLocal:
		msg.Pending = true
		h.append(msg)
		s.dedup.record(key, now)
		return OutcomeAppended

	case OriginPush:
		if h.has(msg.ID) {
			// The service may echo the id the client generated.
			if confirmed, ok := s.confirmByID(h, msg); ok {
				s.notify(confirmed)
				return OutcomeConfirmed
			}
			s.log.Debug("Ignoring redelivered message %s in %s", msg.ID, hashName)
			return OutcomeIgnored
		}
		if s.dedup.live(key, now) {
			if confirmed, ok := s.confirm(h, key, msg); ok {
				s.notify(confirmed)
				return OutcomeConfirmed
			}
			return OutcomeIgnored
		}
		h.append(msg)
		s.notify(msg)
		return OutcomeAppended

	default:
		s.log.Warn("Dropping message %q with unknown origin %d", msg.ID, origin)
		return OutcomeDropped
	}
}

// confirm marks the oldest pending optimistic message matching key as
// delivered, adopting the service's id and timestamp.
func (s *Store) confirm(h *history, key DedupKey, remote models.Message) (models.Message, bool) {
	for i := range h.messages {
		local := &h.messages[i]
		if !local.Pending || keyFor(key.RoomHashName, local) != key {
			continue
		}
		delete(h.ids, local.ID)
		if remote.ID != "" {
			local.ID = remote.ID
		}
		if !remote.CreatedAt.IsZero() {
			local.CreatedAt = remote.CreatedAt
		}
		local.Pending = false
		h.ids[local.ID] = struct{}{}
		return *local, true
	}
	return models.Message{}, false
}

// confirmByID marks the pending optimistic message carrying remote's id as
// delivered.
func (s *Store) confirmByID(h *history, remote models.Message) (models.Message, bool) {
	for i := range h.messages {
		local := &h.messages[i]
		if local.ID != remote.ID {
			continue
		}
		if !local.Pending {
			return models.Message{}, false
		}
		if !remote.CreatedAt.IsZero() {
			local.CreatedAt = remote.CreatedAt
		}
		local.Pending = false
		return *local, true
	}
	return models.Message{}, false
}

// ReplaceSnapshot installs a fetched history for a room. It only applies to
// initial population: once local or push traffic touched the room, or when
// the incoming sequence does not extend the current one, it is ignored so
// displayed messages are never reordered or truncated.
func (s *Store) ReplaceSnapshot(hashName string, msgs []models.Message) Outcome {
	if hashName == "" {
		s.log.Warn("Dropping snapshot without room")
		return OutcomeDropped
	}
	h := s.room(hashName)
	if h.live {
		s.log.Debug("Ignoring snapshot for %s: push traffic already applied", hashName)
		return OutcomeIgnored
	}

	next := newHistory()
	for _, msg := range msgs {
		msg.RoomHashName = hashName
		if err := msg.Validate(); err != nil {
			s.log.Warn("Dropping snapshot message %q in %s: %v", msg.ID, hashName, err)
			continue
		}
		if msg.Kind == "" {
			msg.Kind = models.MessageKindText
		}
		if next.has(msg.ID) {
			continue
		}
		next.append(msg)
	}

	if !isPrefix(h.messages, next.messages) {
		s.log.Debug("Ignoring snapshot for %s: does not extend current history", hashName)
		return OutcomeIgnored
	}
	added := next.messages[len(h.messages):]
	s.rooms[hashName] = next
	for _, msg := range added {
		s.notify(msg)
	}
	return OutcomeReplaced
}

func isPrefix(current, next []models.Message) bool {
	if len(current) > len(next) {
		return false
	}
	for i := range current {
		if current[i].ID != next[i].ID {
			return false
		}
	}
	return true
}

// Messages returns a copy of the room's history.
func (s *Store) Messages(hashName string) []models.Message {
	h, ok := s.rooms[hashName]
	if !ok {
		return nil
	}
	return append([]models.Message(nil), h.messages...)
}

func (s *Store) Len(hashName string) int {
	if h, ok := s.rooms[hashName]; ok {
		return len(h.messages)
	}
	return 0
}

// Forget drops a room's history and dedup entries, used on leave.
func (s *Store) Forget(hashName string) {
	delete(s.rooms, hashName)
	s.dedup.forgetRoom(hashName)
}

// Sweep evicts expired dedup entries and returns how many were removed.
func (s *Store) Sweep() int {
	return s.dedup.sweep(s.now())
}

func (s *Store) DedupEntries() []DedupEntry {
	return s.dedup.snapshot()
}
