// Package archive keeps a local transcript of every message the client has
// seen delivered, in Postgres. It is optional and never feeds back into the
// synchronized state.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/pkg/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueueSize = 512

const schema = `
CREATE TABLE IF NOT EXISTS transcript_messages (
	id          TEXT PRIMARY KEY,
	room_hash   TEXT NOT NULL,
	sender_id   BIGINT NOT NULL,
	sender_name TEXT NOT NULL,
	kind        TEXT NOT NULL,
	content     TEXT NOT NULL,
	media_url   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcript_messages_room_idx ON transcript_messages (room_hash, created_at);`

const insertMessage = `
INSERT INTO transcript_messages (id, room_hash, sender_id, sender_name, kind, content, media_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET created_at = EXCLUDED.created_at`

// Execer is the subset of *pgxpool.Pool the archive needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Archive struct {
	db    Execer
	queue chan models.Message
	done  chan struct{}
	log   *logger.Logger

	mu      sync.Mutex
	closed  bool
	started bool
}

// Open connects to Postgres, creates the transcript table and returns an
// archive whose Close also closes the pool.
func Open(ctx context.Context, databaseURL string) (*Archive, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := New(pool, defaultQueueSize)
	if err := a.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	a.log.Info("Connected to transcript database")
	return a, pool.Close, nil
}

func New(db Execer, queueSize int) *Archive {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Archive{
		db:    db,
		queue: make(chan models.Message, queueSize),
		done:  make(chan struct{}),
		log:   logger.Named("archive"),
	}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create transcript schema: %w", err)
	}
	return nil
}

// Record queues msg without blocking. Pending optimistic messages are
// skipped until the service confirms them. It reports whether msg was queued.
func (a *Archive) Record(msg models.Message) bool {
	if msg.Pending || msg.ID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- msg:
		return true
	default:
		a.log.Warn("Transcript queue full, dropping message %s", msg.ID)
		return false
	}
}

// Start runs the writer until Close.
func (a *Archive) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	go func() {
		defer close(a.done)
		for msg := range a.queue {
			if err := a.write(ctx, msg); err != nil {
				a.log.Error("Error saving message %s: %v", msg.ID, err)
			}
		}
	}()
}

// Close stops accepting messages and waits for queued ones to be written.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	if !a.started {
		close(a.done)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Archive) write(ctx context.Context, msg models.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	kind := msg.Kind
	if kind == "" {
		kind = models.MessageKindText
	}
	_, err := a.db.Exec(ctx, insertMessage,
		msg.ID, msg.RoomHashName, msg.SenderID, msg.SenderName, string(kind), msg.Content, msg.MediaURL, createdAt)
	return err
}
