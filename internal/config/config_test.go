package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_URL", "WS_URL", "PUBLIC_ROOM", "RECONCILE_WAIT", "DEDUP_TTL", "SEND_RATE", "USER_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "http://localhost:8080", cfg.Service.HTTPURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Service.WSURL)
	assert.Equal(t, "global", cfg.Sync.PublicRoom)
	assert.Equal(t, time.Second, cfg.Sync.ReconcileWait)
	assert.Equal(t, 10*time.Second, cfg.Sync.DedupTTL)
	assert.Equal(t, 10.0, cfg.Transport.SendRate)
	assert.Equal(t, int64(0), cfg.Session.UserID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WS_URL", "wss://chat.example.com/ws")
	t.Setenv("PUBLIC_ROOM", "lobby")
	t.Setenv("RECONCILE_WAIT", "1500ms")
	t.Setenv("DEDUP_TTL", "3s")
	t.Setenv("USER_ID", "42")
	t.Setenv("USERNAME", "alice")
	t.Setenv("SEND_RATE", "2.5")
	t.Setenv("DATABASE_URL", "postgres://chat@localhost/transcripts")

	cfg := Load()

	assert.Equal(t, "wss://chat.example.com/ws", cfg.Service.WSURL)
	assert.Equal(t, "lobby", cfg.Sync.PublicRoom)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.ReconcileWait)
	assert.Equal(t, 3*time.Second, cfg.Sync.DedupTTL)
	assert.Equal(t, int64(42), cfg.Session.UserID)
	assert.Equal(t, "alice", cfg.Session.Username)
	assert.Equal(t, 2.5, cfg.Transport.SendRate)
	assert.Equal(t, "postgres://chat@localhost/transcripts", cfg.Archive.DatabaseURL)
}
