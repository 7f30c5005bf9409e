package store

import (
	"time"

	"chat-sync/internal/models"

	"golang.org/x/crypto/blake2b"
)

// DedupKey identifies a message this session emitted so its echo from the
// service can be recognised. The transport does not correlate a send with
// its broadcast, so matching is by content within a time window.
type DedupKey struct {
	RoomHashName string
	SenderID     int64
	ContentHash  [32]byte
}

type DedupEntry struct {
	Key        DedupKey
	InsertedAt time.Time
}

func keyFor(hashName string, msg *models.Message) DedupKey {
	kind := msg.Kind
	if kind == "" {
		kind = models.MessageKindText
	}
	buf := make([]byte, 0, len(kind)+len(msg.Content)+len(msg.MediaURL)+2)
	buf = append(buf, kind...)
	buf = append(buf, 0)
	buf = append(buf, msg.Content...)
	buf = append(buf, 0)
	buf = append(buf, msg.MediaURL...)

	return DedupKey{
		RoomHashName: hashName,
		SenderID:     msg.SenderID,
		ContentHash:  blake2b.Sum256(buf),
	}
}

type dedupCache struct {
	ttl     time.Duration
	entries map[DedupKey]time.Time
}

func newDedupCache(ttl time.Duration) *dedupCache {
	return &dedupCache{ttl: ttl, entries: make(map[DedupKey]time.Time)}
}

// record inserts or refreshes the entry for key.
func (c *dedupCache) record(key DedupKey, now time.Time) {
	c.entries[key] = now
}

func (c *dedupCache) live(key DedupKey, now time.Time) bool {
	at, ok := c.entries[key]
	return ok && now.Sub(at) < c.ttl
}

func (c *dedupCache) sweep(now time.Time) int {
	evicted := 0
	for key, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

func (c *dedupCache) forgetRoom(hashName string) {
	for key := range c.entries {
		if key.RoomHashName == hashName {
			delete(c.entries, key)
		}
	}
}

func (c *dedupCache) snapshot() []DedupEntry {
	out := make([]DedupEntry, 0, len(c.entries))
	for key, at := range c.entries {
		out = append(out, DedupEntry{Key: key, InsertedAt: at})
	}
	return out
}
