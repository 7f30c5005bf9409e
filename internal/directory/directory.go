// Package directory holds the rooms the current user belongs to, keyed by
// hashName. It is owned by the engine loop and is not safe for concurrent use.
package directory

import (
	"fmt"

	"chat-sync/internal/models"
)

// LeaveDeniedError is returned when removing the protected public room.
type LeaveDeniedError struct {
	HashName string
}

func (e *LeaveDeniedError) Error() string {
	return fmt.Sprintf("room %s cannot be left", e.HashName)
}

type Directory struct {
	protected string
	rooms     map[string]*models.Room
	order     []string
}

func New(protectedHash string) *Directory {
	return &Directory{
		protected: protectedHash,
		rooms:     make(map[string]*models.Room),
	}
}

func (d *Directory) Protected() string {
	return d.protected
}

// Upsert stores a copy of room, replacing all metadata of an existing entry.
// Message history travels separately and is never touched here. It reports
// whether the room was new.
func (d *Directory) Upsert(room *models.Room) bool {
	if room == nil || room.HashName == "" {
		return false
	}
	cp := room.Clone()
	cp.Theme = cp.Theme.OrDefault()

	_, exists := d.rooms[cp.HashName]
	d.rooms[cp.HashName] = cp
	if !exists {
		d.order = append(d.order, cp.HashName)
	}
	return !exists
}

// Remove drops a room on leave. The protected room is never removed.
func (d *Directory) Remove(hashName string) error {
	if hashName == d.protected {
		return &LeaveDeniedError{HashName: hashName}
	}
	if _, ok := d.rooms[hashName]; !ok {
		return fmt.Errorf("room not found: %s", hashName)
	}

	delete(d.rooms, hashName)
	for i, h := range d.order {
		if h == hashName {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Directory) Has(hashName string) bool {
	_, ok := d.rooms[hashName]
	return ok
}

// Get returns a copy of the room.
func (d *Directory) Get(hashName string) (*models.Room, bool) {
	room, ok := d.rooms[hashName]
	if !ok {
		return nil, false
	}
	return room.Clone(), true
}

// List returns copies of all rooms in first-seen order.
func (d *Directory) List() []*models.Room {
	rooms := make([]*models.Room, 0, len(d.order))
	for _, h := range d.order {
		rooms = append(rooms, d.rooms[h].Clone())
	}
	return rooms
}

func (d *Directory) Len() int {
	return len(d.rooms)
}

func (d *Directory) ListMembers(hashName string) []models.User {
	room, ok := d.rooms[hashName]
	if !ok {
		return nil
	}
	users := make([]models.User, 0, len(room.Members))
	for _, m := range room.Members {
		users = append(users, models.User{ID: m.UserID, Name: m.Username})
	}
	return users
}

// SetTheme changes the local theme only. Other members pick the change up on
// their next fetch; nothing is broadcast.
func (d *Directory) SetTheme(hashName string, theme models.Theme) bool {
	room, ok := d.rooms[hashName]
	if !ok {
		return false
	}
	room.Theme = theme.OrDefault()
	return true
}

// Find returns a copy of the first room, in first-seen order, matching pred.
func (d *Directory) Find(pred func(*models.Room) bool) (*models.Room, bool) {
	for _, h := range d.order {
		if room := d.rooms[h]; pred(room) {
			return room.Clone(), true
		}
	}
	return nil, false
}
