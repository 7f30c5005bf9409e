// Package presence mirrors which users currently hold an open push channel,
// independent of room membership. There is no polling fallback: a missed
// user-left event leaves the user listed until the next snapshot.
package presence

import (
	"sort"

	"chat-sync/internal/models"
)

// Entry is a connected user plus the service's handle for the connection.
type Entry struct {
	User   models.User
	Handle string
}

type Roster struct {
	entries map[int64]Entry
}

func New() *Roster {
	return &Roster{entries: make(map[int64]Entry)}
}

// ApplySnapshot replaces the roster with the users in a connections event.
func (r *Roster) ApplySnapshot(users []models.ConnectedUser) {
	r.entries = make(map[int64]Entry, len(users))
	for _, u := range users {
		r.Add(u)
	}
}

// Add reports whether the user was not listed before.
func (r *Roster) Add(u models.ConnectedUser) bool {
	_, exists := r.entries[u.ID]
	r.entries[u.ID] = Entry{User: models.User{ID: u.ID, Name: u.Name}, Handle: u.SocketID}
	return !exists
}

func (r *Roster) Remove(userID int64) bool {
	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *Roster) IsActive(userID int64) bool {
	_, ok := r.entries[userID]
	return ok
}

func (r *Roster) Len() int {
	return len(r.entries)
}

// List returns the connected users sorted by name.
func (r *Roster) List() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].User.Name == out[j].User.Name {
			return out[i].User.ID < out[j].User.ID
		}
		return out[i].User.Name < out[j].User.Name
	})
	return out
}
