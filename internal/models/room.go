package models

import "time"

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Visibility of a room as reported by the service.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Membership struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Room is keyed by HashName everywhere outside the service; ID is the
// service's internal numeric key. Messages is only filled on the wire
// (room-joined events and GET /room/{hash}).
type Room struct {
	ID         int64        `json:"id"`
	HashName   string       `json:"hashName"`
	Name       string       `json:"name"`
	Visibility Visibility   `json:"visibility"`
	Theme      Theme        `json:"theme"`
	OwnerID    int64        `json:"ownerId,omitempty"`
	Members    []Membership `json:"users"`
	Messages   []Message    `json:"messages,omitempty"`
	CreatedAt  time.Time    `json:"createdAt,omitempty"`
}

func (r *Room) IsPrivate() bool {
	return r.Visibility == VisibilityPrivate
}

func (r *Room) HasMember(userID int64) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// EnsureMember appends m unless a membership for the same user exists.
func (r *Room) EnsureMember(m Membership) {
	if r.HasMember(m.UserID) {
		return
	}
	r.Members = append(r.Members, m)
}

// Clone returns a deep copy without the wire-only message history.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Messages = nil
	cp.Members = append([]Membership(nil), r.Members...)
	return &cp
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	HashName string `json:"hashName"`
}

type LeaveRoomRequest struct {
	HashName string `json:"hashName"`
}

type JoinDirectRequest struct {
	Username string `json:"username"`
}

type SetThemeRequest struct {
	Theme Theme `json:"theme"`
}

type SetThemeResponse struct {
	Success bool `json:"success"`
}
