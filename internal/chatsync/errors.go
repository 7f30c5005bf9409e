package chatsync

import (
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/models"
)

var (
	ErrSelfChat         = errors.New("cannot start a chat with yourself")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNoImageSearch    = errors.New("image search is not configured")
	ErrAlreadyRunning   = errors.New("chatsync: engine already running")
	ErrInvalidRoomInput = errors.New("room name or hash is required")
)

// RoomNotFoundError reports a join, private chat or room lookup that could
// not be matched against the rooms the user belongs to.
type RoomNotFoundError struct {
	Target string
	Cause  error
}

func (e *RoomNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("room %s not found: %v", e.Target, e.Cause)
	}
	return fmt.Sprintf("room %s not found", e.Target)
}

func (e *RoomNotFoundError) Unwrap() error { return e.Cause }

// CreateRoomTimeoutError reports a created room that did not show up in the
// joined listing after the reconciliation wait. The room may still appear
// later through a room-joined event.
type CreateRoomTimeoutError struct {
	Name  string
	Wait  time.Duration
	Cause error
}

func (e *CreateRoomTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("room %q not confirmed after %s: %v", e.Name, e.Wait, e.Cause)
	}
	return fmt.Sprintf("room %q not confirmed after %s", e.Name, e.Wait)
}

func (e *CreateRoomTimeoutError) Unwrap() error { return e.Cause }

// ThemeUpdateError reports a rejected theme change; the local theme is left
// as it was.
type ThemeUpdateError struct {
	HashName string
	Theme    models.Theme
	Cause    error
}

func (e *ThemeUpdateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("set theme %s on %s: %v", e.Theme, e.HashName, e.Cause)
	}
	return fmt.Sprintf("set theme %s on %s: rejected by service", e.Theme, e.HashName)
}

func (e *ThemeUpdateError) Unwrap() error { return e.Cause }
