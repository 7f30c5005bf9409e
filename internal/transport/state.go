package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyConnected = errors.New("transport: already connected")
	ErrSendQueueFull    = errors.New("transport: send queue full")
)

// AuthenticationError is returned when the service rejects the session at
// handshake. It ends the session; it is never retried.
type AuthenticationError struct {
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("transport: authentication rejected (status %d)", e.StatusCode)
}

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Poster runs tasks on the owner's event loop, one at a time, in submission
// order. Post returns false once the loop has stopped.
type Poster interface {
	Post(task func()) bool
}

type PosterFunc func(task func()) bool

func (f PosterFunc) Post(task func()) bool {
	return f(task)
}
