package models

import "encoding/json"

// Push channel event names.
const (
	EventConnections = "connections"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventRoomJoined  = "room-joined"
	EventMessage     = "message"
)

// Outbound intents.
const (
	IntentSendMessage = "send-message"
	IntentJoinRoom    = "join-room"
	IntentCreateRoom  = "create-room"
	IntentJoinDirect  = "join-direct"
	IntentLeaveRoom   = "leave-room"
)

// Frame is the JSON envelope of every push channel message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectedUser is one entry of a connections snapshot or a user-joined event.
type ConnectedUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	SocketID string `json:"socketId,omitempty"`
}

type UserLeftEvent struct {
	ID int64 `json:"id"`
}
