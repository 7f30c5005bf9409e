package models

import (
	"errors"
	"strings"
	"time"
)

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

type Message struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	SenderID     int64       `json:"senderId"`
	SenderName   string      `json:"senderName"`
	RoomHashName string      `json:"roomHashName"`
	CreatedAt    time.Time   `json:"createdAt"`
	Kind         MessageKind `json:"type"`
	MediaURL     string      `json:"mediaUrl,omitempty"`

	// Pending marks a locally echoed message the service has not broadcast back yet.
	Pending bool `json:"-"`
}

// Validate reports whether an inbound message is usable at all.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.RoomHashName) == "" {
		return errors.New("message has no room")
	}
	switch m.Kind {
	case "", MessageKindText:
		if m.Content == "" {
			return errors.New("text message has no content")
		}
	case MessageKindImage:
		if m.MediaURL == "" {
			return errors.New("image message has no media url")
		}
	default:
		return errors.New("unknown message kind " + string(m.Kind))
	}
	return nil
}

// SendMessageRequest is the send-message intent payload.
type SendMessageRequest struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	RoomHashName string      `json:"roomHashName"`
	Kind         MessageKind `json:"type"`
	MediaURL     string      `json:"mediaUrl,omitempty"`
}
