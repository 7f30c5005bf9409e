package main

import (
	"testing"
	"time"

	"chat-sync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		wantCmd string
		wantArg string
	}{
		{line: "hello there", wantCmd: "", wantArg: "hello there"},
		{line: "  /join abc123 ", wantCmd: "join", wantArg: "abc123"},
		{line: "/CREATE  Weekend plans", wantCmd: "create", wantArg: "Weekend plans"},
		{line: "/leave", wantCmd: "leave", wantArg: ""},
		{line: "", wantCmd: "", wantArg: ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, arg := parseCommand(tt.line)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArg, arg)
		})
	}
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	text := models.Message{SenderName: "bob", Content: "hi", CreatedAt: at, Kind: models.MessageKindText}
	assert.Equal(t, "[09:30] bob: hi", formatMessage(text))

	image := models.Message{SenderName: "bob", MediaURL: "https://media.example/cat.gif", CreatedAt: at, Kind: models.MessageKindImage, Pending: true}
	assert.Equal(t, "[09:30…] bob: [image https://media.example/cat.gif]", formatMessage(image))
}
