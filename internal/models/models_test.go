package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Theme
		wantErr bool
	}{
		{in: "dark", want: ThemeDark},
		{in: " Blue ", want: ThemeBlue},
		{in: "", want: ThemeDefault},
		{in: "neon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTheme(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTheme_OrDefault(t *testing.T) {
	assert.Equal(t, ThemeDefault, Theme("").OrDefault())
	assert.Equal(t, ThemeDark, ThemeDark.OrDefault())
	assert.Equal(t, ThemePink, Theme("Pink").OrDefault())
	assert.Equal(t, ThemeDefault, Theme("neon").OrDefault())
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{name: "text", msg: Message{RoomHashName: "abc", Content: "hi", Kind: MessageKindText}},
		{name: "kind defaults to text", msg: Message{RoomHashName: "abc", Content: "hi"}},
		{name: "image without caption", msg: Message{RoomHashName: "abc", Kind: MessageKindImage, MediaURL: "https://img/x.gif"}},
		{name: "no room", msg: Message{Content: "hi"}, wantErr: true},
		{name: "empty text", msg: Message{RoomHashName: "abc"}, wantErr: true},
		{name: "image without url", msg: Message{RoomHashName: "abc", Kind: MessageKindImage}, wantErr: true},
		{name: "unknown kind", msg: Message{RoomHashName: "abc", Content: "hi", Kind: "video"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoom_EnsureMemberAndClone(t *testing.T) {
	room := &Room{HashName: "abc", Members: []Membership{{UserID: 1, Username: "alice"}}}
	room.EnsureMember(Membership{UserID: 1, Username: "alice"})
	room.EnsureMember(Membership{UserID: 2, Username: "bob"})
	assert.Len(t, room.Members, 2)

	room.Messages = []Message{{ID: "m1"}}
	cp := room.Clone()
	cp.Members[0].Username = "mallory"
	assert.Equal(t, "alice", room.Members[0].Username)
	assert.Nil(t, cp.Messages)
}

func TestRoom_DecodeWire(t *testing.T) {
	raw := `{"id":7,"hashName":"abc123","name":"Team","visibility":"private","theme":"dark",
		"users":[{"userId":1,"username":"alice"}],
		"messages":[{"id":"m1","content":"hi","senderId":1,"senderName":"alice","roomHashName":"abc123","type":"text"}]}`

	var room Room
	require.NoError(t, json.Unmarshal([]byte(raw), &room))
	assert.Equal(t, "abc123", room.HashName)
	assert.True(t, room.IsPrivate())
	assert.Equal(t, ThemeDark, room.Theme)
	require.Len(t, room.Messages, 1)
	assert.Equal(t, MessageKindText, room.Messages[0].Kind)
}
