package chatsync

import (
	"context"
	"fmt"
	"strings"

	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/store"
	"chat-sync/internal/transport"

	"github.com/google/uuid"
)

// query runs fn on the loop and returns its result.
func query[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var out T
	err := e.loop.do(ctx, func() { out = fn() })
	return out, err
}

// SendMessage emits a text message and appends it optimistically once the
// emit succeeded. The returned message is pending until the service echoes it.
func (e *Engine) SendMessage(ctx context.Context, hashName, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return e.send(ctx, models.Message{
		Content:      content,
		RoomHashName: hashName,
		Kind:         models.MessageKindText,
	})
}

// SendImage sends an image message with an optional caption.
func (e *Engine) SendImage(ctx context.Context, hashName, caption, mediaURL string) (models.Message, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return e.send(ctx, models.Message{
		Content:      caption,
		RoomHashName: hashName,
		Kind:         models.MessageKindImage,
		MediaURL:     mediaURL,
	})
}

func (e *Engine) send(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.NewString()
	msg.SenderID = e.sess.UserID
	msg.SenderName = e.sess.Username
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}

	var sendErr error
	err := e.loop.do(ctx, func() {
		if !e.directory.Has(msg.RoomHashName) {
			sendErr = &RoomNotFoundError{Target: msg.RoomHashName}
			return
		}
		msg.CreatedAt = e.now()
		req := models.SendMessageRequest{
			ID:           msg.ID,
			Content:      msg.Content,
			RoomHashName: msg.RoomHashName,
			Kind:         msg.Kind,
			MediaURL:     msg.MediaURL,
		}
		if sendErr = e.transport.Emit(models.IntentSendMessage, req); sendErr != nil {
			return
		}
		if e.store.Ingest(msg.RoomHashName, msg, store.OriginLocal).Changed() {
			e.notify(UpdateMessages, msg.RoomHashName)
		}
	})
	if err != nil {
		return models.Message{}, err
	}
	if sendErr != nil {
		return models.Message{}, fmt.Errorf("failed to send message: %w", sendErr)
	}
	msg.Pending = true
	return msg, nil
}

// SetTheme asks the service to change a room's theme and applies it locally
// only once the service accepted it.
func (e *Engine) SetTheme(ctx context.Context, hashName string, theme models.Theme) error {
	parsed, err := models.ParseTheme(string(theme))
	if err != nil {
		return &ThemeUpdateError{HashName: hashName, Theme: theme, Cause: err}
	}
	theme = parsed

	var known bool
	if err := e.loop.do(ctx, func() { known = e.directory.Has(hashName) }); err != nil {
		return err
	}
	if !known {
		return &RoomNotFoundError{Target: hashName}
	}

	ok, err := e.api.SetTheme(ctx, hashName, theme)
	if err != nil {
		return &ThemeUpdateError{HashName: hashName, Theme: theme, Cause: err}
	}
	if !ok {
		return &ThemeUpdateError{HashName: hashName, Theme: theme}
	}

	return e.loop.do(ctx, func() {
		if e.directory.SetTheme(hashName, theme) {
			e.notify(UpdateRooms, hashName)
		}
	})
}

// Leave removes the user from a room. The public room cannot be left; the
// call then returns a *directory.LeaveDeniedError and nothing changes.
func (e *Engine) Leave(ctx context.Context, hashName string) error {
	var leaveErr error
	err := e.loop.do(ctx, func() {
		if hashName != e.directory.Protected() && !e.directory.Has(hashName) {
			leaveErr = &RoomNotFoundError{Target: hashName}
			return
		}
		if hashName != e.directory.Protected() {
			if err := e.transport.Emit(models.IntentLeaveRoom, models.LeaveRoomRequest{HashName: hashName}); err != nil {
				leaveErr = fmt.Errorf("failed to send %s: %w", models.IntentLeaveRoom, err)
				return
			}
		}
		if leaveErr = e.directory.Remove(hashName); leaveErr != nil {
			return
		}
		e.store.Forget(hashName)
		e.notify(UpdateRooms, hashName)
		if e.active == hashName {
			next := ""
			if e.directory.Has(e.directory.Protected()) {
				next = e.directory.Protected()
			}
			e.setActive(next)
		}
	})
	if err != nil {
		return err
	}
	return leaveErr
}

// SelectRoom makes a known room the active one.
func (e *Engine) SelectRoom(ctx context.Context, hashName string) error {
	var selectErr error
	err := e.loop.do(ctx, func() {
		if !e.directory.Has(hashName) {
			selectErr = &RoomNotFoundError{Target: hashName}
			return
		}
		e.setActive(hashName)
	})
	if err != nil {
		return err
	}
	return selectErr
}

// SearchImages delegates to the configured image searcher.
func (e *Engine) SearchImages(ctx context.Context, q string, page int) ([]string, error) {
	if e.searcher == nil {
		return nil, ErrNoImageSearch
	}
	if page < 1 {
		page = 1
	}
	return e.searcher.SearchImages(ctx, q, page)
}

func (e *Engine) State() transport.State {
	return e.transport.State()
}

func (e *Engine) Rooms(ctx context.Context) ([]*models.Room, error) {
	return query(ctx, e, e.directory.List)
}

func (e *Engine) Room(ctx context.Context, hashName string) (*models.Room, error) {
	var (
		room *models.Room
		ok   bool
	)
	if err := e.loop.do(ctx, func() { room, ok = e.directory.Get(hashName) }); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RoomNotFoundError{Target: hashName}
	}
	return room, nil
}

func (e *Engine) Messages(ctx context.Context, hashName string) ([]models.Message, error) {
	return query(ctx, e, func() []models.Message { return e.store.Messages(hashName) })
}

func (e *Engine) Members(ctx context.Context, hashName string) ([]models.User, error) {
	return query(ctx, e, func() []models.User { return e.directory.ListMembers(hashName) })
}

func (e *Engine) ActiveUsers(ctx context.Context) ([]presence.Entry, error) {
	return query(ctx, e, e.roster.List)
}

func (e *Engine) ActiveRoom(ctx context.Context) (string, error) {
	return query(ctx, e, func() string { return e.active })
}
