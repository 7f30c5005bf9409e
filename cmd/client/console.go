package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"chat-sync/internal/chatsync"
	"chat-sync/internal/models"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  /rooms               list joined rooms
  /switch <hash>       make a room active
  /join <hash>         join a room by hash
  /create <name>       create a room
  /dm <username>       open a private chat
  /theme <theme>       set the active room's theme
  /leave [hash]        leave a room (default: active)
  /members             list members of the active room
  /users               list connected users
  /image <url> [text]  send an image
  /search <query>      search images
  /quit                exit
anything else is sent to the active room`

// parseCommand splits "/cmd arg..." into its parts. Plain text yields an
// empty command.
func parseCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

type console struct {
	engine *chatsync.Engine
	out    io.Writer

	mu      sync.Mutex
	printed map[string]int
}

func newConsole(engine *chatsync.Engine, out io.Writer) *console {
	return &console{engine: engine, out: out, printed: make(map[string]int)}
}

func (c *console) printf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", v...)
}

func (c *console) execute(ctx context.Context, line string) error {
	cmd, arg := parseCommand(line)
	switch cmd {
	case "":
		if arg == "" {
			return nil
		}
		active, err := c.engine.ActiveRoom(ctx)
		if err != nil {
			return err
		}
		_, err = c.engine.SendMessage(ctx, active, arg)
		return err

	case "help":
		c.printf("%s", helpText)
		return nil

	case "quit", "exit":
		return errQuit

	case "rooms":
		rooms, err := c.engine.Rooms(ctx)
		if err != nil {
			return err
		}
		active, _ := c.engine.ActiveRoom(ctx)
		for _, room := range rooms {
			marker := " "
			if room.HashName == active {
				marker = "*"
			}
			c.printf("%s %-12s %-24s %s", marker, room.HashName, room.Name, room.Theme)
		}
		return nil

	case "switch":
		return c.engine.SelectRoom(ctx, arg)

	case "join":
		room, err := c.engine.JoinByHash(ctx, arg)
		if err != nil {
			return err
		}
		c.printf("joined %s (%s)", room.Name, room.HashName)
		return nil

	case "create":
		room, err := c.engine.CreateRoom(ctx, arg)
		if err != nil {
			return err
		}
		c.printf("created %s, share hash %s", room.Name, room.HashName)
		return nil

	case "dm":
		room, err := c.engine.StartPrivateChat(ctx, arg)
		if err != nil {
			return err
		}
		c.printf("chatting in %s", room.Name)
		return nil

	case "theme":
		theme, err := models.ParseTheme(arg)
		if err != nil {
			return err
		}
		active, err := c.engine.ActiveRoom(ctx)
		if err != nil {
			return err
		}
		return c.engine.SetTheme(ctx, active, theme)

	case "leave":
		if arg == "" {
			active, err := c.engine.ActiveRoom(ctx)
			if err != nil {
				return err
			}
			arg = active
		}
		return c.engine.Leave(ctx, arg)

	case "members":
		active, err := c.engine.ActiveRoom(ctx)
		if err != nil {
			return err
		}
		members, err := c.engine.Members(ctx, active)
		if err != nil {
			return err
		}
		for _, m := range members {
			c.printf("  %s", m.Name)
		}
		return nil

	case "users":
		users, err := c.engine.ActiveUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			c.printf("  %s", u.User.Name)
		}
		return nil

	case "image":
		url, caption, _ := strings.Cut(arg, " ")
		active, err := c.engine.ActiveRoom(ctx)
		if err != nil {
			return err
		}
		_, err = c.engine.SendImage(ctx, active, strings.TrimSpace(caption), url)
		return err

	case "search":
		urls, err := c.engine.SearchImages(ctx, arg, 1)
		if err != nil {
			return err
		}
		for _, u := range urls {
			c.printf("  %s", u)
		}
		return nil

	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd)
	}
}

// watch prints messages that arrive in the active room.
func (c *console) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-c.engine.Updates():
			switch u.Kind {
			case chatsync.UpdateConnection:
				c.printf("-- %s", c.engine.State())
			case chatsync.UpdateActiveRoom:
				if u.RoomHashName != "" {
					c.printf("== %s", u.RoomHashName)
					c.printNew(ctx, u.RoomHashName)
				}
			case chatsync.UpdateMessages:
				if active, err := c.engine.ActiveRoom(ctx); err == nil && active == u.RoomHashName {
					c.printNew(ctx, u.RoomHashName)
				}
			}
		}
	}
}

func (c *console) printNew(ctx context.Context, hashName string) {
	msgs, err := c.engine.Messages(ctx, hashName)
	if err != nil {
		return
	}
	c.mu.Lock()
	start := c.printed[hashName]
	if start > len(msgs) {
		start = 0
	}
	c.printed[hashName] = len(msgs)
	c.mu.Unlock()

	for _, m := range msgs[start:] {
		c.printf("%s", formatMessage(m))
	}
}

func formatMessage(m models.Message) string {
	body := m.Content
	if m.Kind == models.MessageKindImage {
		body = strings.TrimSpace("[image " + m.MediaURL + "] " + m.Content)
	}
	stamp := m.CreatedAt.Local().Format("15:04")
	if m.Pending {
		stamp += "…"
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, m.SenderName, body)
}
