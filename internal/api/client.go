package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/pkg/logger"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client calls the request/response side of the chat service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	session session.Session
	log     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, sess session.Session) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service url: %w", err)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		session: sess,
		log:     logger.Named("api"),
	}, nil
}

// JoinedRooms lists the rooms the session's user belongs to.
func (c *Client) JoinedRooms(ctx context.Context) ([]*models.Room, error) {
	var rooms []*models.Room
	q := url.Values{"username": {c.session.Username}}
	if err := c.do(ctx, http.MethodGet, "/room/joined", q, nil, &rooms); err != nil {
		return nil, fmt.Errorf("list joined rooms: %w", err)
	}
	return rooms, nil
}

// Room fetches one room with its embedded message history.
func (c *Client) Room(ctx context.Context, hashName string) (*models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodGet, "/room/"+url.PathEscape(hashName), nil, nil, &room); err != nil {
		return nil, fmt.Errorf("get room %s: %w", hashName, err)
	}
	return &room, nil
}

// SetTheme updates the room theme on the service. The change is not
// broadcast to other members.
func (c *Client) SetTheme(ctx context.Context, hashName string, theme models.Theme) (bool, error) {
	var resp models.SetThemeResponse
	path := "/room/" + url.PathEscape(hashName) + "/theme"
	if err := c.do(ctx, http.MethodPut, path, nil, models.SetThemeRequest{Theme: theme}, &resp); err != nil {
		return false, fmt.Errorf("set theme of %s: %w", hashName, err)
	}
	return resp.Success, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	u.Path += path
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.session.Secret)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.log.Debug("%s %s -> %d", method, path, resp.StatusCode)
	return nil
}
