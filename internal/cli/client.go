package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"tycoon/internal/game"
	"tycoon/internal/session"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type SessionInfo struct {
	Session  string            `json:"session"`
	Slot     string            `json:"slot"`
	Snapshot *game.Snapshot    `json:"snapshot,omitempty"`
	Opened   *session.Response `json:"opened,omitempty"`
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

// OpenSession opens the slot on the server, or joins the session already
// serving it.
func (c *Client) OpenSession(ctx context.Context, slot string) (SessionInfo, error) {
	var out SessionInfo
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", map[string]any{"slot": slot}, &out)
	return out, err
}

func (c *Client) SessionState(ctx context.Context, id string) (SessionInfo, error) {
	var out SessionInfo
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Command(ctx context.Context, id string, cmd session.Command) (session.Response, error) {
	var out session.Response
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/commands", cmd, &out)
	return out, err
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// Watch starts periodic ticks on the session and calls fn for every message
// until ctx ends or fn returns an error.
func (c *Client) Watch(ctx context.Context, id string, every time.Duration, fn func(session.Response) error) error {
	u, err := url.Parse(c.BaseURL + "/v1/sessions/" + url.PathEscape(id) + "/ws")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	defer conn.CloseNow()

	start := session.Command{Type: session.TypeStart, EveryMs: every.Milliseconds()}
	if err := wsjson.Write(ctx, conn, start); err != nil {
		return err
	}
	for {
		var msg session.Response
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			_ = wsjson.Write(context.Background(), conn, session.Command{Type: session.TypeStop})
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
