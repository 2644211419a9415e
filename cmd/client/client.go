package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/astromechza/memoboard/pkg/memo"
)

type client struct {
	baseUrl *url.URL
	http    *http.Client
	out     io.Writer
}

// buildBody turns key=value arguments into a json object on top of base. Values that parse as
// json are kept as json, anything else is sent as a string.
func buildBody(base map[string]string, assignments []string) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	for k, v := range base {
		if body, err = sjson.SetBytes(body, k, v); err != nil {
			return nil, err
		}
	}
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		if strings.ContainsAny(k, ".*?|#@\\") {
			return nil, fmt.Errorf("invalid field name %q", k)
		}
		if gjson.Valid(v) {
			body, err = sjson.SetRawBytes(body, k, []byte(v))
		} else {
			body, err = sjson.SetBytes(body, k, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (int, gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl.JoinPath(path).String(), reader)
	if err != nil {
		return 0, gjson.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("failed to read body: %w", err)
	}
	parsed := gjson.ParseBytes(raw)
	if resp.StatusCode >= 300 {
		return resp.StatusCode, parsed, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, parsed.Get("message").String())
	}
	return resp.StatusCode, parsed, nil
}

func (c *client) list(ctx context.Context, board string) error {
	_, body, err := c.do(ctx, http.MethodGet, "api/memo/"+url.PathEscape(board), nil)
	if err != nil {
		return err
	}
	memos := body.Get("data").Array()
	if len(memos) == 0 {
		_, err := fmt.Fprintln(c.out, body.Get("message").String())
		return err
	}
	for _, m := range memos {
		if _, err := fmt.Fprintln(c.out, formatMemo(m)); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) add(ctx context.Context, board string, assignments []string) error {
	body, err := buildBody(map[string]string{"board": board}, assignments)
	if err != nil {
		return err
	}
	_, resp, err := c.do(ctx, http.MethodPost, "api/memo", body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, formatMemo(resp.Get("data")))
	return err
}

func (c *client) edit(ctx context.Context, id string, assignments []string) error {
	body, err := buildBody(map[string]string{"_id": id}, assignments)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPatch, "api/memo", body)
	return err
}

func (c *client) remove(ctx context.Context, board, id string) error {
	body, err := buildBody(map[string]string{"_id": id, "board": board}, nil)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodDelete, "api/memo", body)
	return err
}

// watchContinuously keeps a push connection open, reconnecting every second until ctx is done.
func (c *client) watchContinuously(ctx context.Context, topics []string) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		if err := c.watch(ctx, topics); err != nil && ctx.Err() == nil {
			slog.Error("push connection failed", "err", err)
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			slog.Info("stopping watch")
			return
		}
	}
}

func (c *client) watch(ctx context.Context, topics []string) error {
	u := c.baseUrl.JoinPath("ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	for _, topic := range topics {
		q.Add("topic", topic)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	slog.Info("watching", "topics", topics)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		if _, err := fmt.Fprintln(c.out, formatFrame(gjson.ParseBytes(p))); err != nil {
			return err
		}
	}
}

func formatFrame(frame gjson.Result) string {
	return fmt.Sprintf("%s %s %s", frame.Get("event").String(), frame.Get("payload.status").String(), formatMemo(frame.Get("payload.data")))
}

// formatMemo prints the id followed by the content fields in key order, without the board.
func formatMemo(raw gjson.Result) string {
	var m memo.Memo
	if err := m.UnmarshalJSON([]byte(raw.Raw)); err != nil {
		return raw.Raw
	}
	var sb strings.Builder
	sb.WriteString(m.ID)
	for _, k := range m.Keys() {
		if s, ok := m.Get(k).(string); ok {
			fmt.Fprintf(&sb, " %s=%q", k, s)
		} else {
			fmt.Fprintf(&sb, " %s=%s", k, m.Content[k])
		}
	}
	return sb.String()
}
