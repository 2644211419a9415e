package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	ActionJoin  = "join"
	ActionLeave = "leave"

	maxControlMessageSize = 4096
)

// Handler upgrades requests to websocket connections and streams the frames of the topics the
// client joins. Initial topics come from repeated ?topic= query parameters; afterwards the client
// may send {"action":"join"|"leave","topic":"..."} text messages.
type Handler struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		PingInterval: time.Second * 30,
		PongWait:     time.Second * 60,
		WriteWait:    time.Second * 10,
	}
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	topics := request.URL.Query()["topic"]
	sub, err := h.hub.Subscribe(topics...)
	if err != nil {
		slog.Error("failed to subscribe", "err", err)
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	slog.Info("client connected", "subscriber", sub.ID(), "remote", request.RemoteAddr, "topics", sub.Topics())
	h.serve(request.Context(), conn, sub)
	slog.Info("client disconnected", "subscriber", sub.ID(), "remote", request.RemoteAddr, "dropped", sub.Dropped())
}

// serve runs the read and write loops until either side gives up. The reader ends the
// subscription so the writer drains out; the writer closes the connection so the reader unblocks.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Close()
		conn.SetReadLimit(maxControlMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(h.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.PongWait))
		})
		for {
			if err := readAndApplyControl(conn, sub); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug(err.Error(), "subscriber", sub.ID())
				}
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		t := time.NewTicker(h.PingInterval)
		defer t.Stop()
		for {
			select {
			case frame, ok := <-sub.Frames():
				if !ok {
					_ = conn.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
						time.Now().Add(h.WriteWait),
					)
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(h.WriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					slog.Error("failed to write frame", "subscriber", sub.ID(), "err", err)
					return
				}
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.WriteWait)); err != nil {
					slog.Error("failed to ping", "subscriber", sub.ID(), "err", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
}

func readAndApplyControl(conn *websocket.Conn, sub *Subscription) error {
	mt, p, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	if mt != websocket.TextMessage {
		return nil
	}
	msg := gjson.ParseBytes(p)
	topic := msg.Get("topic").String()
	switch action := msg.Get("action").String(); action {
	case ActionJoin:
		if err := sub.Join(topic); err != nil {
			slog.Warn("rejected join", "subscriber", sub.ID(), "topic", topic, "err", err)
		}
	case ActionLeave:
		if err := sub.Leave(topic); err != nil {
			slog.Warn("rejected leave", "subscriber", sub.ID(), "topic", topic, "err", err)
		}
	default:
		slog.Warn("ignoring unknown action", "subscriber", sub.ID(), "action", action)
	}
	return nil
}
