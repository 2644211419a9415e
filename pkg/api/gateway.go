// Package api is the request/response surface of the memo board. Each handler validates its
// input, makes a single store call, and only after that call succeeds publishes the change to
// the push channel. Store calls and publishes are detached from the request's cancellation: once
// dispatched they run to completion even if the client goes away, so a committed change is
// always announced.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/astromechza/memoboard/pkg/broadcast"
	"github.com/astromechza/memoboard/pkg/memo"
)

const DefaultMaxBodyBytes = 1 << 20

type Boards interface {
	Ensure(ctx context.Context, board string) (bool, error)
}

type Memos interface {
	List(ctx context.Context, board string) ([]memo.Memo, error)
	Create(ctx context.Context, draft memo.Draft) (memo.Memo, error)
	Delete(ctx context.Context, id, board string) (memo.Memo, error)
	Update(ctx context.Context, patch memo.Patch) (memo.Memo, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Gateway struct {
	boards       Boards
	memos        Memos
	publisher    Publisher
	pinger       Pinger
	maxBodyBytes int64
}

type Option func(*Gateway)

func WithMaxBodyBytes(n int64) Option {
	return func(g *Gateway) {
		g.maxBodyBytes = n
	}
}

// WithPinger enables a store check on /health.
func WithPinger(p Pinger) Option {
	return func(g *Gateway) {
		g.pinger = p
	}
}

func NewGateway(boards Boards, memos Memos, publisher Publisher, opts ...Option) *Gateway {
	g := &Gateway{
		boards:       boards,
		memos:        memos,
		publisher:    publisher,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) RegisterRoutes(r *mux.Router) {
	r.Methods(http.MethodGet).Path("/api/memo/{board}").HandlerFunc(g.listMemos)
	r.Methods(http.MethodPost).Path("/api/memo").HandlerFunc(g.createMemo)
	r.Methods(http.MethodDelete).Path("/api/memo").HandlerFunc(g.deleteMemo)
	r.Methods(http.MethodPatch).Path("/api/memo").HandlerFunc(g.updateMemo)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(g.health)
}

func (g *Gateway) listMemos(writer http.ResponseWriter, request *http.Request) {
	ctx := context.WithoutCancel(request.Context())
	board := mux.Vars(request)["board"]
	existed, err := g.boards.Ensure(ctx, board)
	if err != nil {
		fail(writer, request, err)
		return
	}
	if !existed {
		writeJSON(writer, http.StatusCreated, response{Success: true, Message: "board is created"})
		return
	}
	memos, err := g.memos.List(ctx, board)
	if err != nil {
		fail(writer, request, err)
		return
	}
	if len(memos) == 0 {
		writeJSON(writer, http.StatusAccepted, response{Success: true, Message: "board is existed, but no memo is found"})
		return
	}
	writeJSON(writer, http.StatusOK, response{Success: true, Data: memos, Message: "success to find memos"})
}

func (g *Gateway) createMemo(writer http.ResponseWriter, request *http.Request) {
	ctx := context.WithoutCancel(request.Context())
	body, err := g.readBody(writer, request)
	if err != nil {
		fail(writer, request, err)
		return
	}
	draft, err := memo.ParseDraft(body)
	if err != nil {
		fail(writer, request, err)
		return
	}
	// a memo's board must be listable straight after the create
	if _, err := g.boards.Ensure(ctx, draft.Board); err != nil {
		fail(writer, request, err)
		return
	}
	created, err := g.memos.Create(ctx, draft)
	if err != nil {
		fail(writer, request, err)
		return
	}
	g.publish(ctx, broadcast.BoardTopic(draft.Board), broadcast.StatusAdd, created)
	writeJSON(writer, http.StatusOK, response{Success: true, Data: created})
}

func (g *Gateway) deleteMemo(writer http.ResponseWriter, request *http.Request) {
	ctx := context.WithoutCancel(request.Context())
	body, err := g.readBody(writer, request)
	if err != nil {
		fail(writer, request, err)
		return
	}
	removal, err := memo.ParseRemoval(body)
	if err != nil {
		fail(writer, request, err)
		return
	}
	deleted, err := g.memos.Delete(ctx, removal.ID, removal.Board)
	if err != nil {
		fail(writer, request, err)
		return
	}
	g.publish(ctx, broadcast.BoardTopic(removal.Board), broadcast.StatusDelete, deleted)
	writeJSON(writer, http.StatusCreated, response{Success: true})
}

func (g *Gateway) updateMemo(writer http.ResponseWriter, request *http.Request) {
	ctx := context.WithoutCancel(request.Context())
	body, err := g.readBody(writer, request)
	if err != nil {
		fail(writer, request, err)
		return
	}
	patch, err := memo.ParsePatch(body)
	if err != nil {
		fail(writer, request, err)
		return
	}
	updated, err := g.memos.Update(ctx, patch)
	if err != nil {
		fail(writer, request, err)
		return
	}
	// in-place edits go to the memo topic only, board viewers learn of them by joining it
	g.publish(ctx, broadcast.MemoTopic(patch.ID), broadcast.StatusUpdate, updated)
	writeJSON(writer, http.StatusCreated, response{Success: true})
}

func (g *Gateway) health(writer http.ResponseWriter, request *http.Request) {
	if g.pinger != nil {
		if err := g.pinger.Ping(request.Context()); err != nil {
			slog.Error("health check failed", "err", err)
			writeJSON(writer, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(writer, http.StatusOK, map[string]string{"status": "healthy"})
}

func (g *Gateway) readBody(writer http.ResponseWriter, request *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(writer, request.Body, g.maxBodyBytes))
}

// publish is best effort: the write has already been acknowledged, so a failed publish is logged
// and never changes the response.
func (g *Gateway) publish(ctx context.Context, topic, status string, m memo.Memo) {
	delivered, err := g.publisher.Publish(ctx, topic, broadcast.Change{Status: status, Data: m})
	if err != nil {
		slog.Error("failed to publish", "topic", topic, "status", status, "err", err)
		return
	}
	slog.Debug("published", "topic", topic, "status", status, "delivered", delivered)
}
