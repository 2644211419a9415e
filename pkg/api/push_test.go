package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/astromechza/memoboard/pkg/broadcast"
	"github.com/astromechza/memoboard/pkg/store"
)

func TestPush_SubscribersSeeChangesForTheirTopicsOnly(t *testing.T) {
	s, err := store.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "push.sqlite3"))
	require.NoError(t, err)
	defer s.Close()
	hub := broadcast.NewHub(8)
	defer hub.Close()

	srv := httptest.NewServer(NewRouter(NewGateway(s.Boards(), s.Memos(), hub), broadcast.NewHandler(hub)))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	viewer, _, err := websocket.DefaultDialer.Dial(wsURL+"?topic=memos-team1", nil)
	require.NoError(t, err)
	defer viewer.Close()
	bystander, _, err := websocket.DefaultDialer.Dial(wsURL+"?topic=memos-team2", nil)
	require.NoError(t, err)
	defer bystander.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 2 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/memo", "application/json", strings.NewReader(`{"board":"team1","text":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := viewer.ReadMessage()
	require.NoError(t, err)
	parsed := gjson.ParseBytes(frame)
	assert.Equal(t, "memos-team1", parsed.Get("event").String())
	assert.Equal(t, "add", parsed.Get("payload.status").String())
	assert.Equal(t, "hi", parsed.Get("payload.data.text").String())
	id := parsed.Get("payload.data._id").String()
	require.NotEmpty(t, id)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/memo", strings.NewReader(`{"_id":"`+id+`","board":"team1"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, frame, err = viewer.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "delete", gjson.GetBytes(frame, "payload.status").String())
	assert.Equal(t, id, gjson.GetBytes(frame, "payload.data._id").String())

	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bystander.ReadMessage()
	require.Error(t, err, "team2 viewer must not receive team1 changes")
}
