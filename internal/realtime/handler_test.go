package realtime_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/auth"
	"github.com/oggyb/venue-match/internal/broadcast"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/moderation"
	"github.com/oggyb/venue-match/internal/realtime"
	"github.com/oggyb/venue-match/internal/service/chat"
	"github.com/oggyb/venue-match/internal/service/signal"
	"github.com/oggyb/venue-match/internal/service/venue"
	"github.com/oggyb/venue-match/internal/testutil"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type stack struct {
	env    *testutil.Env
	tokens *auth.TokenService
	url    string
}

func newStack(t *testing.T, limits realtime.Limits) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := testutil.NewEnv(t)
	hub := realtime.NewHub(zerolog.Nop())
	env.App.Emitter = hub

	d := realtime.NewDispatcher(
		signal.NewSignalService(env.App),
		venue.NewVenueService(env.App),
		chat.NewChatService(env.App, moderation.NewFilter(moderation.DefaultWords...)),
		zerolog.Nop(),
	)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	h := realtime.NewHandler(hub, d, tokens, limits, nil, zerolog.Nop())

	r := gin.New()
	r.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &stack{env: env, tokens: tokens, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (s *stack) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, _, err := s.tokens.Issue(userID)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// a round trip proves the socket is registered before the test continues
	send(t, conn, `{"event":"nope"}`)
	require.Equal(t, broadcast.EventError, read(t, conn).Event)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func read(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wireFrame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestUpgradeRequiresValidToken(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 50, EventBurst: 50})

	_, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(s.url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _, err := s.tokens.Issue("someone")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestMutualSignalOverWebSocket(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 50, EventBurst: 50})
	a := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{Name: "Ada"})
	b := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{Name: "Bo"})
	ca, cb := s.dial(t, a.ID), s.dial(t, b.ID)

	send(t, ca, `{"event":"send_signal","data":{"receiverId":"`+b.ID+`"}}`)
	got := read(t, cb)
	assert.Equal(t, broadcast.EventSignalReceived, got.Event)

	send(t, cb, `{"event":"send_signal","data":{"receiverId":"`+a.ID+`"}}`)
	for _, conn := range []*websocket.Conn{ca, cb} {
		f := read(t, conn)
		require.Equal(t, broadcast.EventNewConnection, f.Event)
		var p signal.NewConnectionPayload
		require.NoError(t, json.Unmarshal(f.Data, &p))
		assert.NotEmpty(t, p.ConnectionID)
	}
}

func TestPolicyRejectionArrivesAsErrorEvent(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 50, EventBurst: 50})
	v := testutil.CreateVenue(t, s.env.DB, "Bar")
	u := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{Photos: 1})
	conn := s.dial(t, u.ID)

	send(t, conn, `{"event":"join_venue","data":{"venueId":"`+v.ID+`"}}`)
	f := read(t, conn)
	require.Equal(t, broadcast.EventError, f.Event)

	var p svcErr.EventPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, svcErr.CodeInsufficientPhotos, p.ErrorCode)
}

func TestExcessEventsAreRateLimited(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 0.001, EventBurst: 2})
	u := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{})
	conn := s.dial(t, u.ID) // spends one token

	send(t, conn, `{"event":"send_signal","data":{}}`)
	f := read(t, conn)
	var p svcErr.EventPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, svcErr.CodeInvalidArgument, p.ErrorCode)

	send(t, conn, `{"event":"send_signal","data":{}}`)
	f = read(t, conn)
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, svcErr.CodeRateLimited, p.ErrorCode)
}

func TestDisconnectLeavesVenue(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 50, EventBurst: 50})
	v := testutil.CreateVenue(t, s.env.DB, "Bar")
	a := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{})
	ca, cb := s.dial(t, a.ID), s.dial(t, b.ID)

	send(t, ca, `{"event":"join_venue","data":{"venueId":"`+v.ID+`"}}`)
	require.Equal(t, broadcast.EventCompassUpdate, read(t, ca).Event)
	send(t, cb, `{"event":"join_venue","data":{"venueId":"`+v.ID+`"}}`)
	require.Equal(t, broadcast.EventCompassUpdate, read(t, cb).Event)
	require.Equal(t, broadcast.EventUserJoined, read(t, ca).Event)

	require.NoError(t, cb.Close())
	f := read(t, ca)
	assert.Equal(t, broadcast.EventUserLeft, f.Event)

	assert.Eventually(t, func() bool {
		present, err := s.env.App.Presence.IsPresent(t.Context(), v.ID, b.ID)
		return err == nil && !present
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOnlyTheVenueSocketEndsTheStay(t *testing.T) {
	s := newStack(t, realtime.Limits{EventsPerSecond: 50, EventBurst: 50})
	v := testutil.CreateVenue(t, s.env.DB, "Bar")
	a := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{})
	b := testutil.CreateUser(t, s.env.DB, testutil.UserSpec{})
	ca, cb := s.dial(t, a.ID), s.dial(t, b.ID)

	send(t, ca, `{"event":"join_venue","data":{"venueId":"`+v.ID+`"}}`)
	require.Equal(t, broadcast.EventCompassUpdate, read(t, ca).Event)
	send(t, cb, `{"event":"join_venue","data":{"venueId":"`+v.ID+`"}}`)
	require.Equal(t, broadcast.EventCompassUpdate, read(t, cb).Event)
	require.Equal(t, broadcast.EventUserJoined, read(t, ca).Event)

	bPresent := func() bool {
		present, err := s.env.App.Presence.IsPresent(t.Context(), v.ID, b.ID)
		return err == nil && present
	}

	// a second socket that never joined the venue comes and goes
	idle := s.dial(t, b.ID)
	require.NoError(t, idle.Close())
	assert.Never(t, func() bool { return !bPresent() }, 300*time.Millisecond, 20*time.Millisecond)

	// opening another idle socket, then closing the one that joined
	s.dial(t, b.ID)
	require.NoError(t, cb.Close())
	assert.Equal(t, broadcast.EventUserLeft, read(t, ca).Event)
	assert.Eventually(t, func() bool { return !bPresent() }, 2*time.Second, 20*time.Millisecond)
}
