package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/membership"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/presence"
	"github.com/mmynk/teamsync/internal/schedule"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/memory"
)

var (
	alice = auth.Principal{ID: "alice", Email: "alice@example.com"}
	bob   = auth.Principal{ID: "bob", Email: "bob@example.com"}
)

type env struct {
	server    *httptest.Server
	store     *memory.Store
	members   *membership.Service
	schedules *schedule.Service
	jwt       *auth.JWTManager
	team      *models.Team
	touches   atomic.Int32
}

// countingToucher records heartbeats before passing them on.
type countingToucher struct {
	presence.Toucher
	n *atomic.Int32
}

func (c countingToucher) TouchUser(ctx context.Context, id string, at int64) error {
	c.n.Add(1)
	return c.Toucher.TouchUser(ctx, id, at)
}

func setup(t *testing.T) *env {
	t.Helper()
	broker := feed.NewBroker()
	store := memory.New(storage.Options{Publisher: broker})
	e := &env{
		store:     store,
		members:   membership.NewService(store, broker, nil),
		schedules: schedule.NewService(store, broker, nil),
		jwt:       auth.NewJWTManager("secret", time.Hour),
	}
	team, err := e.members.CreateTeam(context.Background(), alice, "Alpha")
	require.NoError(t, err)
	e.team = team

	mux := http.NewServeMux()
	mux.Handle(Path, NewHandler(e.jwt, e.schedules, presence.NewHeartbeat(countingToucher{store, &e.touches}, time.Hour, nil), nil, nil))
	e.server = httptest.NewServer(mux)
	t.Cleanup(e.server.Close)
	return e
}

func (e *env) token(t *testing.T, p auth.Principal) string {
	t.Helper()
	token, err := e.jwt.Generate(&models.User{ID: p.ID, Email: p.Email})
	require.NoError(t, err)
	return token
}

func (e *env) url(params url.Values) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + Path + "?" + params.Encode()
}

func (e *env) dial(t *testing.T, params url.Values) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(e.url(params), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// waitSnapshot reads frames until one satisfies ok.
func waitSnapshot(t *testing.T, conn *websocket.Conn, ok func(Frame) bool) Frame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		require.Equal(t, FrameSnapshot, f.Type, "unexpected frame: %+v", f)
		if ok(f) {
			return f
		}
	}
}

func TestStreamsSnapshots(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	conn := e.dial(t, url.Values{"team_id": {e.team.ID}, "token": {e.token(t, alice)}})
	first := readFrame(t, conn)
	require.Equal(t, FrameSnapshot, first.Type)
	require.Equal(t, e.team.ID, first.TeamID)
	require.Empty(t, first.Schedules)

	_, err := e.schedules.AddSchedule(ctx, alice, e.team.ID, "Retro", "2024-06-01", "")
	require.NoError(t, err)
	_, err = e.schedules.AddSchedule(ctx, alice, e.team.ID, "Standup", "2024-06-01", "09:00")
	require.NoError(t, err)

	f := waitSnapshot(t, conn, func(f Frame) bool { return len(f.Schedules) == 2 })
	require.Equal(t, "Standup", f.Schedules[0].Title)
	require.Equal(t, "Retro", f.Schedules[1].Title)
}

func TestDateFilterAndHeaderToken(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.schedules.AddSchedule(ctx, alice, e.team.ID, "Today", "2024-06-01", "")
	require.NoError(t, err)
	_, err = e.schedules.AddSchedule(ctx, alice, e.team.ID, "Tomorrow", "2024-06-02", "")
	require.NoError(t, err)

	header := http.Header{"Authorization": {"Bearer " + e.token(t, alice)}}
	conn, resp, err := websocket.DefaultDialer.Dial(e.url(url.Values{"team_id": {e.team.ID}, "date": {"2024-06-02"}}), header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	f := readFrame(t, conn)
	require.Equal(t, "2024-06-02", f.Date)
	require.Len(t, f.Schedules, 1)
	require.Equal(t, "Tomorrow", f.Schedules[0].Title)
}

func TestRejectsBeforeUpgrade(t *testing.T) {
	e := setup(t)
	aliceToken := e.token(t, alice)

	cases := []struct {
		name   string
		params url.Values
		status int
	}{
		{"missing token", url.Values{"team_id": {e.team.ID}}, http.StatusUnauthorized},
		{"bad token", url.Values{"team_id": {e.team.ID}, "token": {"garbage"}}, http.StatusUnauthorized},
		{"missing team", url.Values{"token": {aliceToken}}, http.StatusBadRequest},
		{"bad date", url.Values{"team_id": {e.team.ID}, "token": {aliceToken}, "date": {"June 1"}}, http.StatusBadRequest},
		{"unknown team", url.Values{"team_id": {"nope"}, "token": {aliceToken}}, http.StatusNotFound},
		{"outsider", url.Values{"team_id": {e.team.ID}, "token": {e.token(t, bob)}}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(e.url(tc.params), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestDisbandSendsErrorFrame(t *testing.T) {
	e := setup(t)
	conn := e.dial(t, url.Values{"team_id": {e.team.ID}, "token": {e.token(t, alice)}})
	readFrame(t, conn)

	require.NoError(t, e.members.DisbandTeam(context.Background(), alice))

	f := readFrame(t, conn)
	for f.Type == FrameSnapshot {
		f = readFrame(t, conn)
	}
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, "not_found", f.Kind)

	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestRemovedMemberGetsErrorFrame(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.members.JoinTeam(ctx, bob, e.team.ID)
	require.NoError(t, err)

	conn := e.dial(t, url.Values{"team_id": {e.team.ID}, "token": {e.token(t, bob)}})
	readFrame(t, conn)

	// The removal alone ends the view; no calendar write follows it.
	require.NoError(t, e.members.RemoveMember(ctx, alice, bob.ID))

	f := readFrame(t, conn)
	for f.Type == FrameSnapshot {
		f = readFrame(t, conn)
	}
	require.Equal(t, FrameError, f.Type)
	require.Equal(t, "permission", f.Kind)

	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestHeartbeatWhileConnected(t *testing.T) {
	e := setup(t)
	require.Zero(t, e.touches.Load())

	conn := e.dial(t, url.Values{"team_id": {e.team.ID}, "token": {e.token(t, alice)}})
	readFrame(t, conn)

	require.Eventually(t, func() bool { return e.touches.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	u, err := e.store.GetUser(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotZero(t, u.LastActive)
}
