package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	router "github.com/dkeye/Tetris/internal/adapters/http"
	"github.com/dkeye/Tetris/internal/adapters/leaderboard"
	"github.com/dkeye/Tetris/internal/adapters/signal"
	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/app/orch"
	"github.com/dkeye/Tetris/internal/config"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	srv   *httptest.Server
	store *leaderboard.Store
	rooms *app.RoomManager
}

func newStack(t *testing.T) *stack {
	t.Helper()
	store, err := leaderboard.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rooms := app.NewRoomManager(app.ManagerConfig{MaxPlayers: 5}, app.NewReconnectionTracker(time.Minute), store)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   app.NewDropPolicy(10),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{Mode: "test", Secret: "secret", StaticPath: t.TempDir()}
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Rooms:       rooms,
		Signal:      signal.NewSignalWSController(o, signal.Options{}),
		Leaderboard: store,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, store: store, rooms: rooms}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *stack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"type": typ, "data": data}))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, ws.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func TestWebSocket_GameFlowAndReconnection(t *testing.T) {
	s := newStack(t)

	alice := s.dial(t)
	send(t, alice, "join-room", map[string]string{"roomName": "lobby", "playerName": "alice"})
	var joined core.JoinPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, core.EvJoinRoomSuccess).Data, &joined))
	assert.Equal(t, "lobby_alice", string(joined.PlayerID))
	assert.True(t, joined.Player.IsHost)

	bob := s.dial(t)
	send(t, bob, "join-room", map[string]string{"roomName": "lobby", "playerName": "bob"})
	var bobJoined core.JoinPayload
	require.NoError(t, json.Unmarshal(readUntil(t, bob, core.EvJoinRoomSuccess).Data, &bobJoined))
	require.NotEmpty(t, bobJoined.ReconnectionToken)
	readUntil(t, alice, core.EvPlayerJoined)

	carol := s.dial(t)
	send(t, carol, "join-room", map[string]string{"roomName": "lobby", "playerName": "bob"})
	var rejected core.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, carol, core.EvJoinRoomError).Data, &rejected))
	assert.Equal(t, "NAME_TAKEN", rejected.Code)

	send(t, alice, "player-ready", map[string]bool{"ready": true})
	send(t, bob, "player-ready", map[string]bool{"ready": true})
	readUntil(t, alice, core.EvPlayerReadyChanged)
	readUntil(t, alice, core.EvPlayerReadyChanged)

	send(t, bob, "start-game", nil)
	var notHost core.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, bob, core.EvError).Data, &notHost))
	assert.Equal(t, core.ErrorCode(core.ErrNotHost), notHost.Code)

	send(t, alice, "start-game", map[string]bool{"fast": false})
	readUntil(t, alice, core.EvGameStarted)
	readUntil(t, bob, core.EvGameStarted)

	send(t, alice, "game-action", map[string]string{"action": "move-left"})
	readUntil(t, bob, core.EvGameStateUpdate)

	send(t, alice, "teleport", nil)
	var unknown core.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, core.EvError).Data, &unknown))
	assert.Equal(t, "UNKNOWN_COMMAND", unknown.Code)

	require.NoError(t, bob.Close())
	readUntil(t, alice, core.EvPlayerDisconnected)

	again := s.dial(t)
	send(t, again, "request-reconnection", map[string]string{
		"roomName":          "lobby",
		"playerName":        "bob",
		"reconnectionToken": bobJoined.ReconnectionToken,
	})
	var back core.JoinPayload
	require.NoError(t, json.Unmarshal(readUntil(t, again, core.EvReconnectionSuccess).Data, &back))
	assert.True(t, back.Reconnected)
	assert.NotNil(t, back.GameState)
	readUntil(t, alice, core.EvPlayerReconnected)

	send(t, again, "heartbeat", nil)
	readUntil(t, again, core.EvHeartbeatAck)
}

func TestHTTP_RoomsAndLeaderboard(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.store.Submit(context.Background(), []core.LeaderboardEntry{
		{PlayerName: "alice", Score: 1200, LinesCleared: 12, Level: 2, GameDuration: 300, IsWin: true, RoomName: "lobby"},
		{PlayerName: "bob", Score: 300, LinesCleared: 3, Level: 1, GameDuration: 300, RoomName: "lobby"},
	}))
	ws := s.dial(t)
	send(t, ws, "join-room", map[string]string{"roomName": "lobby", "playerName": "dora"})
	readUntil(t, ws, core.EvJoinRoomSuccess)

	tests := []struct {
		name     string
		path     string
		wantCode int
		check    func(t *testing.T, body []byte)
	}{
		{"health", "/health", http.StatusOK, func(t *testing.T, body []byte) {
			assert.JSONEq(t, `{"status":"ok","database":"connected"}`, string(body))
		}},
		{"rooms", "/api/rooms", http.StatusOK, func(t *testing.T, body []byte) {
			var rooms []core.RoomInfo
			require.NoError(t, json.Unmarshal(body, &rooms))
			require.Len(t, rooms, 1)
			assert.Equal(t, "lobby", string(rooms[0].Name))
			assert.Equal(t, 1, rooms[0].PlayerCount)
		}},
		{"top limited", "/api/leaderboard/top?limit=1", http.StatusOK, func(t *testing.T, body []byte) {
			var top []leaderboard.Record
			require.NoError(t, json.Unmarshal(body, &top))
			require.Len(t, top, 1)
			assert.Equal(t, "alice", top[0].PlayerName)
		}},
		{"top bad mode", "/api/leaderboard/top?fast=maybe", http.StatusBadRequest, nil},
		{"player best", "/api/leaderboard/player?name=bob", http.StatusOK, func(t *testing.T, body []byte) {
			var r leaderboard.Record
			require.NoError(t, json.Unmarshal(body, &r))
			assert.Equal(t, 300, r.Score)
		}},
		{"player stats needs a name", "/api/leaderboard/player-stats", http.StatusBadRequest, nil},
		{"player stats", "/api/leaderboard/player-stats?name=alice", http.StatusOK, func(t *testing.T, body []byte) {
			var st leaderboard.PlayerStats
			require.NoError(t, json.Unmarshal(body, &st))
			assert.Equal(t, 1, st.TotalGames)
			assert.Equal(t, 1, st.GamesWon)
		}},
		{"stats", "/api/leaderboard/stats", http.StatusOK, func(t *testing.T, body []byte) {
			var st leaderboard.AllTimeStats
			require.NoError(t, json.Unmarshal(body, &st))
			assert.Equal(t, 2, st.TotalGames)
			assert.Equal(t, "alice", st.TopScorePlayer)
		}},
		{"top winners", "/api/leaderboard/top-winners", http.StatusOK, func(t *testing.T, body []byte) {
			assert.JSONEq(t, `[]`, string(body))
		}},
		{"unknown route", "/api/nope", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(s.srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.check != nil {
				var buf strings.Builder
				_, err := io.Copy(&buf, resp.Body)
				require.NoError(t, err)
				tt.check(t, []byte(buf.String()))
			}
		})
	}
}

func TestClientTokenMiddleware_SetsSessionCookie(t *testing.T) {
	s := newStack(t)
	resp, err := http.Get(s.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "TetrisSessions" {
			found = true
		}
	}
	assert.True(t, found)
}
