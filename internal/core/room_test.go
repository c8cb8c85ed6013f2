package core_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newRoom(max int) *core.Room {
	return core.NewRoom("r", core.RoomOptions{MaxPlayers: max}, t0)
}

func join(t *testing.T, r *core.Room, name string) (core.JoinOutcome, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	out, err := r.Join(name, c, t0)
	require.NoError(t, err)
	return out, c
}

func TestRoom_Join(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, r *core.Room)
		player   string
		expected error
	}{
		{
			name:   "first player becomes host",
			setup:  func(t *testing.T, r *core.Room) {},
			player: "alice",
		},
		{
			name: "sixth player is rejected at capacity five",
			setup: func(t *testing.T, r *core.Room) {
				for i := 0; i < 5; i++ {
					join(t, r, fmt.Sprintf("p%d", i))
				}
			},
			player:   "p5",
			expected: core.ErrRoomFull,
		},
		{
			name: "connected name is taken",
			setup: func(t *testing.T, r *core.Room) {
				join(t, r, "alice")
			},
			player:   "alice",
			expected: core.ErrNameTaken,
		},
		{
			name: "playing room rejects new players",
			setup: func(t *testing.T, r *core.Room) {
				out, _ := join(t, r, "alice")
				_, err := r.SetReady(out.Player.ID, true, t0)
				require.NoError(t, err)
				_, err = r.Start(out.Player.ID, false, 1, t0)
				require.NoError(t, err)
			},
			player:   "bob",
			expected: core.ErrGameInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRoom(domain.DefaultMaxPlayers)
			tt.setup(t, r)
			before := r.Snapshot()

			out, err := r.Join(tt.player, &fakeConn{}, t0)

			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Equal(t, before, r.Snapshot())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.NewPlayerID("r", tt.player), out.Player.ID)
			assert.True(t, out.Player.IsHost)
			assert.NotEmpty(t, out.Token)
			assert.Equal(t, out.Player.ID, out.Room.HostID)
		})
	}
}

func TestRoom_OnlyOneHost(t *testing.T) {
	r := newRoom(5)
	join(t, r, "alice")
	join(t, r, "bob")
	join(t, r, "carol")

	hosts := 0
	for _, p := range r.Snapshot().Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
	assert.Equal(t, domain.PlayerID("r_alice"), r.Snapshot().HostID)
}

func TestRoom_CanStartAndStart(t *testing.T) {
	r := newRoom(5)
	a, _ := join(t, r, "alice")
	b, _ := join(t, r, "bob")

	_, err := r.SetReady(a.Player.ID, true, t0)
	require.NoError(t, err)
	assert.False(t, r.CanStart())

	_, err = r.Start(a.Player.ID, false, 5, t0)
	assert.ErrorIs(t, err, core.ErrNotAllReady)

	ready, err := r.SetReady(b.Player.ID, true, t0)
	require.NoError(t, err)
	assert.True(t, ready.CanStart)
	assert.True(t, r.CanStart())

	_, err = r.Start(b.Player.ID, false, 5, t0)
	assert.ErrorIs(t, err, core.ErrNotHost)
	var inv *core.InvalidActionError
	assert.ErrorAs(t, err, &inv)

	view, err := r.Start(a.Player.ID, true, 5, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomPlaying, r.State())
	assert.True(t, view.FastMode)
	require.Len(t, view.Players, 2)
	pa, pb := view.Players[a.Player.ID], view.Players[b.Player.ID]
	assert.Equal(t, pa.Current.Kind, pb.Current.Kind)
	assert.Equal(t, pa.Next, pb.Next)

	_, err = r.Start(a.Player.ID, false, 5, t0)
	assert.ErrorIs(t, err, core.ErrNotWaiting)
}

func startedRoom(t *testing.T, names ...string) (*core.Room, []core.JoinOutcome, []*fakeConn) {
	t.Helper()
	r := newRoom(5)
	var outs []core.JoinOutcome
	var conns []*fakeConn
	for _, n := range names {
		o, c := join(t, r, n)
		_, err := r.SetReady(o.Player.ID, true, t0)
		require.NoError(t, err)
		outs = append(outs, o)
		conns = append(conns, c)
	}
	_, err := r.Start(outs[0].Player.ID, false, 99, t0)
	require.NoError(t, err)
	return r, outs, conns
}

func TestRoom_DisconnectWhileWaitingRemoves(t *testing.T) {
	r := newRoom(5)
	a, ca := join(t, r, "alice")
	b, _ := join(t, r, "bob")
	_, err := r.SetReady(b.Player.ID, true, t0)
	require.NoError(t, err)

	out, err := r.Disconnect(a.Player.ID, ca, t0)
	require.NoError(t, err)

	assert.True(t, out.Removed)
	assert.True(t, out.HostChanged)
	assert.Equal(t, b.Player.ID, out.NewHost)
	require.Len(t, out.Room.Players, 1)
	assert.True(t, out.Room.Players[0].IsHost)
}

func TestRoom_DisconnectWhilePlayingKeepsSession(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice", "bob", "carol")

	out, err := r.Disconnect(outs[1].Player.ID, conns[1], t0.Add(time.Second))
	require.NoError(t, err)

	assert.False(t, out.Removed)
	assert.False(t, out.HostChanged)
	assert.False(t, out.GameOver)
	assert.False(t, out.Player.IsConnected)
	require.NotNil(t, out.Player.DisconnectedAt)
	assert.Len(t, out.Room.Players, 3)

	_, err = r.Disconnect(outs[1].Player.ID, conns[1], t0)
	assert.ErrorIs(t, err, core.ErrStaleConnection)
}

func TestRoom_HostTransferPriority(t *testing.T) {
	r := newRoom(5)
	a, ca := join(t, r, "alice")
	join(t, r, "bob")
	c, _ := join(t, r, "carol")
	_, err := r.SetReady(c.Player.ID, true, t0)
	require.NoError(t, err)

	out, err := r.Disconnect(a.Player.ID, ca, t0)
	require.NoError(t, err)
	assert.Equal(t, c.Player.ID, out.NewHost, "ready player is preferred")
}

func TestRoom_HostlessUntilReconnect(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice")

	out, err := r.Disconnect(outs[0].Player.ID, conns[0], t0)
	require.NoError(t, err)
	assert.True(t, out.HostChanged)
	assert.Empty(t, out.NewHost)
	assert.True(t, out.AllDisconnected)
	assert.False(t, out.GameOver)
	assert.Empty(t, r.Snapshot().HostID)

	back, err := r.Reattach(outs[0].Player.ID, &fakeConn{}, t0)
	require.NoError(t, err)
	assert.True(t, back.HostChanged)
	assert.True(t, back.Player.IsHost)
	require.NotNil(t, back.Game)
}

func TestRoom_JoinReplacingStaleSession(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice", "bob")
	for i := range outs {
		_, err := r.Disconnect(outs[i].Player.ID, conns[i], t0)
		require.NoError(t, err)
	}
	_, first := r.Finish("", t0)
	require.True(t, first)
	require.Empty(t, r.Snapshot().HostID)

	alice, _ := join(t, r, "alice")
	assert.True(t, alice.HostChanged, "hostless room gains a host")
	assert.True(t, alice.Player.IsHost)

	bob, _ := join(t, r, "bob")
	assert.False(t, bob.HostChanged)
	assert.False(t, bob.Player.IsHost)
	assert.Equal(t, outs[0].Player.ID, r.Snapshot().HostID)
	assert.Len(t, r.Snapshot().Players, 2)
}

func TestRoom_ReattachPreservesStats(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice", "bob", "carol")
	bob := outs[1].Player.ID

	_, err := r.Apply(bob, domain.ActionHardDrop, t0)
	require.NoError(t, err)
	_, err = r.Disconnect(bob, conns[1], t0)
	require.NoError(t, err)

	before := r.Game().Players[bob]
	back, err := r.Reattach(bob, &fakeConn{}, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, back.Player.IsConnected)
	assert.Equal(t, outs[1].Token, back.Token)
	assert.Equal(t, before.Board, back.Game.Players[bob].Board)
	assert.Equal(t, before.Score, back.Player.Score)

	_, err = r.Reattach(bob, &fakeConn{}, t0)
	assert.ErrorIs(t, err, core.ErrNoDisconnectedPlayer)
}

func TestRoom_LastPlayerStandingEndsGame(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice", "bob")

	out, err := r.Disconnect(outs[1].Player.ID, conns[1], t0)
	require.NoError(t, err)
	assert.True(t, out.GameOver)

	tick := r.Tick()
	assert.True(t, tick.GameOver)

	res, first := r.Finish("", t0.Add(90*time.Second))
	require.True(t, first)
	require.NotNil(t, res.Winner)
	assert.Equal(t, outs[0].Player.ID, *res.Winner)
	assert.Equal(t, "alice", res.WinnerName)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].IsWin)
	assert.False(t, res.Results[1].IsWin)
	assert.Equal(t, 90, res.Results[0].GameDuration)
	assert.Equal(t, domain.RoomFinished, r.State())

	again, first := r.Finish("", t0)
	assert.False(t, first)
	assert.Same(t, res, again)
}

func TestRoom_FinishGameIgnoresOlderGame(t *testing.T) {
	r, outs, _ := startedRoom(t, "alice")
	require.Equal(t, uint64(1), r.GameNumber())
	_, err := r.Reset(outs[0].Player.ID, t0)
	require.NoError(t, err)
	_, err = r.SetReady(outs[0].Player.ID, true, t0)
	require.NoError(t, err)
	_, err = r.Start(outs[0].Player.ID, false, 1, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), r.GameNumber())

	_, first, err := r.FinishGame(1, "", t0)
	assert.ErrorIs(t, err, core.ErrStaleGame)
	assert.False(t, first)
	assert.Equal(t, domain.RoomPlaying, r.State())

	res, first, err := r.FinishGame(2, "", t0)
	require.NoError(t, err)
	assert.True(t, first)
	assert.NotNil(t, res)
	assert.Equal(t, domain.RoomFinished, r.State())
}

func TestRoom_SoloWinHeuristic(t *testing.T) {
	r, _, _ := startedRoom(t, "alice")

	res, ok := r.Abort(core.ReasonAbandoned, t0)
	require.True(t, ok)
	assert.Nil(t, res.Winner)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].IsWin)
	assert.Equal(t, core.ReasonAbandoned, res.Reason)
}

func TestRoom_Reset(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice", "bob", "carol")
	_, err := r.Disconnect(outs[2].Player.ID, conns[2], t0)
	require.NoError(t, err)

	_, err = r.Reset(outs[1].Player.ID, t0)
	assert.ErrorIs(t, err, core.ErrNotHost)

	out, err := r.Reset(outs[0].Player.ID, t0)
	require.NoError(t, err)
	require.NotNil(t, out.Finished)
	assert.Equal(t, core.ReasonRestarted, out.Finished.Reason)
	assert.Equal(t, []domain.PlayerID{outs[2].Player.ID}, out.Removed)
	assert.Equal(t, domain.RoomWaiting, out.Room.State)
	assert.Len(t, out.Room.Players, 2)
	for _, p := range out.Room.Players {
		assert.False(t, p.IsReady)
	}
	assert.Nil(t, r.Game())

	_, err = r.Reset(outs[0].Player.ID, t0)
	assert.ErrorIs(t, err, core.ErrGameNotRunning)
}

func TestRoom_RemoveExpired(t *testing.T) {
	r, outs, conns := startedRoom(t, "alice")
	_, err := r.Disconnect(outs[0].Player.ID, conns[0], t0)
	require.NoError(t, err)

	out := r.RemoveExpired([]domain.PlayerID{outs[0].Player.ID, "r_ghost"})

	require.Len(t, out.Removed, 1)
	assert.True(t, out.Empty)
	assert.Zero(t, r.ConnectedCount())
}

func TestRoom_ApplyRequiresRunningGame(t *testing.T) {
	r := newRoom(5)
	a, _ := join(t, r, "alice")

	_, err := r.Apply(a.Player.ID, domain.ActionRotate, t0)
	assert.ErrorIs(t, err, core.ErrGameNotRunning)
}

func TestRoom_ConcurrentJoins(t *testing.T) {
	r := newRoom(5)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Join(fmt.Sprintf("p%d", i), &fakeConn{}, t0); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, accepted)
	assert.Len(t, r.Recipients(), 5)
}
