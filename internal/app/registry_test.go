package app_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SeatLifecycle(t *testing.T) {
	r := app.NewRegistry()
	conn := &fakeConn{}
	canceled := false
	r.BindSignal("s1", conn, func() { canceled = true })

	_, _, ok := r.RoomOf("s1")
	assert.False(t, ok, "a fresh connection has no seat")
	assert.False(t, r.Bind("unknown", "lobby", "lobby_alice"))
	require.True(t, r.Bind("s1", "lobby", "lobby_alice"))

	room, pid, ok := r.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, "lobby", string(room))
	assert.Equal(t, "lobby_alice", string(pid))

	sid, ok := r.SessionOf("lobby", "lobby_alice")
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s1"), sid)

	got, ok := r.Conn("s1")
	require.True(t, ok)
	assert.Same(t, conn, got)

	r.RemoveRoom("s1")
	_, _, ok = r.RoomOf("s1")
	assert.False(t, ok)
	_, ok = r.SessionOf("lobby", "lobby_alice")
	assert.False(t, ok)

	assert.True(t, r.Cancel("s1"))
	assert.True(t, canceled)
	r.Unbind("s1")
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Cancel("s1"))
}

func TestRegistry_SessionOfIsRoomScoped(t *testing.T) {
	r := app.NewRegistry()
	r.BindSignal("s-a", &fakeConn{}, func() {})
	r.BindSignal("s-ab", &fakeConn{}, func() {})
	require.True(t, r.Bind("s-a", "a", "a_b_c"))
	require.True(t, r.Bind("s-ab", "a_b", "a_b_c"))

	for room, want := range map[string]core.SessionID{"a": "s-a", "a_b": "s-ab"} {
		sid, ok := r.SessionOf(domain.RoomName(room), "a_b_c")
		require.True(t, ok)
		assert.Equal(t, want, sid)
	}
	_, ok := r.SessionOf("a_b_c", "a_b_c")
	assert.False(t, ok)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := app.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := core.SessionID(fmt.Sprintf("s%d", i))
			r.BindSignal(sid, &fakeConn{}, nil)
			r.Bind(sid, "lobby", "lobby_x")
			r.RoomOf(sid)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestDropPolicy(t *testing.T) {
	p := app.NewDropPolicy(2)
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate))
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate))
	assert.Equal(t, app.KickMember, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate))
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate), "counter resets after a kick")
	assert.Equal(t, app.KickMember, p.OnBackPressure("r", "r_b", core.EvGameEnded))
	assert.Equal(t, app.KickMember, app.SimplePolicy{}.OnBackPressure("r", "r_a", core.EvRoomUpdate))
}

func TestDropPolicy_DeliveryEndsDropRun(t *testing.T) {
	p := app.NewDropPolicy(2)
	for i := 0; i < 5; i++ {
		assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate))
		assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_a", core.EvGameStateUpdate))
		p.OnDelivered("r", "r_a")
	}

	// same player id in another room has its own count
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_b", core.EvGameStateUpdate))
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r", "r_b", core.EvGameStateUpdate))
	assert.Equal(t, app.DropFrame, p.OnBackPressure("r_x", "r_b", core.EvGameStateUpdate))
	assert.Equal(t, app.KickMember, p.OnBackPressure("r", "r_b", core.EvGameStateUpdate))
}
