package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

// Scheduler is the part of the game loop the manager drives.
type Scheduler interface {
	Track(domain.RoomName)
	Untrack(domain.RoomName)
}

type ManagerConfig struct {
	MaxPlayers     int
	SequenceLength int
	SinkTimeout    time.Duration
}

// RoomManager owns the room registry. The registry lock only guards the map;
// every room serializes its own state, so rooms never wait on each other.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]*core.Room

	cfg     ManagerConfig
	tracker *ReconnectionTracker
	sink    core.LeaderboardSink
	sched   Scheduler

	now  func() time.Time
	seed func() uint64
}

func NewRoomManager(cfg ManagerConfig, tracker *ReconnectionTracker, sink core.LeaderboardSink) *RoomManager {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = domain.DefaultMaxPlayers
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if tracker == nil {
		tracker = NewReconnectionTracker(DefaultReconnectWindow)
	}
	return &RoomManager{
		rooms:   make(map[domain.RoomName]*core.Room),
		cfg:     cfg,
		tracker: tracker,
		sink:    sink,
		sched:   noopScheduler{},
		now:     time.Now,
		seed:    rand.Uint64,
	}
}

type noopScheduler struct{}

func (noopScheduler) Track(domain.RoomName)   {}
func (noopScheduler) Untrack(domain.RoomName) {}

func (m *RoomManager) SetScheduler(s Scheduler) { m.sched = s }

// SetClock replaces the wall clock, for tests.
func (m *RoomManager) SetClock(now func() time.Time) { m.now = now }

func (m *RoomManager) Tracker() *ReconnectionTracker { return m.tracker }

func (m *RoomManager) Room(name domain.RoomName) (*core.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	return r, ok
}

func (m *RoomManager) getOrCreate(name domain.RoomName) *core.Room {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	room = core.NewRoom(name, core.RoomOptions{MaxPlayers: m.cfg.MaxPlayers, SequenceLength: m.cfg.SequenceLength}, m.now())
	m.rooms[name] = room
	log.Info().Str("module", "app.room_manager").Str("room", string(name)).Msg("room created")
	return room
}

// List returns every room sorted by name.
func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	rooms := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

type JoinResult struct {
	core.JoinOutcome
	RoomName    domain.RoomName
	PlayerID    domain.PlayerID
	Reconnected bool
}

// Join places conn in a room, creating the room on first use. A disconnected
// session with the same name inside its reconnection window is reattached
// whatever the room state; otherwise the usual admission rules apply.
func (m *RoomManager) Join(roomName, playerName, token string, conn core.SignalConnection) (JoinResult, error) {
	room, name, err := normalize(roomName, playerName)
	if err != nil {
		return JoinResult{}, &core.RejectedJoinError{Room: domain.RoomName(roomName), Player: playerName, Err: err}
	}
	reject := func(err error) error {
		return &core.RejectedJoinError{Room: room, Player: name, Err: err}
	}
	now := m.now()
	pid := domain.NewPlayerID(room, name)

	if rec, ok := m.tracker.Lookup(room, pid); ok {
		if token != "" && token != rec.Token {
			return JoinResult{}, reject(core.ErrInvalidToken)
		}
		if !now.After(rec.Deadline) {
			if r, ok := m.Room(room); ok {
				out, err := r.Reattach(pid, conn, now)
				if err == nil {
					m.tracker.Consume(room, pid)
					return JoinResult{JoinOutcome: out, RoomName: room, PlayerID: pid, Reconnected: true}, nil
				}
				log.Warn().Err(err).Str("module", "app.room_manager").Str("player", string(pid)).Msg("reconnection record without a seat")
			}
		}
	}

	for attempt := 0; ; attempt++ {
		r := m.getOrCreate(room)
		out, err := r.Join(name, conn, now)
		if errors.Is(err, core.ErrRoomClosed) && attempt < 3 {
			m.forget(room, r)
			continue
		}
		if err != nil {
			m.dropIfIdle(room, r)
			return JoinResult{}, reject(err)
		}
		m.tracker.Consume(room, pid)
		return JoinResult{JoinOutcome: out, RoomName: room, PlayerID: pid}, nil
	}
}

// Reconnect is the strict rejoin path: the player must have a live
// reconnection record. A failed attempt leaves the record in place.
func (m *RoomManager) Reconnect(roomName, playerName, token string, conn core.SignalConnection) (JoinResult, error) {
	room, name, err := normalize(roomName, playerName)
	if err != nil {
		return JoinResult{}, &core.ReconnectionError{Room: domain.RoomName(roomName), Player: playerName, Err: err}
	}
	fail := func(err error) error {
		return &core.ReconnectionError{Room: room, Player: name, Err: err}
	}
	r, ok := m.Room(room)
	if !ok {
		return JoinResult{}, fail(core.ErrRoomNotFound)
	}
	now := m.now()
	rec, err := m.tracker.Verify(room, name, token, now)
	if err != nil {
		return JoinResult{}, fail(err)
	}
	out, err := r.Reattach(rec.PlayerID, conn, now)
	if errors.Is(err, core.ErrRoomClosed) {
		return JoinResult{}, fail(core.ErrRoomNotFound)
	}
	if err != nil {
		return JoinResult{}, fail(err)
	}
	m.tracker.Consume(room, rec.PlayerID)
	return JoinResult{JoinOutcome: out, RoomName: room, PlayerID: rec.PlayerID, Reconnected: true}, nil
}

func normalize(roomName, playerName string) (domain.RoomName, string, error) {
	room, err := domain.NormalizeRoomName(roomName)
	if err != nil {
		return "", "", err
	}
	name, err := domain.NormalizePlayerName(playerName)
	if err != nil {
		return "", "", err
	}
	return room, name, nil
}

func (m *RoomManager) roomFor(op string, name domain.RoomName) (*core.Room, error) {
	r, ok := m.Room(name)
	if !ok {
		return nil, &core.InvalidActionError{Op: op, Err: core.ErrNotInRoom}
	}
	return r, nil
}

func (m *RoomManager) SetReady(room domain.RoomName, pid domain.PlayerID, ready bool) (core.ReadyOutcome, error) {
	r, err := m.roomFor("player-ready", room)
	if err != nil {
		return core.ReadyOutcome{}, err
	}
	return r.SetReady(pid, ready, m.now())
}

// Start begins a game and hands the room to the scheduler.
func (m *RoomManager) Start(room domain.RoomName, pid domain.PlayerID, fast bool) (*core.SimulationView, error) {
	r, err := m.roomFor("start-game", room)
	if err != nil {
		return nil, err
	}
	view, err := r.Start(pid, fast, m.seed(), m.now())
	if err != nil {
		return nil, err
	}
	m.sched.Track(room)
	return view, nil
}

func (m *RoomManager) Apply(room domain.RoomName, pid domain.PlayerID, action domain.Action) (*core.SimulationView, error) {
	r, err := m.roomFor("game-action", room)
	if err != nil {
		return nil, err
	}
	return r.Apply(pid, action, m.now())
}

func (m *RoomManager) Heartbeat(room domain.RoomName, pid domain.PlayerID) error {
	r, err := m.roomFor("heartbeat", room)
	if err != nil {
		return err
	}
	return r.Touch(pid, m.now())
}

// Disconnect covers both quitting and a dropped connection. conn may be nil
// for an explicit leave.
func (m *RoomManager) Disconnect(room domain.RoomName, pid domain.PlayerID, conn core.SignalConnection) (core.DisconnectOutcome, error) {
	r, ok := m.Room(room)
	if !ok {
		return core.DisconnectOutcome{}, core.ErrRoomNotFound
	}
	now := m.now()
	out, err := r.Disconnect(pid, conn, now)
	if err != nil {
		return out, err
	}
	if !out.Removed {
		m.tracker.Track(ReconnectionRecord{
			PlayerID:       pid,
			PlayerName:     out.Player.Name,
			RoomName:       room,
			Token:          out.Token,
			Session:        out.Player,
			DisconnectedAt: now,
		})
	}
	if out.Empty {
		m.dropIfIdle(room, r)
	}
	return out, nil
}

// Reset returns a room to WAITING, finalizing a running game first.
func (m *RoomManager) Reset(room domain.RoomName, pid domain.PlayerID) (core.ResetOutcome, error) {
	r, err := m.roomFor("restart-game", room)
	if err != nil {
		return core.ResetOutcome{}, err
	}
	out, err := r.Reset(pid, m.now())
	if err != nil {
		return out, err
	}
	m.sched.Untrack(room)
	if out.Finished != nil {
		m.submit(out.Finished)
	}
	for _, id := range out.Removed {
		m.tracker.Consume(room, id)
	}
	return out, nil
}

// Tick advances one room. A missing room reports Running=false.
func (m *RoomManager) Tick(room domain.RoomName) core.TickOutcome {
	r, ok := m.Room(room)
	if !ok {
		return core.TickOutcome{}
	}
	return r.Tick()
}

// Finalize ends a running game exactly once and submits its results. The
// sink is best effort: its failure is logged and never blocks the room.
func (m *RoomManager) Finalize(room domain.RoomName, reason string) (*core.GameResult, bool) {
	defer m.sched.Untrack(room)
	r, ok := m.Room(room)
	if !ok {
		return nil, false
	}
	res, first := r.Finish(reason, m.now())
	if first {
		m.submit(res)
	}
	return res, first
}

// FinalizeGame is Finalize for game number game as reported by Tick. It is a
// no-op returning current=false when the room has since started another game.
func (m *RoomManager) FinalizeGame(room domain.RoomName, game uint64, reason string) (res *core.GameResult, first, current bool) {
	r, ok := m.Room(room)
	if !ok {
		m.sched.Untrack(room)
		return nil, false, true
	}
	res, first, err := r.FinishGame(game, reason, m.now())
	if err != nil {
		log.Debug().Str("module", "app.room_manager").Str("room", string(room)).Uint64("game", game).Msg("stale finalize ignored")
		return nil, false, false
	}
	m.sched.Untrack(room)
	if r.State() == domain.RoomPlaying {
		// restarted between FinishGame and Untrack
		m.sched.Track(room)
	}
	if first {
		m.submit(res)
	}
	return res, first, true
}

// Abort ends a running game without a winner, used when its tick fails.
func (m *RoomManager) Abort(room domain.RoomName, reason string) (*core.GameResult, bool) {
	defer m.sched.Untrack(room)
	r, ok := m.Room(room)
	if !ok {
		return nil, false
	}
	res, first := r.Abort(reason, m.now())
	if first {
		m.submit(res)
	}
	return res, first
}

func (m *RoomManager) submit(res *core.GameResult) {
	if m.sink == nil || res == nil || len(res.Results) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SinkTimeout)
	defer cancel()
	if err := m.sink.Submit(ctx, res.Results); err != nil {
		log.Error().Err(err).Str("module", "app.room_manager").Str("room", string(res.Room)).Msg("leaderboard submit failed")
		return
	}
	log.Info().Str("module", "app.room_manager").Str("room", string(res.Room)).Int("entries", len(res.Results)).Msg("leaderboard updated")
}

// RoomSweep is what a sweep did to one room.
type RoomSweep struct {
	Room     domain.RoomName
	Expired  core.ExpiryOutcome
	Finished *core.GameResult
	Deleted  bool
}

// Sweep drops expired reconnection records with their players, then deletes
// rooms with nobody connected and no pending deadline.
func (m *RoomManager) Sweep(now time.Time) []RoomSweep {
	byRoom := map[domain.RoomName][]domain.PlayerID{}
	for _, rec := range m.tracker.Expire(now) {
		byRoom[rec.RoomName] = append(byRoom[rec.RoomName], rec.PlayerID)
	}
	results := map[domain.RoomName]*RoomSweep{}
	for name, ids := range byRoom {
		r, ok := m.Room(name)
		if !ok {
			continue
		}
		results[name] = &RoomSweep{Room: name, Expired: r.RemoveExpired(ids)}
		log.Info().Str("module", "app.room_manager").Str("room", string(name)).Int("expired", len(ids)).Msg("reconnection window lapsed")
	}

	m.mu.RLock()
	rooms := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		name := r.Name()
		if r.ConnectedCount() > 0 || m.tracker.Pending(name) > 0 {
			continue
		}
		sw, ok := results[name]
		if !ok {
			sw = &RoomSweep{Room: name}
			results[name] = sw
		}
		if r.State() == domain.RoomPlaying {
			if res, first := m.Finalize(name, core.ReasonAbandoned); first {
				sw.Finished = res
			}
		}
		sw.Deleted = m.dropIfIdle(name, r)
	}

	out := make([]RoomSweep, 0, len(results))
	for _, sw := range results {
		out = append(out, *sw)
	}
	slices.SortFunc(out, func(a, b RoomSweep) int { return strings.Compare(string(a.Room), string(b.Room)) })
	return out
}

// dropIfIdle deletes r from the registry when it can be closed.
func (m *RoomManager) dropIfIdle(name domain.RoomName, r *core.Room) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[name] != r {
		return false
	}
	if !r.CloseIfIdle(func() int { return m.tracker.Pending(name) }) {
		return false
	}
	delete(m.rooms, name)
	m.sched.Untrack(name)
	log.Info().Str("module", "app.room_manager").Str("room", string(name)).Msg("room deleted")
	return true
}

func (m *RoomManager) forget(name domain.RoomName, r *core.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[name] == r {
		delete(m.rooms, name)
	}
}
