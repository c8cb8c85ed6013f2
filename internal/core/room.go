package core

import (
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomOptions struct {
	MaxPlayers     int
	SequenceLength int
}

// Room is a threadsafe in-memory game room. Every exported method takes the
// room lock for its whole duration and returns copies, so callers can encode
// and send them after the lock is released.
// It never closes adapter-owned resources.
type Room struct {
	mu sync.Mutex

	name       domain.RoomName
	maxPlayers int
	seqLen     int
	createdAt  time.Time

	state   domain.RoomState
	hostID  domain.PlayerID
	players map[domain.PlayerID]*PlayerSession
	order   []domain.PlayerID

	sim    *Simulation
	game   uint64
	result *GameResult
	closed bool
}

func NewRoom(name domain.RoomName, opts RoomOptions, now time.Time) *Room {
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = domain.DefaultMaxPlayers
	}
	return &Room{
		name:       name,
		maxPlayers: opts.MaxPlayers,
		seqLen:     opts.SequenceLength,
		createdAt:  now,
		state:      domain.RoomWaiting,
		players:    make(map[domain.PlayerID]*PlayerSession),
	}
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

type JoinOutcome struct {
	Player      PlayerDTO
	Token       string
	Room        RoomSnapshot
	Game        *SimulationView
	Result      *GameResult
	HostChanged bool
}

func (r *Room) joinOutcomeLocked(p *PlayerSession, hostChanged bool) JoinOutcome {
	out := JoinOutcome{
		Player:      p.Snapshot(),
		Token:       p.ReconnectionToken,
		Room:        r.snapshotLocked(),
		Result:      r.result,
		HostChanged: hostChanged,
	}
	if r.sim != nil {
		out.Game = r.sim.View()
	}
	return out
}

// Join adds a new player. A disconnected session holding the same name is
// replaced; reattaching to it is the caller's job.
func (r *Room) Join(name string, conn SignalConnection, now time.Time) (JoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinOutcome{}, ErrRoomClosed
	}
	if r.state == domain.RoomPlaying {
		return JoinOutcome{}, ErrGameInProgress
	}
	pid := domain.NewPlayerID(r.name, name)
	existing, has := r.players[pid]
	stale := has && !existing.IsConnected
	if len(r.order) >= r.maxPlayers && !stale {
		return JoinOutcome{}, ErrRoomFull
	}
	if has && existing.IsConnected {
		return JoinOutcome{}, ErrNameTaken
	}

	p := newPlayerSession(r.name, name, conn, now)
	r.players[pid] = p
	if !stale {
		r.order = append(r.order, pid)
	}
	hostChanged := false
	if r.hostID == "" || r.hostID == pid {
		// a replaced host keeps the same identity
		hostChanged = r.hostID == "" && len(r.order) > 1
		r.setHostLocked(pid)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("player", string(pid)).Bool("replaced", stale).Msg("player joined")
	return r.joinOutcomeLocked(p, hostChanged), nil
}

// Reattach binds a new connection to a disconnected session, keeping its
// identity and stats.
func (r *Room) Reattach(pid domain.PlayerID, conn SignalConnection, now time.Time) (JoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinOutcome{}, ErrRoomClosed
	}
	p, ok := r.players[pid]
	if !ok || p.IsConnected {
		return JoinOutcome{}, ErrNoDisconnectedPlayer
	}
	p.reattach(conn, now)
	if r.sim != nil {
		r.sim.SetConnected(pid, true)
	}
	hostChanged := false
	if r.hostID == "" {
		r.setHostLocked(pid)
		hostChanged = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("player", string(pid)).Msg("player reattached")
	return r.joinOutcomeLocked(p, hostChanged), nil
}

type ReadyOutcome struct {
	PlayerID domain.PlayerID
	Ready    bool
	CanStart bool
	Room     RoomSnapshot
}

func (r *Room) SetReady(pid domain.PlayerID, ready bool, now time.Time) (ReadyOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[pid]
	if !ok {
		return ReadyOutcome{}, invalid("player-ready", ErrPlayerNotFound)
	}
	if r.state != domain.RoomWaiting {
		return ReadyOutcome{}, invalid("player-ready", ErrNotWaiting)
	}
	p.IsReady = ready
	p.LastSeen = now
	return ReadyOutcome{PlayerID: pid, Ready: ready, CanStart: r.canStartLocked(), Room: r.snapshotLocked()}, nil
}

// CanStart reports whether the room is WAITING with every connected player ready.
func (r *Room) CanStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canStartLocked()
}

func (r *Room) canStartLocked() bool {
	if r.state != domain.RoomWaiting || len(r.order) == 0 {
		return false
	}
	connected := 0
	for _, pid := range r.order {
		p := r.players[pid]
		if !p.IsConnected {
			continue
		}
		connected++
		if !p.IsReady {
			return false
		}
	}
	return connected > 0
}

// Start deals a fresh game to every roster member. Only the host may start.
func (r *Room) Start(pid domain.PlayerID, fast bool, seed uint64, now time.Time) (*SimulationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[pid]; !ok {
		return nil, invalid("start-game", ErrPlayerNotFound)
	}
	if pid != r.hostID {
		return nil, invalid("start-game", ErrNotHost)
	}
	if r.state != domain.RoomWaiting {
		return nil, invalid("start-game", ErrNotWaiting)
	}
	if len(r.order) == 0 {
		return nil, invalid("start-game", ErrRoomEmpty)
	}
	if !r.canStartLocked() {
		return nil, invalid("start-game", ErrNotAllReady)
	}

	participants := make([]SimPlayer, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		p.Stats = PlayerStats{Level: 1}
		participants = append(participants, SimPlayer{ID: id, Name: p.Name, Connected: p.IsConnected})
	}
	r.sim = NewSimulation(r.name, participants, NewPieceSequencer(seed, r.seqLen), fast, nil, now)
	r.result = nil
	r.game++
	r.state = domain.RoomPlaying
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Int("players", len(participants)).Bool("fast", fast).Msg("game started")
	return r.sim.View(), nil
}

// Apply forwards a player input to the running game.
func (r *Room) Apply(pid domain.PlayerID, action domain.Action, now time.Time) (*SimulationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.RoomPlaying || r.sim == nil {
		return nil, invalid("game-action", ErrGameNotRunning)
	}
	if p, ok := r.players[pid]; ok {
		p.LastSeen = now
	}
	if err := r.sim.Apply(pid, action); err != nil {
		return nil, invalid("game-action", err)
	}
	r.syncStatsLocked()
	return r.sim.View(), nil
}

// TickOutcome reports one step of the game numbered Game.
type TickOutcome struct {
	Game     uint64
	Running  bool
	Changed  bool
	GameOver bool
	View     *SimulationView
}

// Tick advances the running game by one step.
func (r *Room) Tick() TickOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.RoomPlaying || r.sim == nil {
		return TickOutcome{Game: r.game}
	}
	out := TickOutcome{Game: r.game, Running: true}
	out.Changed = r.sim.Tick()
	out.GameOver = r.sim.GameOver
	r.syncStatsLocked()
	if out.Changed || out.GameOver {
		out.View = r.sim.View()
	}
	return out
}

func (r *Room) syncStatsLocked() {
	for pid, g := range r.sim.Players {
		if p, ok := r.players[pid]; ok {
			p.Stats = g.stats()
		}
	}
}

type DisconnectOutcome struct {
	Game            uint64
	Player          PlayerDTO
	Token           string
	Removed         bool
	HostChanged     bool
	PreviousHost    domain.PlayerID
	NewHost         domain.PlayerID
	AllDisconnected bool
	GameOver        bool
	Empty           bool
	Room            RoomSnapshot
}

// Disconnect handles both an explicit leave and a dropped connection. While
// WAITING the player is removed; otherwise the session stays in the roster
// marked disconnected. When conn is not nil and the player already moved to a
// newer connection, nothing changes and ErrStaleConnection is returned.
func (r *Room) Disconnect(pid domain.PlayerID, conn SignalConnection, now time.Time) (DisconnectOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[pid]
	if !ok {
		return DisconnectOutcome{}, ErrPlayerNotFound
	}
	if !p.IsConnected || (conn != nil && p.Conn != conn) {
		return DisconnectOutcome{}, ErrStaleConnection
	}

	out := DisconnectOutcome{Game: r.game, Token: p.ReconnectionToken}
	wasHost := pid == r.hostID
	if r.state == domain.RoomWaiting {
		r.removeLocked(pid)
		out.Removed = true
	} else {
		p.markDisconnected(now)
		if r.sim != nil {
			r.sim.SetConnected(pid, false)
			r.sim.Evaluate()
			out.GameOver = r.sim.GameOver
			out.AllDisconnected = r.state == domain.RoomPlaying && !r.sim.GameOver && !r.sim.AnyConnected()
		}
	}
	out.Player = p.Snapshot()
	if wasHost {
		out.HostChanged = true
		out.PreviousHost = pid
		out.NewHost = r.transferHostLocked()
	}
	out.Empty = len(r.order) == 0
	out.Room = r.snapshotLocked()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("player", string(pid)).Bool("removed", out.Removed).Str("new_host", string(out.NewHost)).Msg("player disconnected")
	return out, nil
}

// Finish moves a PLAYING room to FINISHED once. Later calls return the stored
// result with false.
func (r *Room) Finish(reason string, now time.Time) (*GameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked(reason, now)
}

// FinishGame is Finish restricted to game number game. A newer game started
// after a reset is left running and ErrStaleGame is returned.
func (r *Room) FinishGame(game uint64, reason string, now time.Time) (*GameResult, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if game != r.game {
		return nil, false, ErrStaleGame
	}
	res, first := r.finishLocked(reason, now)
	return res, first, nil
}

// GameNumber counts the games started in the room, starting at 1.
func (r *Room) GameNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game
}

// Abort ends a running game without a winner.
func (r *Room) Abort(reason string, now time.Time) (*GameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.RoomPlaying && r.sim != nil {
		r.sim.Abort()
	}
	return r.finishLocked(reason, now)
}

func (r *Room) finishLocked(reason string, now time.Time) (*GameResult, bool) {
	if r.state != domain.RoomPlaying || r.sim == nil {
		return r.result, false
	}
	r.sim.GameOver = true
	r.syncStatsLocked()
	view := r.sim.View()
	res := &GameResult{
		Room:       r.name,
		Winner:     view.Winner,
		Reason:     reason,
		FinalState: view,
		EndedAt:    now,
	}
	if view.Winner != nil {
		res.WinnerName = view.Players[*view.Winner].Name
	}
	solo := len(r.sim.order) == 1
	duration := int(now.Sub(r.sim.StartTime).Seconds())
	for _, pid := range r.sim.order {
		g := r.sim.Players[pid]
		win := view.Winner != nil && *view.Winner == pid
		if solo && (g.Score >= 100 || g.LinesCleared >= 5) {
			win = true
		}
		res.Results = append(res.Results, LeaderboardEntry{
			PlayerName:   g.Name,
			Score:        g.Score,
			LinesCleared: g.LinesCleared,
			Level:        g.Level,
			GameDuration: duration,
			FastMode:     r.sim.FastMode,
			IsWin:        win,
			RoomName:     r.name,
		})
	}
	r.result = res
	r.state = domain.RoomFinished
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("winner", res.WinnerName).Str("reason", reason).Msg("game finished")
	return res, true
}

type ResetOutcome struct {
	Finished *GameResult
	Removed  []domain.PlayerID
	Room     RoomSnapshot
}

// Reset brings the room back to WAITING. A running game is finished first with
// reason "restarted". Disconnected players are dropped from the roster.
func (r *Room) Reset(pid domain.PlayerID, now time.Time) (ResetOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[pid]; !ok {
		return ResetOutcome{}, invalid("restart-game", ErrPlayerNotFound)
	}
	if pid != r.hostID {
		return ResetOutcome{}, invalid("restart-game", ErrNotHost)
	}
	if r.state == domain.RoomWaiting {
		return ResetOutcome{}, invalid("restart-game", ErrGameNotRunning)
	}

	var out ResetOutcome
	if r.state == domain.RoomPlaying {
		if res, first := r.finishLocked(ReasonRestarted, now); first {
			out.Finished = res
		}
	}
	for _, id := range append([]domain.PlayerID(nil), r.order...) {
		p := r.players[id]
		if !p.IsConnected {
			r.removeLocked(id)
			out.Removed = append(out.Removed, id)
			continue
		}
		p.IsReady = false
		p.Stats = PlayerStats{Level: 1}
	}
	r.sim = nil
	r.result = nil
	r.state = domain.RoomWaiting
	out.Room = r.snapshotLocked()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Int("dropped", len(out.Removed)).Msg("room reset")
	return out, nil
}

type ExpiryOutcome struct {
	Removed      []PlayerDTO
	HostChanged  bool
	PreviousHost domain.PlayerID
	NewHost      domain.PlayerID
	Empty        bool
	Room         RoomSnapshot
}

// RemoveExpired drops the given players if they are still disconnected.
func (r *Room) RemoveExpired(ids []domain.PlayerID) ExpiryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out ExpiryOutcome
	for _, id := range ids {
		p, ok := r.players[id]
		if !ok || p.IsConnected {
			continue
		}
		wasHost := id == r.hostID
		out.Removed = append(out.Removed, p.Snapshot())
		r.removeLocked(id)
		if wasHost {
			out.HostChanged = true
			out.PreviousHost = id
			out.NewHost = r.transferHostLocked()
		}
	}
	out.Empty = len(r.order) == 0
	out.Room = r.snapshotLocked()
	return out
}

// CloseIfIdle closes the room when nobody is connected and pending reports no
// outstanding reconnection deadlines. A closed room refuses every join.
func (r *Room) CloseIfIdle(pending func() int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return true
	}
	for _, p := range r.players {
		if p.IsConnected {
			return false
		}
	}
	if pending != nil && pending() > 0 {
		return false
	}
	r.closed = true
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("room closed")
	return true
}

// Touch refreshes lastSeen on heartbeat.
func (r *Room) Touch(pid domain.PlayerID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[pid]
	if !ok {
		return ErrPlayerNotFound
	}
	p.LastSeen = now
	return nil
}

func (r *Room) Player(pid domain.PlayerID) (PlayerDTO, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[pid]
	if !ok {
		return PlayerDTO{}, false
	}
	return p.Snapshot(), true
}

// Recipients lists the connected players in join order.
func (r *Room) Recipients() []Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recipient, 0, len(r.order))
	for _, pid := range r.order {
		if p := r.players[pid]; p.IsConnected && p.Conn != nil {
			out = append(out, Recipient{PlayerID: pid, Conn: p.Conn})
		}
	}
	return out
}

func (r *Room) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Game returns the current or last game view, nil when none.
func (r *Room) Game() *SimulationView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sim == nil {
		return nil
	}
	return r.sim.View()
}

func (r *Room) Result() *GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := RoomInfo{Name: r.name, State: r.state, PlayerCount: len(r.order), MaxPlayers: r.maxPlayers}
	for _, p := range r.players {
		if p.IsConnected {
			info.ConnectedCount++
		}
	}
	return info
}

func (r *Room) snapshotLocked() RoomSnapshot {
	s := RoomSnapshot{
		Name:       r.name,
		State:      r.state,
		HostID:     r.hostID,
		MaxPlayers: r.maxPlayers,
		Players:    make([]PlayerDTO, 0, len(r.order)),
		CanStart:   r.canStartLocked(),
	}
	for _, pid := range r.order {
		s.Players = append(s.Players, r.players[pid].Snapshot())
	}
	return s
}

func (r *Room) setHostLocked(pid domain.PlayerID) {
	r.hostID = pid
	for id, p := range r.players {
		p.IsHost = id == pid
	}
}

// transferHostLocked promotes a connected and ready player, else any connected
// player, else leaves the room without a host.
func (r *Room) transferHostLocked() domain.PlayerID {
	var fallback domain.PlayerID
	for _, pid := range r.order {
		p := r.players[pid]
		if pid == r.hostID || !p.IsConnected {
			continue
		}
		if p.IsReady {
			r.setHostLocked(pid)
			return pid
		}
		if fallback == "" {
			fallback = pid
		}
	}
	r.setHostLocked(fallback)
	return fallback
}

func (r *Room) removeLocked(pid domain.PlayerID) {
	delete(r.players, pid)
	for i, id := range r.order {
		if id == pid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
