package core

import (
	"math/rand/v2"
	"time"

	"github.com/dkeye/Tetris/internal/domain"
)

// MaxLevel caps the level derived from cleared lines.
const MaxLevel = 15

var lineScores = [...]int{0, 40, 100, 300, 1200}

// CalculateScore returns the points for clearing lines at once at level.
func CalculateScore(lines, level int, fast bool) int {
	if lines <= 0 {
		return 0
	}
	if lines >= len(lineScores) {
		lines = len(lineScores) - 1
	}
	score := lineScores[lines] * level
	if fast {
		score = score * 3 / 2
	}
	return score
}

// PlayerGame is the board side of one player during a game.
type PlayerGame struct {
	PlayerID       domain.PlayerID  `json:"playerId"`
	Name           string           `json:"playerName"`
	Board          domain.Grid      `json:"board"`
	Current        *domain.Piece    `json:"currentPiece"`
	Next           domain.PieceKind `json:"nextPiece"`
	Cursor         int              `json:"pieceIndex"`
	Alive          bool             `json:"isAlive"`
	PendingPenalty int              `json:"pendingPenalty"`
	Score          int              `json:"score"`
	LinesCleared   int              `json:"linesCleared"`
	Level          int              `json:"level"`
	Spectrum       domain.Spectrum  `json:"spectrum"`

	locked []domain.PieceKind
}

func (g *PlayerGame) clone() PlayerGame {
	out := *g
	if g.Current != nil {
		p := g.Current.Moved(0, 0)
		out.Current = &p
	}
	out.locked = nil
	return out
}

// LockedKinds lists the kinds this player has locked so far, in order.
func (g *PlayerGame) LockedKinds() []domain.PieceKind {
	return append([]domain.PieceKind(nil), g.locked...)
}

func (g *PlayerGame) stats() PlayerStats {
	return PlayerStats{Score: g.Score, Level: g.Level, LinesCleared: g.LinesCleared}
}

func (g *PlayerGame) kill() {
	g.Alive = false
	g.Current = nil
}

func (g *PlayerGame) tryMove(dx, dy int) bool {
	if g.Current == nil {
		return false
	}
	moved := g.Current.Moved(dx, dy)
	if !domain.Fits(&g.Board, moved) {
		return false
	}
	g.Current = &moved
	return true
}

// MoveHorizontal shifts the piece one column; dx is -1 or 1.
func (g *PlayerGame) MoveHorizontal(dx int) bool { return g.tryMove(dx, 0) }

func (g *PlayerGame) RotatePiece() bool {
	if g.Current == nil {
		return false
	}
	rotated, ok := domain.Rotate(&g.Board, *g.Current, true)
	if ok {
		g.Current = &rotated
	}
	return ok
}

// SoftDrop moves the piece one row down if it can.
func (g *PlayerGame) SoftDrop() bool { return g.tryMove(0, 1) }

// HardDrop moves the piece as far down as it goes and returns the row count.
func (g *PlayerGame) HardDrop() int {
	rows := 0
	for g.tryMove(0, 1) {
		rows++
	}
	return rows
}

// Simulation is the state of one running game. It is not safe for concurrent
// use; the owning Room serializes every call.
type Simulation struct {
	RoomName  domain.RoomName                 `json:"roomName"`
	Players   map[domain.PlayerID]*PlayerGame `json:"players"`
	GameOver  bool                            `json:"gameOver"`
	Winner    *domain.PlayerID                `json:"winner"`
	StartTime time.Time                       `json:"startTime"`
	FastMode  bool                            `json:"fastMode"`

	connected map[domain.PlayerID]bool
	order     []domain.PlayerID
	seq       *PieceSequencer
	rng       domain.Rand
}

// SimPlayer is a participant handed to NewSimulation.
type SimPlayer struct {
	ID        domain.PlayerID
	Name      string
	Connected bool
}

// NewSimulation deals every player the same first and next piece.
func NewSimulation(room domain.RoomName, players []SimPlayer, seq *PieceSequencer, fast bool, rng domain.Rand, now time.Time) *Simulation {
	if rng == nil {
		rng = rand.New(rand.NewPCG(seq.Seed(), uint64(now.UnixNano())))
	}
	s := &Simulation{
		RoomName:  room,
		Players:   make(map[domain.PlayerID]*PlayerGame, len(players)),
		StartTime: now,
		FastMode:  fast,
		connected: make(map[domain.PlayerID]bool, len(players)),
		seq:       seq,
		rng:       rng,
	}
	first, next := seq.At(0), seq.At(1)
	for _, p := range players {
		cur := domain.NewPiece(first)
		s.Players[p.ID] = &PlayerGame{
			PlayerID: p.ID,
			Name:     p.Name,
			Current:  &cur,
			Next:     next,
			Cursor:   2,
			Alive:    true,
			Level:    1,
		}
		s.order = append(s.order, p.ID)
		s.connected[p.ID] = p.Connected
	}
	return s
}

func (s *Simulation) Sequencer() *PieceSequencer { return s.seq }

// SetConnected records whether a participant currently has a live connection.
// Disconnected players neither fall nor receive penalties.
func (s *Simulation) SetConnected(pid domain.PlayerID, connected bool) {
	if _, ok := s.Players[pid]; ok {
		s.connected[pid] = connected
	}
}

func (s *Simulation) active(pid domain.PlayerID) bool {
	g, ok := s.Players[pid]
	return ok && g.Alive && s.connected[pid]
}

// Apply runs one player input.
func (s *Simulation) Apply(pid domain.PlayerID, action domain.Action) error {
	if s.GameOver {
		return ErrGameOver
	}
	g, ok := s.Players[pid]
	if !ok {
		return ErrPlayerNotFound
	}
	if !g.Alive || g.Current == nil {
		return ErrNoActivePiece
	}
	switch action {
	case domain.ActionMoveLeft:
		g.MoveHorizontal(-1)
	case domain.ActionMoveRight:
		g.MoveHorizontal(1)
	case domain.ActionRotate:
		g.RotatePiece()
	case domain.ActionSoftDrop:
		g.SoftDrop()
	case domain.ActionHardDrop:
		g.HardDrop()
		s.lock(g)
	case domain.ActionSkipPiece:
		s.advance(g)
	default:
		return ErrUnknownAction
	}
	s.flushPenalties()
	s.Evaluate()
	return nil
}

// Tick applies gravity to every alive, connected player. Fast games fall two
// rows per tick. It reports whether any piece moved or locked.
func (s *Simulation) Tick() bool {
	if s.GameOver {
		return false
	}
	steps := 1
	if s.FastMode {
		steps = 2
	}
	changed := false
	for _, pid := range s.order {
		if !s.active(pid) {
			continue
		}
		g := s.Players[pid]
		for i := 0; i < steps && g.Current != nil; i++ {
			changed = true
			if !g.SoftDrop() {
				s.lock(g)
				break
			}
		}
	}
	if s.flushPenalties() {
		changed = true
	}
	s.Evaluate()
	return changed
}

func (s *Simulation) lock(g *PlayerGame) {
	if g.Current == nil {
		return
	}
	g.locked = append(g.locked, g.Current.Kind)
	lines := domain.LockAndClear(&g.Board, *g.Current)
	if lines > 0 {
		g.Score += CalculateScore(lines, g.Level, s.FastMode)
		g.LinesCleared += lines
		g.Level = min(g.LinesCleared/10+1, MaxLevel)
	}
	if lines >= 2 {
		s.sendPenalty(g.PlayerID, lines-1)
	}
	g.Spectrum = domain.ComputeSpectrum(&g.Board)
	if domain.ToppedOut(&g.Board) {
		g.kill()
		return
	}
	s.advance(g)
}

// advance moves the player to the next piece of the shared sequence.
func (s *Simulation) advance(g *PlayerGame) {
	cur := domain.NewPiece(g.Next)
	g.Next = s.seq.At(g.Cursor)
	g.Cursor++
	if !domain.Fits(&g.Board, cur) {
		g.kill()
		return
	}
	g.Current = &cur
}

func (s *Simulation) sendPenalty(from domain.PlayerID, n int) {
	for _, pid := range s.order {
		if pid != from && s.active(pid) {
			s.Players[pid].PendingPenalty += n
		}
	}
}

func (s *Simulation) flushPenalties() bool {
	applied := false
	for _, pid := range s.order {
		g := s.Players[pid]
		if g.PendingPenalty == 0 {
			continue
		}
		n := g.PendingPenalty
		g.PendingPenalty = 0
		if !g.Alive {
			continue
		}
		applied = true
		domain.AddGarbage(&g.Board, n, s.rng)
		g.Spectrum = domain.ComputeSpectrum(&g.Board)
		if g.Current != nil && !domain.Fits(&g.Board, *g.Current) {
			lifted := false
			for dy := 1; dy <= n && g.Current.Pos.Y-dy >= 0; dy++ {
				if g.tryMove(0, -dy) {
					lifted = true
					break
				}
			}
			if !lifted {
				g.kill()
				continue
			}
		}
		if domain.ToppedOut(&g.Board) {
			g.kill()
		}
	}
	return applied
}

// Evaluate ends the game once at most one alive, connected player remains.
// A solo game only ends when its player is no longer alive.
func (s *Simulation) Evaluate() {
	if s.GameOver {
		return
	}
	if len(s.order) == 1 {
		if !s.Players[s.order[0]].Alive {
			s.GameOver = true
			s.Winner = nil
		}
		return
	}
	var survivors []domain.PlayerID
	for _, pid := range s.order {
		if s.active(pid) {
			survivors = append(survivors, pid)
		}
	}
	if len(survivors) > 1 {
		return
	}
	s.GameOver = true
	s.Winner = nil
	if len(survivors) == 1 {
		w := survivors[0]
		s.Winner = &w
	}
}

// Abort ends the game without a winner.
func (s *Simulation) Abort() {
	s.GameOver = true
	s.Winner = nil
}

// AnyConnected reports whether at least one participant is connected.
func (s *Simulation) AnyConnected() bool {
	for _, pid := range s.order {
		if s.connected[pid] {
			return true
		}
	}
	return false
}

// SimulationView is a deep copy of a Simulation safe to encode outside the
// room lock.
type SimulationView struct {
	RoomName  domain.RoomName                `json:"roomName"`
	Players   map[domain.PlayerID]PlayerGame `json:"players"`
	GameOver  bool                           `json:"gameOver"`
	Winner    *domain.PlayerID               `json:"winner"`
	StartTime time.Time                      `json:"startTime"`
	FastMode  bool                           `json:"fastMode"`
}

func (s *Simulation) View() *SimulationView {
	v := &SimulationView{
		RoomName:  s.RoomName,
		Players:   make(map[domain.PlayerID]PlayerGame, len(s.Players)),
		GameOver:  s.GameOver,
		StartTime: s.StartTime,
		FastMode:  s.FastMode,
	}
	if s.Winner != nil {
		w := *s.Winner
		v.Winner = &w
	}
	for pid, g := range s.Players {
		v.Players[pid] = g.clone()
	}
	return v
}
