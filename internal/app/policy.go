package app

import (
	"sync"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a player whose send buffer is full.
// OnDelivered reports a frame that reached the player's buffer.
type Policy interface {
	OnBackPressure(room domain.RoomName, pid domain.PlayerID, event string) BackpressureAction
	OnDelivered(room domain.RoomName, pid domain.PlayerID)
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomName, domain.PlayerID, string) BackpressureAction {
	return KickMember
}

func (SimplePolicy) OnDelivered(domain.RoomName, domain.PlayerID) {}

// DropPolicy drops state updates, which the next tick supersedes anyway, and
// kicks a player after MaxDrops of them in a row or on any other lost event.
// A kicked player keeps their seat and can reconnect.
type DropPolicy struct {
	MaxDrops int

	mu    sync.Mutex
	drops map[seatKey]int
}

func NewDropPolicy(maxDrops int) *DropPolicy {
	if maxDrops <= 0 {
		maxDrops = 10
	}
	return &DropPolicy{MaxDrops: maxDrops, drops: make(map[seatKey]int)}
}

func (p *DropPolicy) OnBackPressure(room domain.RoomName, pid domain.PlayerID, event string) BackpressureAction {
	key := seatKey{room, pid}
	p.mu.Lock()
	defer p.mu.Unlock()
	if event != core.EvGameStateUpdate {
		delete(p.drops, key)
		return KickMember
	}
	p.drops[key]++
	if p.drops[key] > p.MaxDrops {
		delete(p.drops, key)
		return KickMember
	}
	return DropFrame
}

// OnDelivered ends the run of drops: the client caught up.
func (p *DropPolicy) OnDelivered(room domain.RoomName, pid domain.PlayerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.drops) > 0 {
		delete(p.drops, seatKey{room, pid})
	}
}
