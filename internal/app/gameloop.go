package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval  = time.Second
	DefaultSweepInterval = 30 * time.Second
)

// GameLoop drives every running game. Each tracked room ticks in its own
// goroutine; a room whose previous tick has not returned yet is skipped, so a
// slow room never holds up the others.
type GameLoop struct {
	rooms    *RoomManager
	notifier core.Notifier

	tickInterval  time.Duration
	sweepInterval time.Duration

	mu     sync.Mutex
	active map[domain.RoomName]*atomic.Bool
	wg     sync.WaitGroup

	tick func(domain.RoomName) core.TickOutcome
}

// NewGameLoop registers itself as the scheduler of rooms.
func NewGameLoop(rooms *RoomManager, notifier core.Notifier, tickInterval, sweepInterval time.Duration) *GameLoop {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	l := &GameLoop{
		rooms:         rooms,
		notifier:      notifier,
		tickInterval:  tickInterval,
		sweepInterval: sweepInterval,
		active:        make(map[domain.RoomName]*atomic.Bool),
	}
	l.tick = rooms.Tick
	rooms.SetScheduler(l)
	return l
}

func (l *GameLoop) Track(name domain.RoomName) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[name]; !ok {
		l.active[name] = new(atomic.Bool)
		log.Info().Str("module", "app.gameloop").Str("room", string(name)).Msg("room tracked")
	}
}

func (l *GameLoop) Untrack(name domain.RoomName) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[name]; ok {
		delete(l.active, name)
		log.Info().Str("module", "app.gameloop").Str("room", string(name)).Msg("room untracked")
	}
}

func (l *GameLoop) Tracked(name domain.RoomName) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[name]
	return ok
}

// Run ticks until ctx is done, then waits for in-flight ticks.
func (l *GameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	log.Info().Str("module", "app.gameloop").Dur("interval", l.tickInterval).Msg("game loop started")
	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			log.Info().Str("module", "app.gameloop").Msg("game loop stopped")
			return nil
		case <-ticker.C:
			l.tickAll()
		}
	}
}

// RunSweep prunes expired reconnections and idle rooms until ctx is done.
func (l *GameLoop) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.SweepOnce(now)
		}
	}
}

// TickOnce ticks every tracked room and waits for all of them.
func (l *GameLoop) TickOnce() {
	l.tickAll()
	l.wg.Wait()
}

func (l *GameLoop) tickAll() {
	l.mu.Lock()
	type job struct {
		name     domain.RoomName
		inFlight *atomic.Bool
	}
	jobs := make([]job, 0, len(l.active))
	for name, flag := range l.active {
		jobs = append(jobs, job{name, flag})
	}
	l.mu.Unlock()

	for _, j := range jobs {
		if !j.inFlight.CompareAndSwap(false, true) {
			log.Warn().Str("module", "app.gameloop").Str("room", string(j.name)).Msg("previous tick still running, skipped")
			continue
		}
		l.wg.Add(1)
		go l.tickRoom(j.name, j.inFlight)
	}
}

func (l *GameLoop) tickRoom(name domain.RoomName, inFlight *atomic.Bool) {
	defer l.wg.Done()
	defer inFlight.Store(false)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("module", "app.gameloop").Str("room", string(name)).Str("panic", fmt.Sprint(p)).Msg("room tick failed, aborting game")
			res, first := l.rooms.Abort(name, core.ReasonCrashed)
			l.Untrack(name)
			if first {
				l.publish(name, core.Event{Type: core.EvGameEnded, Data: res})
			}
		}
	}()

	out := l.tick(name)
	if out.Running && out.View != nil {
		l.publish(name, core.Event{Type: core.EvGameStateUpdate, Data: out.View})
	}
	if !out.Running || out.GameOver {
		if res, first, _ := l.rooms.FinalizeGame(name, out.Game, ""); first {
			l.publish(name, core.Event{Type: core.EvGameEnded, Data: res})
		}
	}
}

// SweepOnce runs one reconnection sweep and broadcasts what changed.
func (l *GameLoop) SweepOnce(now time.Time) []RoomSweep {
	sweeps := l.rooms.Sweep(now)
	for _, sw := range sweeps {
		var events []core.Event
		for _, p := range sw.Expired.Removed {
			events = append(events, core.Event{Type: core.EvPlayerLeft, Data: core.PlayerPayload{Player: p}})
		}
		if sw.Expired.HostChanged {
			events = append(events, core.Event{Type: core.EvHostChanged, Data: core.HostChangedPayload{
				PreviousHost: sw.Expired.PreviousHost,
				NewHost:      sw.Expired.NewHost,
			}})
		}
		if sw.Finished != nil {
			events = append(events, core.Event{Type: core.EvGameEnded, Data: sw.Finished})
		}
		if len(sw.Expired.Removed) > 0 && !sw.Deleted {
			events = append(events, core.Event{Type: core.EvRoomUpdate, Data: sw.Expired.Room})
		}
		if len(events) > 0 {
			l.publish(sw.Room, events...)
		}
	}
	if len(sweeps) > 0 {
		log.Info().Str("module", "app.gameloop").Int("rooms", len(sweeps)).Msg("sweep done")
	}
	return sweeps
}

func (l *GameLoop) publish(name domain.RoomName, events ...core.Event) {
	if l.notifier != nil {
		l.notifier.Publish(name, events...)
	}
}
