package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/domain"
)

type seat struct {
	room domain.RoomName
	pid  domain.PlayerID
}

// RoomRateLimiter is a sliding window limiter keyed by seat.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[seat][]time.Time
	limit    int
	interval time.Duration

	now func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[seat][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(room domain.RoomName, pid domain.PlayerID) bool {
	key := seat{room, pid}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	rl.history[key] = append(fresh, now)
	return true
}

// Forget drops the history of pid in room.
func (rl *RoomRateLimiter) Forget(room domain.RoomName, pid domain.PlayerID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, seat{room, pid})
}
