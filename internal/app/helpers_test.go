package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memSink struct {
	mu      sync.Mutex
	calls   int
	entries []core.LeaderboardEntry
	err     error
}

func (s *memSink) Submit(_ context.Context, entries []core.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entries...)
	return nil
}

var errSinkDown = errors.New("sink down")

type recorder struct {
	mu     sync.Mutex
	events map[domain.RoomName][]core.Event
}

func newRecorder() *recorder { return &recorder{events: map[domain.RoomName][]core.Event{}} }

func (r *recorder) Publish(room domain.RoomName, events ...core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[room] = append(r.events[room], events...)
}

func (r *recorder) types(room domain.RoomName) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events[room]))
	for _, e := range r.events[room] {
		out = append(out, e.Type)
	}
	return out
}

func newManager(c *clock, sink core.LeaderboardSink) *app.RoomManager {
	m := app.NewRoomManager(app.ManagerConfig{MaxPlayers: 5}, app.NewReconnectionTracker(5*time.Minute), sink)
	m.SetClock(c.Now)
	return m
}
