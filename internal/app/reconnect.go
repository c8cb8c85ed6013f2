package app

import (
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultReconnectWindow is how long a disconnected player keeps their seat.
const DefaultReconnectWindow = 5 * time.Minute

// ReconnectionRecord remembers a disconnected player until they come back or
// the deadline passes.
type ReconnectionRecord struct {
	PlayerID       domain.PlayerID
	PlayerName     string
	RoomName       domain.RoomName
	Token          string
	Session        core.PlayerDTO
	DisconnectedAt time.Time
	Deadline       time.Time
}

// seatKey scopes a player id to its room. Ids alone are not unique across
// rooms: room "a" with "b_c" and room "a_b" with "c" both derive "a_b_c".
type seatKey struct {
	room domain.RoomName
	pid  domain.PlayerID
}

type ReconnectionTracker struct {
	mu      sync.Mutex
	window  time.Duration
	records map[seatKey]ReconnectionRecord
}

func NewReconnectionTracker(window time.Duration) *ReconnectionTracker {
	if window <= 0 {
		window = DefaultReconnectWindow
	}
	return &ReconnectionTracker{
		window:  window,
		records: make(map[seatKey]ReconnectionRecord),
	}
}

func (t *ReconnectionTracker) Window() time.Duration { return t.window }

// Track stores rec, computing its deadline from DisconnectedAt.
func (t *ReconnectionTracker) Track(rec ReconnectionRecord) ReconnectionRecord {
	rec.Deadline = rec.DisconnectedAt.Add(t.window)
	t.mu.Lock()
	t.records[seatKey{rec.RoomName, rec.PlayerID}] = rec
	t.mu.Unlock()
	log.Info().Str("module", "app.reconnect").Str("player", string(rec.PlayerID)).Time("deadline", rec.Deadline).Msg("tracking disconnected player")
	return rec
}

func (t *ReconnectionTracker) Lookup(room domain.RoomName, pid domain.PlayerID) (ReconnectionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[seatKey{room, pid}]
	return rec, ok
}

// Verify checks a rejoin attempt. An empty token is accepted on name alone.
// The record is never modified here.
func (t *ReconnectionTracker) Verify(room domain.RoomName, playerName, token string, now time.Time) (ReconnectionRecord, error) {
	rec, ok := t.Lookup(room, domain.NewPlayerID(room, playerName))
	if !ok {
		return ReconnectionRecord{}, core.ErrNoDisconnectedPlayer
	}
	if token != "" && token != rec.Token {
		return ReconnectionRecord{}, core.ErrInvalidToken
	}
	if now.After(rec.Deadline) {
		return ReconnectionRecord{}, core.ErrReconnectionExpired
	}
	return rec, nil
}

// Consume deletes the record of pid in room and reports whether there was one.
func (t *ReconnectionTracker) Consume(room domain.RoomName, pid domain.PlayerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := seatKey{room, pid}
	_, ok := t.records[key]
	delete(t.records, key)
	return ok
}

// Expire removes and returns every record whose deadline is before now.
func (t *ReconnectionTracker) Expire(now time.Time) []ReconnectionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ReconnectionRecord
	for key, rec := range t.records {
		if now.After(rec.Deadline) {
			out = append(out, rec)
			delete(t.records, key)
		}
	}
	return out
}

// Pending counts the live records of a room.
func (t *ReconnectionTracker) Pending(room domain.RoomName) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records {
		if rec.RoomName == room {
			n++
		}
	}
	return n
}
