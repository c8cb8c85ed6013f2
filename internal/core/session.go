package core

import (
	"time"

	"github.com/dkeye/Tetris/internal/domain"
	"github.com/google/uuid"
)

type PlayerStats struct {
	Score        int `json:"score"`
	Level        int `json:"level"`
	LinesCleared int `json:"linesCleared"`
}

// PlayerSession is one roster entry of a Room. It is only touched under the
// room lock; callers outside core get a PlayerDTO.
type PlayerSession struct {
	ID       domain.PlayerID
	Name     string
	RoomName domain.RoomName

	Conn SignalConnection

	IsConnected bool
	IsReady     bool
	IsHost      bool

	LastSeen       time.Time
	DisconnectedAt time.Time

	ReconnectionToken string
	Stats             PlayerStats
}

func newPlayerSession(room domain.RoomName, name string, conn SignalConnection, now time.Time) *PlayerSession {
	return &PlayerSession{
		ID:                domain.NewPlayerID(room, name),
		Name:              name,
		RoomName:          room,
		Conn:              conn,
		IsConnected:       true,
		LastSeen:          now,
		ReconnectionToken: uuid.NewString(),
		Stats:             PlayerStats{Level: 1},
	}
}

// PlayerDTO is a read-only view for APIs (no transport fields).
type PlayerDTO struct {
	ID             domain.PlayerID `json:"id"`
	Name           string          `json:"name"`
	IsConnected    bool            `json:"isConnected"`
	IsReady        bool            `json:"isReady"`
	IsHost         bool            `json:"isHost"`
	LastSeen       time.Time       `json:"lastSeen"`
	DisconnectedAt *time.Time      `json:"disconnectedAt,omitempty"`
	PlayerStats
}

func (p *PlayerSession) Snapshot() PlayerDTO {
	dto := PlayerDTO{
		ID:          p.ID,
		Name:        p.Name,
		IsConnected: p.IsConnected,
		IsReady:     p.IsReady,
		IsHost:      p.IsHost,
		LastSeen:    p.LastSeen,
		PlayerStats: p.Stats,
	}
	if !p.IsConnected && !p.DisconnectedAt.IsZero() {
		at := p.DisconnectedAt
		dto.DisconnectedAt = &at
	}
	return dto
}

func (p *PlayerSession) markDisconnected(now time.Time) {
	p.IsConnected = false
	p.DisconnectedAt = now
	p.Conn = nil
}

func (p *PlayerSession) reattach(conn SignalConnection, now time.Time) {
	p.Conn = conn
	p.IsConnected = true
	p.DisconnectedAt = time.Time{}
	p.LastSeen = now
}
