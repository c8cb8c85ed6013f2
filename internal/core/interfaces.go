package core

import (
	"context"
	"time"

	"github.com/dkeye/Tetris/internal/domain"
)

// LeaderboardEntry is the per-player record written when a game finishes.
type LeaderboardEntry struct {
	PlayerName   string          `json:"playerName"`
	Score        int             `json:"score"`
	LinesCleared int             `json:"linesCleared"`
	Level        int             `json:"level"`
	GameDuration int             `json:"gameDurationSeconds"`
	FastMode     bool            `json:"fastMode"`
	IsWin        bool            `json:"isWin"`
	RoomName     domain.RoomName `json:"roomName"`
}

// LeaderboardSink stores finished games. Failures never block a room.
type LeaderboardSink interface {
	Submit(ctx context.Context, entries []LeaderboardEntry) error
}

// Notifier fans events out to every connected player of a room.
type Notifier interface {
	Publish(room domain.RoomName, events ...Event)
}

// Recipient is a connected player and the connection to reach them.
type Recipient struct {
	PlayerID domain.PlayerID
	Conn     SignalConnection
}

type RoomInfo struct {
	Name           domain.RoomName  `json:"name"`
	State          domain.RoomState `json:"state"`
	PlayerCount    int              `json:"playerCount"`
	ConnectedCount int              `json:"connectedCount"`
	MaxPlayers     int              `json:"maxPlayers"`
}

type RoomSnapshot struct {
	Name       domain.RoomName  `json:"name"`
	State      domain.RoomState `json:"state"`
	HostID     domain.PlayerID  `json:"hostId,omitempty"`
	MaxPlayers int              `json:"maxPlayers"`
	Players    []PlayerDTO      `json:"players"`
	CanStart   bool             `json:"canStart"`
}

// GameResult is what a finished game leaves behind.
type GameResult struct {
	Room       domain.RoomName    `json:"roomName"`
	Winner     *domain.PlayerID   `json:"winner"`
	WinnerName string             `json:"winnerName,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	FinalState *SimulationView    `json:"finalState"`
	Results    []LeaderboardEntry `json:"results"`
	EndedAt    time.Time          `json:"endedAt"`
}
