package core

import (
	"time"

	"github.com/dkeye/Tetris/internal/domain"
)

// Outbound event names.
const (
	EvJoinRoomSuccess     = "join-room-success"
	EvJoinRoomError       = "join-room-error"
	EvRoomUpdate          = "room-update"
	EvRoomInfo            = "room-info"
	EvPlayerJoined        = "player-joined"
	EvPlayerLeft          = "player-left"
	EvPlayerDisconnected  = "player-disconnected"
	EvPlayerReconnected   = "player-reconnected"
	EvHostChanged         = "host-changed"
	EvPlayerReadyChanged  = "player-ready-changed"
	EvGameStarted         = "game-started"
	EvGameStateUpdate     = "game-state-update"
	EvGameEnded           = "game-ended"
	EvGamePaused          = "game-paused"
	EvGameReset           = "game-reset"
	EvReconnectionSuccess = "reconnection-success"
	EvReconnectionError   = "reconnection-error"
	EvHeartbeatAck        = "heartbeat-ack"
	EvChatMessage         = "chat-message"
	EvError               = "error"
)

// Finish reasons.
const (
	ReasonRestarted = "restarted"
	ReasonAbandoned = "abandoned"
	ReasonCrashed   = "internal-error"
)

// Event is one outbound message; the transport encodes it as {"type","data"}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func ErrorEvent(typ string, err error) Event {
	return Event{Type: typ, Data: ErrorPayload{Message: err.Error(), Code: ErrorCode(err)}}
}

type JoinPayload struct {
	Player            PlayerDTO       `json:"player"`
	PlayerID          domain.PlayerID `json:"playerId"`
	ReconnectionToken string          `json:"reconnectionToken"`
	Room              RoomSnapshot    `json:"room"`
	GameState         *SimulationView `json:"gameState,omitempty"`
	Result            *GameResult     `json:"result,omitempty"`
	Reconnected       bool            `json:"reconnected"`
}

type PlayerPayload struct {
	Player PlayerDTO `json:"player"`
}

type HostChangedPayload struct {
	PreviousHost domain.PlayerID `json:"previousHost,omitempty"`
	NewHost      domain.PlayerID `json:"newHost,omitempty"`
}

type ReadyChangedPayload struct {
	PlayerID domain.PlayerID `json:"playerId"`
	Ready    bool            `json:"ready"`
	CanStart bool            `json:"canStart"`
}

type GameStartedPayload struct {
	GameState *SimulationView `json:"gameState"`
	FastMode  bool            `json:"fastMode"`
}

type PausedPayload struct {
	Reason string `json:"reason"`
}

type ChatPayload struct {
	PlayerID   domain.PlayerID `json:"playerId"`
	PlayerName string          `json:"playerName"`
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
}

type HeartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type RoomInfoPayload struct {
	Room      RoomSnapshot    `json:"room"`
	GameState *SimulationView `json:"gameState,omitempty"`
	Result    *GameResult     `json:"result,omitempty"`
}

type DeparturePayload struct {
	Player PlayerDTO `json:"player"`
	Reason string    `json:"reason,omitempty"`
}
