package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Tetris/internal/domain"
)

// Inbound command names.
const (
	CmdJoinRoom            = "join-room"
	CmdPlayerReady         = "player-ready"
	CmdStartGame           = "start-game"
	CmdGameAction          = "game-action"
	CmdRestartGame         = "restart-game"
	CmdGetRoomInfo         = "get-room-info"
	CmdHeartbeat           = "heartbeat"
	CmdRequestReconnection = "request-reconnection"
	CmdChatMessage         = "chat-message"
	CmdQuitGame            = "quit-game"
)

// DefaultMaxChatRunes caps a chat line after trimming.
const DefaultMaxChatRunes = 200

var (
	ErrBadPayload     = errors.New("bad payload")
	ErrUnknownCommand = errors.New("unknown command")
)

// Envelope is the framing of every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Command is a decoded and validated inbound message.
type Command interface {
	Name() string
	Validate() error
}

type JoinRoom struct {
	RoomName          string `json:"roomName"`
	PlayerName        string `json:"playerName"`
	ReconnectionToken string `json:"reconnectionToken,omitempty"`
}

func (*JoinRoom) Name() string { return CmdJoinRoom }

func (c *JoinRoom) Validate() error { return validateSeat(c.RoomName, c.PlayerName) }

type RequestReconnection struct {
	RoomName          string `json:"roomName"`
	PlayerName        string `json:"playerName"`
	ReconnectionToken string `json:"reconnectionToken"`
}

func (*RequestReconnection) Name() string { return CmdRequestReconnection }

func (c *RequestReconnection) Validate() error {
	if err := validateSeat(c.RoomName, c.PlayerName); err != nil {
		return err
	}
	if strings.TrimSpace(c.ReconnectionToken) == "" {
		return fmt.Errorf("%w: reconnectionToken is required", ErrBadPayload)
	}
	return nil
}

func validateSeat(room, player string) error {
	if _, err := domain.NormalizeRoomName(room); err != nil {
		return err
	}
	if _, err := domain.NormalizePlayerName(player); err != nil {
		return err
	}
	return nil
}

type PlayerReady struct {
	Ready bool `json:"ready"`
}

func (*PlayerReady) Name() string    { return CmdPlayerReady }
func (*PlayerReady) Validate() error { return nil }

type StartGame struct {
	Fast bool `json:"fast"`
}

func (*StartGame) Name() string    { return CmdStartGame }
func (*StartGame) Validate() error { return nil }

type GameAction struct {
	Action domain.Action `json:"action"`
}

func (*GameAction) Name() string { return CmdGameAction }

func (c *GameAction) Validate() error {
	if !c.Action.Valid() {
		return fmt.Errorf("%w: action %q", ErrBadPayload, c.Action)
	}
	return nil
}

type ChatMessage struct {
	Message string `json:"message"`
}

func (*ChatMessage) Name() string { return CmdChatMessage }

func (c *ChatMessage) Validate() error {
	c.Message = strings.TrimSpace(c.Message)
	if c.Message == "" {
		return fmt.Errorf("%w: empty message", ErrBadPayload)
	}
	return nil
}

type (
	RestartGame struct{}
	GetRoomInfo struct{}
	Heartbeat   struct{}
	QuitGame    struct{}
)

func (*RestartGame) Name() string    { return CmdRestartGame }
func (*RestartGame) Validate() error { return nil }
func (*GetRoomInfo) Name() string    { return CmdGetRoomInfo }
func (*GetRoomInfo) Validate() error { return nil }
func (*Heartbeat) Name() string      { return CmdHeartbeat }
func (*Heartbeat) Validate() error   { return nil }
func (*QuitGame) Name() string       { return CmdQuitGame }
func (*QuitGame) Validate() error    { return nil }

func newCommand(typ string) (Command, bool) {
	switch typ {
	case CmdJoinRoom:
		return &JoinRoom{}, true
	case CmdPlayerReady:
		return &PlayerReady{}, true
	case CmdStartGame:
		return &StartGame{}, true
	case CmdGameAction:
		return &GameAction{}, true
	case CmdRestartGame:
		return &RestartGame{}, true
	case CmdGetRoomInfo:
		return &GetRoomInfo{}, true
	case CmdHeartbeat:
		return &Heartbeat{}, true
	case CmdRequestReconnection:
		return &RequestReconnection{}, true
	case CmdChatMessage:
		return &ChatMessage{}, true
	case CmdQuitGame:
		return &QuitGame{}, true
	}
	return nil, false
}

// Decoder turns raw frames into commands. Unknown fields are rejected.
type Decoder struct {
	MaxChatRunes int
}

func (d Decoder) Decode(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	cmd, ok := newCommand(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(env.Data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cmd); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
		}
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if chat, ok := cmd.(*ChatMessage); ok {
		chat.Message = truncateRunes(chat.Message, d.maxChat())
	}
	return cmd, nil
}

func (d Decoder) maxChat() int {
	if d.MaxChatRunes <= 0 {
		return DefaultMaxChatRunes
	}
	return d.MaxChatRunes
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
