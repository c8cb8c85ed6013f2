package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Tetris/internal/domain"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrGameInProgress = errors.New("game already in progress")
	ErrNameTaken      = errors.New("player name already taken")
	ErrInvalidToken   = errors.New("invalid reconnection token")

	ErrRoomNotFound         = errors.New("room not found")
	ErrNoDisconnectedPlayer = errors.New("no disconnected player with that name")
	ErrReconnectionExpired  = errors.New("reconnection window expired")

	ErrNotInRoom       = errors.New("not in a room")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrNotHost         = errors.New("only the host can do that")
	ErrNotWaiting      = errors.New("room is not waiting for players")
	ErrStaleGame       = errors.New("game already replaced")
	ErrNotAllReady     = errors.New("not all players are ready")
	ErrRoomEmpty       = errors.New("room has no players")
	ErrGameNotRunning  = errors.New("game is not running")
	ErrGameOver        = errors.New("game is over")
	ErrNoActivePiece   = errors.New("no active piece")
	ErrUnknownAction   = errors.New("unknown action")
	ErrAlreadyInRoom   = errors.New("already in a room")
	ErrChatRateLimited = errors.New("too many messages")
)

// RejectedJoinError is returned by join attempts that leave every room untouched.
type RejectedJoinError struct {
	Room   domain.RoomName
	Player string
	Err    error
}

func (e *RejectedJoinError) Error() string {
	return fmt.Sprintf("join %q as %q rejected: %v", e.Room, e.Player, e.Err)
}

func (e *RejectedJoinError) Unwrap() error { return e.Err }

// ReconnectionError is returned by failed rejoin attempts. The pending
// reconnection record is never modified when one is returned.
type ReconnectionError struct {
	Room   domain.RoomName
	Player string
	Err    error
}

func (e *ReconnectionError) Error() string {
	return fmt.Sprintf("reconnect %q to %q: %v", e.Player, e.Room, e.Err)
}

func (e *ReconnectionError) Unwrap() error { return e.Err }

// InvalidActionError wraps a command that was refused by the room state.
type InvalidActionError struct {
	Op  string
	Err error
}

func (e *InvalidActionError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InvalidActionError) Unwrap() error { return e.Err }

func invalid(op string, err error) error { return &InvalidActionError{Op: op, Err: err} }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrRoomFull, "ROOM_FULL"},
	{ErrGameInProgress, "GAME_IN_PROGRESS"},
	{ErrNameTaken, "NAME_TAKEN"},
	{ErrInvalidToken, "INVALID_TOKEN"},
	{ErrRoomNotFound, "ROOM_NOT_FOUND"},
	{ErrNoDisconnectedPlayer, "PLAYER_NOT_FOUND"},
	{ErrPlayerNotFound, "PLAYER_NOT_FOUND"},
	{ErrReconnectionExpired, "RECONNECTION_EXPIRED"},
	{ErrNotInRoom, "NOT_IN_ROOM"},
	{ErrNotHost, "NOT_HOST"},
	{ErrNotWaiting, "NOT_WAITING"},
	{ErrNotAllReady, "NOT_ALL_READY"},
	{ErrRoomEmpty, "ROOM_EMPTY"},
	{ErrGameNotRunning, "GAME_NOT_RUNNING"},
	{ErrGameOver, "GAME_OVER"},
	{ErrNoActivePiece, "NO_ACTIVE_PIECE"},
	{ErrUnknownAction, "UNKNOWN_ACTION"},
	{ErrAlreadyInRoom, "ALREADY_IN_ROOM"},
	{ErrChatRateLimited, "RATE_LIMITED"},
	{domain.ErrPlayerNameEmpty, "INVALID_NAME"},
	{domain.ErrPlayerNameTooLong, "INVALID_NAME"},
	{domain.ErrRoomNameEmpty, "INVALID_ROOM"},
	{domain.ErrRoomNameTooLong, "INVALID_ROOM"},
}

// ErrorCode maps err to the short code sent to clients, "INTERNAL" when unknown.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// ErrStaleConnection is returned when a disconnect refers to a connection the
// player no longer uses.
var ErrStaleConnection = errors.New("connection was replaced")

// ErrRoomClosed is returned by a room that was garbage collected while the
// caller still held it.
var ErrRoomClosed = errors.New("room closed")
