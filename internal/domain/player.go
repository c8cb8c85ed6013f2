// Package domain contains the game vocabulary: ids, pieces and the pure board
// engine. Nothing here touches transport or time.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxPlayerNameLen = 24
	MaxRoomNameLen   = 36
)

var (
	ErrPlayerNameEmpty   = errors.New("player name empty")
	ErrPlayerNameTooLong = errors.New("player name too long")
	ErrRoomNameEmpty     = errors.New("room name empty")
	ErrRoomNameTooLong   = errors.New("room name too long")
)

type (
	RoomName string
	PlayerID string
)

// NewPlayerID derives the stable identity of a player inside a room. A player
// who comes back under the same name in the same room gets the same id, which
// is what reconnection-by-name relies on.
func NewPlayerID(room RoomName, playerName string) PlayerID {
	return PlayerID(string(room) + "_" + playerName)
}

// NormalizePlayerName trims and validates a display name.
func NormalizePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrPlayerNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLen {
		return "", ErrPlayerNameTooLong
	}
	return name, nil
}

// NormalizeRoomName trims and validates a room name.
func NormalizeRoomName(name string) (RoomName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(name), nil
}
