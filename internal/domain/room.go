package domain

// RoomState moves WAITING -> PLAYING -> FINISHED and back to WAITING only
// through an explicit reset.
type RoomState string

const (
	RoomWaiting  RoomState = "WAITING"
	RoomPlaying  RoomState = "PLAYING"
	RoomFinished RoomState = "FINISHED"
)

// DefaultMaxPlayers is the room capacity when the config does not set one.
const DefaultMaxPlayers = 5

// Action is a player input on the falling piece.
type Action string

const (
	ActionMoveLeft  Action = "move-left"
	ActionMoveRight Action = "move-right"
	ActionRotate    Action = "rotate"
	ActionSoftDrop  Action = "soft-drop"
	ActionHardDrop  Action = "hard-drop"
	ActionSkipPiece Action = "skip-piece"
)

func (a Action) Valid() bool {
	switch a {
	case ActionMoveLeft, ActionMoveRight, ActionRotate, ActionSoftDrop, ActionHardDrop, ActionSkipPiece:
		return true
	}
	return false
}
