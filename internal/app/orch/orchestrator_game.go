package orch

import (
	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
)

func (o *Orchestrator) SetReady(sid core.SessionID, ready bool) error {
	room, pid, err := o.seat("player-ready", sid)
	if err != nil {
		return err
	}
	out, err := o.Rooms.SetReady(room, pid, ready)
	if err != nil {
		return err
	}
	o.Publish(room,
		core.Event{Type: core.EvPlayerReadyChanged, Data: core.ReadyChangedPayload{PlayerID: pid, Ready: out.Ready, CanStart: out.CanStart}},
		core.Event{Type: core.EvRoomUpdate, Data: out.Room},
	)
	return nil
}

func (o *Orchestrator) Start(sid core.SessionID, fast bool) error {
	roomName, pid, err := o.seat("start-game", sid)
	if err != nil {
		return err
	}
	view, err := o.Rooms.Start(roomName, pid, fast)
	if err != nil {
		return err
	}
	events := []core.Event{{Type: core.EvGameStarted, Data: core.GameStartedPayload{GameState: view, FastMode: fast}}}
	if room, ok := o.Rooms.Room(roomName); ok {
		events = append(events, core.Event{Type: core.EvRoomUpdate, Data: room.Snapshot()})
	}
	o.Publish(roomName, events...)
	return nil
}

func (o *Orchestrator) Act(sid core.SessionID, action domain.Action) error {
	room, pid, err := o.seat("game-action", sid)
	if err != nil {
		return err
	}
	view, err := o.Rooms.Apply(room, pid, action)
	if err != nil {
		return err
	}
	o.Publish(room, core.Event{Type: core.EvGameStateUpdate, Data: view})
	return nil
}

// Heartbeat refreshes lastSeen when seated and always acknowledges.
func (o *Orchestrator) Heartbeat(sid core.SessionID) {
	if room, pid, ok := o.Registry.RoomOf(sid); ok {
		_ = o.Rooms.Heartbeat(room, pid)
	}
	conn, _ := o.Registry.Conn(sid)
	o.Send(conn, core.Event{Type: core.EvHeartbeatAck, Data: core.HeartbeatPayload{Timestamp: o.now()}})
}

// Chat relays an already validated message to the whole room.
func (o *Orchestrator) Chat(sid core.SessionID, message string) error {
	roomName, pid, err := o.seat("chat-message", sid)
	if err != nil {
		return err
	}
	room, ok := o.Rooms.Room(roomName)
	if !ok {
		return &core.InvalidActionError{Op: "chat-message", Err: core.ErrRoomNotFound}
	}
	p, ok := room.Player(pid)
	if !ok {
		return &core.InvalidActionError{Op: "chat-message", Err: core.ErrPlayerNotFound}
	}
	o.Publish(roomName, core.Event{Type: core.EvChatMessage, Data: core.ChatPayload{
		PlayerID:   pid,
		PlayerName: p.Name,
		Message:    message,
		Timestamp:  o.now(),
	}})
	return nil
}
