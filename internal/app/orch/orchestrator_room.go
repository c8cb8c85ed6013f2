package orch

import (
	"errors"

	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join seats the connection of sid in a room. A connection already seated
// elsewhere leaves its old room first.
func (o *Orchestrator) Join(sid core.SessionID, roomName, playerName, token string) error {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return &core.RejectedJoinError{Room: domain.RoomName(roomName), Player: playerName, Err: core.ErrNotInRoom}
	}
	if from, pid, ok := o.Registry.RoomOf(sid); ok {
		if room, err := domain.NormalizeRoomName(roomName); err == nil && room == from {
			if name, err := domain.NormalizePlayerName(playerName); err == nil && domain.NewPlayerID(room, name) == pid {
				return &core.RejectedJoinError{Room: room, Player: name, Err: core.ErrAlreadyInRoom}
			}
		}
		if err := o.Leave(sid); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("leave before join")
		}
	}

	res, err := o.Rooms.Join(roomName, playerName, token, conn)
	if err != nil {
		return err
	}
	o.Registry.Bind(sid, res.RoomName, res.PlayerID)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(res.RoomName)).Bool("reconnected", res.Reconnected).Msg("added to room")
	o.Send(conn, core.Event{Type: core.EvJoinRoomSuccess, Data: joinPayload(res)})
	o.announceArrival(res)
	return nil
}

// Reconnect is the explicit rejoin command; only a tracked disconnect can use it.
func (o *Orchestrator) Reconnect(sid core.SessionID, roomName, playerName, token string) error {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return &core.ReconnectionError{Room: domain.RoomName(roomName), Player: playerName, Err: core.ErrNotInRoom}
	}
	if _, _, ok := o.Registry.RoomOf(sid); ok {
		if err := o.Leave(sid); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("leave before reconnect")
		}
	}
	res, err := o.Rooms.Reconnect(roomName, playerName, token, conn)
	if err != nil {
		return err
	}
	o.Registry.Bind(sid, res.RoomName, res.PlayerID)
	o.Send(conn, core.Event{Type: core.EvReconnectionSuccess, Data: joinPayload(res)})
	o.announceArrival(res)
	return nil
}

func joinPayload(res app.JoinResult) core.JoinPayload {
	return core.JoinPayload{
		Player:            res.Player,
		PlayerID:          res.PlayerID,
		ReconnectionToken: res.Token,
		Room:              res.Room,
		GameState:         res.Game,
		Result:            res.Result,
		Reconnected:       res.Reconnected,
	}
}

func (o *Orchestrator) announceArrival(res app.JoinResult) {
	events := make([]core.Event, 0, 3)
	if res.Reconnected {
		events = append(events, core.Event{Type: core.EvPlayerReconnected, Data: core.PlayerPayload{Player: res.Player}})
	} else {
		events = append(events, core.Event{Type: core.EvPlayerJoined, Data: core.PlayerPayload{Player: res.Player}})
	}
	if res.HostChanged {
		events = append(events, core.Event{Type: core.EvHostChanged, Data: core.HostChangedPayload{NewHost: res.PlayerID}})
	}
	events = append(events, core.Event{Type: core.EvRoomUpdate, Data: res.Room})
	o.Publish(res.RoomName, events...)
}

// Leave is an explicit quit. The connection stays open.
func (o *Orchestrator) Leave(sid core.SessionID) error {
	room, pid, err := o.seat("quit-game", sid)
	if err != nil {
		return err
	}
	o.Registry.RemoveRoom(sid)
	out, err := o.Rooms.Disconnect(room, pid, nil)
	if err != nil {
		return err
	}
	o.announceDeparture(room, out, true)
	return nil
}

// OnDisconnect is called by the transport once a connection is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	defer o.Registry.Unbind(sid)
	room, pid, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	conn, _ := o.Registry.Conn(sid)
	out, err := o.Rooms.Disconnect(room, pid, conn)
	if errors.Is(err, core.ErrStaleConnection) || errors.Is(err, core.ErrRoomNotFound) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("disconnect")
		return
	}
	o.announceDeparture(room, out, false)
}

func (o *Orchestrator) announceDeparture(room domain.RoomName, out core.DisconnectOutcome, quit bool) {
	var ended *core.GameResult
	if out.GameOver {
		if res, first, _ := o.Rooms.FinalizeGame(room, out.Game, ""); first {
			ended = res
		}
	}
	if out.Empty {
		return
	}
	events := make([]core.Event, 0, 5)
	switch {
	case quit || out.Removed:
		events = append(events, core.Event{Type: core.EvPlayerLeft, Data: core.DeparturePayload{Player: out.Player}})
	default:
		events = append(events, core.Event{Type: core.EvPlayerDisconnected, Data: core.DeparturePayload{Player: out.Player, Reason: "connection lost"}})
	}
	if out.HostChanged {
		events = append(events, core.Event{Type: core.EvHostChanged, Data: core.HostChangedPayload{
			PreviousHost: out.PreviousHost,
			NewHost:      out.NewHost,
		}})
	}
	if out.AllDisconnected {
		events = append(events, core.Event{Type: core.EvGamePaused, Data: core.PausedPayload{Reason: "all players disconnected"}})
	}
	snapshot := out.Room
	if ended != nil {
		events = append(events, core.Event{Type: core.EvGameEnded, Data: ended})
		if r, ok := o.Rooms.Room(room); ok {
			snapshot = r.Snapshot()
		}
	}
	events = append(events, core.Event{Type: core.EvRoomUpdate, Data: snapshot})
	o.Publish(room, events...)
}

// Restart finishes a running game if needed and brings the room back to WAITING.
func (o *Orchestrator) Restart(sid core.SessionID) error {
	room, pid, err := o.seat("restart-game", sid)
	if err != nil {
		return err
	}
	out, err := o.Rooms.Reset(room, pid)
	if err != nil {
		return err
	}
	events := make([]core.Event, 0, 3)
	if out.Finished != nil {
		events = append(events, core.Event{Type: core.EvGameEnded, Data: out.Finished})
	}
	events = append(events,
		core.Event{Type: core.EvGameReset, Data: core.RoomInfoPayload{Room: out.Room}},
		core.Event{Type: core.EvRoomUpdate, Data: out.Room},
	)
	o.Publish(room, events...)
	return nil
}

// RoomInfo replies with the authoritative room and game state.
func (o *Orchestrator) RoomInfo(sid core.SessionID) error {
	roomName, _, err := o.seat("get-room-info", sid)
	if err != nil {
		return err
	}
	room, ok := o.Rooms.Room(roomName)
	if !ok {
		return &core.InvalidActionError{Op: "get-room-info", Err: core.ErrRoomNotFound}
	}
	conn, _ := o.Registry.Conn(sid)
	o.Send(conn, core.Event{Type: core.EvRoomInfo, Data: core.RoomInfoPayload{
		Room:      room.Snapshot(),
		GameState: room.Game(),
		Result:    room.Result(),
	}})
	return nil
}
