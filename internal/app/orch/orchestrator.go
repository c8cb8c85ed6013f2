package orch

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/dkeye/Tetris/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator turns transport commands into RoomManager calls and fans the
// resulting events out. It never holds a room lock while sending.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy

	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Encode renders an event in the wire envelope.
func Encode(ev core.Event) (core.Frame, error) {
	return json.Marshal(ev)
}

// Send delivers one event to a single connection.
func (o *Orchestrator) Send(conn core.SignalConnection, ev core.Event) {
	if conn == nil {
		return
	}
	frame, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", ev.Type).Msg("encode event")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("type", ev.Type).Msg("direct send failed")
	}
}

// Publish implements core.Notifier.
func (o *Orchestrator) Publish(roomName domain.RoomName, events ...core.Event) {
	room, ok := o.Rooms.Room(roomName)
	if !ok {
		return
	}
	recipients := room.Recipients()
	for _, ev := range events {
		frame, err := Encode(ev)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("type", ev.Type).Msg("encode event")
			continue
		}
		sent := 0
		for _, rc := range recipients {
			if err := rc.Conn.TrySend(frame); err != nil {
				o.onBackPressure(roomName, rc, ev.Type)
				continue
			}
			if o.Policy != nil {
				o.Policy.OnDelivered(roomName, rc.PlayerID)
			}
			sent++
		}
		log.Debug().Str("module", "app.orch").Str("room", string(roomName)).Str("type", ev.Type).Int("sent_to", sent).Msg("broadcast result")
	}
}

func (o *Orchestrator) onBackPressure(roomName domain.RoomName, rc core.Recipient, event string) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(roomName, rc.PlayerID, event) {
	case app.KickMember:
		if sid, ok := o.Registry.SessionOf(roomName, rc.PlayerID); ok {
			log.Warn().Str("module", "app.orch").Str("player", string(rc.PlayerID)).Msg("kicking slow client")
			o.KickBySID(sid)
		}
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// KickBySID closes a connection; its read pump then reports the disconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) seat(op string, sid core.SessionID) (domain.RoomName, domain.PlayerID, error) {
	room, pid, ok := o.Registry.RoomOf(sid)
	if !ok {
		return "", "", &core.InvalidActionError{Op: op, Err: core.ErrNotInRoom}
	}
	return room, pid, nil
}
