package signal

import (
	"errors"

	"github.com/dkeye/Tetris/internal/core"
)

func (ctl *SignalWSController) handleHeartbeat(sid core.SessionID) {
	ctl.Orch.Heartbeat(sid)
}

func (ctl *SignalWSController) replyError(conn *WsSignalConn, err error) {
	ctl.sendEvent(conn, ErrorEvent(err))
}

// ErrorEvent picks the event type a client expects for err.
func ErrorEvent(err error) core.Event {
	var (
		rejected *core.RejectedJoinError
		reconn   *core.ReconnectionError
	)
	typ := core.EvError
	switch {
	case errors.As(err, &rejected):
		typ = core.EvJoinRoomError
	case errors.As(err, &reconn):
		typ = core.EvReconnectionError
	}
	ev := core.ErrorEvent(typ, err)
	switch {
	case errors.Is(err, ErrUnknownCommand):
		ev.Data = core.ErrorPayload{Message: err.Error(), Code: "UNKNOWN_COMMAND"}
	case errors.Is(err, ErrBadPayload):
		ev.Data = core.ErrorPayload{Message: err.Error(), Code: "BAD_PAYLOAD"}
	}
	return ev
}
