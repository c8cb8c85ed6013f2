package signal

import (
	"github.com/dkeye/Tetris/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, p *JoinRoom) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomName).Str("player", p.PlayerName).Msg("join")
	if err := ctl.Orch.Join(sid, p.RoomName, p.PlayerName, p.ReconnectionToken); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleReconnect(sid core.SessionID, conn *WsSignalConn, p *RequestReconnection) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomName).Str("player", p.PlayerName).Msg("reconnect")
	if err := ctl.Orch.Reconnect(sid, p.RoomName, p.PlayerName, p.ReconnectionToken); err != nil {
		ctl.replyError(conn, err)
	}
}

// handleLeave quits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	if room, pid, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		ctl.Chat.Forget(room, pid)
	}
	if err := ctl.Orch.Leave(sid); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleRestart(sid core.SessionID, conn *WsSignalConn) {
	if err := ctl.Orch.Restart(sid); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleRoomInfo(sid core.SessionID, conn *WsSignalConn) {
	if err := ctl.Orch.RoomInfo(sid); err != nil {
		ctl.replyError(conn, err)
	}
}
