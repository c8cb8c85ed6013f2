package signal

import (
	"github.com/dkeye/Tetris/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleReady(sid core.SessionID, conn *WsSignalConn, p *PlayerReady) {
	if err := ctl.Orch.SetReady(sid, p.Ready); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleStart(sid core.SessionID, conn *WsSignalConn, p *StartGame) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("fast", p.Fast).Msg("start game")
	if err := ctl.Orch.Start(sid, p.Fast); err != nil {
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleAction(sid core.SessionID, conn *WsSignalConn, p *GameAction) {
	if err := ctl.Orch.Act(sid, p.Action); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("action", string(p.Action)).Msg("action rejected")
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleChat(sid core.SessionID, conn *WsSignalConn, p *ChatMessage) {
	room, pid, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.replyError(conn, &core.InvalidActionError{Op: CmdChatMessage, Err: core.ErrNotInRoom})
		return
	}
	if !ctl.Chat.Allow(room, pid) {
		ctl.replyError(conn, &core.InvalidActionError{Op: CmdChatMessage, Err: core.ErrChatRateLimited})
		return
	}
	if err := ctl.Orch.Chat(sid, p.Message); err != nil {
		ctl.replyError(conn, err)
	}
}
