package signal

import (
	"context"
	"time"

	"github.com/dkeye/Tetris/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(sid)
	}()

	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
			ctl.handleSignal(sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	cmd, err := ctl.Decoder.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("rejected frame")
		ctl.replyError(c, err)
		return
	}

	switch cmd := cmd.(type) {
	case *JoinRoom:
		ctl.handleJoin(sid, c, cmd)
	case *RequestReconnection:
		ctl.handleReconnect(sid, c, cmd)
	case *QuitGame:
		ctl.handleLeave(sid, c)
	case *RestartGame:
		ctl.handleRestart(sid, c)
	case *GetRoomInfo:
		ctl.handleRoomInfo(sid, c)
	case *PlayerReady:
		ctl.handleReady(sid, c, cmd)
	case *StartGame:
		ctl.handleStart(sid, c, cmd)
	case *GameAction:
		ctl.handleAction(sid, c, cmd)
	case *ChatMessage:
		ctl.handleChat(sid, c, cmd)
	case *Heartbeat:
		ctl.handleHeartbeat(sid)
	default:
		log.Warn().Str("module", "signal").Str("type", cmd.Name()).Msg("unhandled command")
	}
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, ev core.Event) {
	ctl.Orch.Send(c, ev)
}
