package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, sid core.SessionID, c *WsConn) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
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

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(sid, c, data)
		}
	}
}

// handleFrame dispatches one decoded envelope. A malformed or unknown
// frame is answered with an error event, never a dropped connection.
func (ctl *Controller) handleFrame(sid core.SessionID, c *WsConn, data []byte) {
	event, err := protocol.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json frame")
		ctl.sendError(c, "malformed frame")
		return
	}

	switch event {
	case protocol.EventAuthenticate:
		ctl.handleAuthenticate(sid, c, data)
	case protocol.EventJoinRoom:
		ctl.handleJoin(sid, c, data)
	case protocol.EventLeaveRoom:
		ctl.handleLeave(sid, c, data)
	case protocol.EventCursorMove:
		ctl.handleCursorMove(sid, c, data)
	case protocol.EventCursorLeave:
		ctl.handleCursorLeave(sid, c, data)
	case protocol.EventActivity:
		ctl.handleActivity(sid, c, data)
	case protocol.EventStateUpdate:
		ctl.handleStateUpdate(sid, c, data)
	case protocol.EventStateReplace:
		ctl.handleStateReplace(sid, c, data)
	case protocol.EventChatMessage:
		ctl.handleChat(sid, c, data)
	case protocol.EventTypingStart:
		ctl.handleTypingStart(sid, c, data)
	case protocol.EventTypingStop:
		ctl.handleTypingStop(sid, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(event)).Msg("unknown event")
		ctl.sendError(c, "unknown event type")
	}
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, protocol.ErrorEvent{Type: protocol.EventError, Message: msg})
}

// replyErr maps an operation error to the error side-channel.
func (ctl *Controller) replyErr(c *WsConn, err error) {
	if err == nil {
		return
	}
	ctl.sendError(c, err.Error())
}
