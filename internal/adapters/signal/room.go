package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

func (ctl *Controller) handleJoin(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad join-room payload")
		return
	}
	if p.RoomID == "" {
		ctl.sendError(c, "roomId required")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomID)).Msg("join-room")
	if err := ctl.Orch.Join(sid, p.RoomID, p.RoomName, p.RoomType); err != nil {
		ctl.replyErr(c, err)
	}
}

// handleLeave leaves one room, or all of them when roomId is omitted.
// The connection stays open either way.
func (ctl *Controller) handleLeave(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.LeaveRoom
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad leave-room payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.RoomID)).Msg("leave-room")
	if err := ctl.Orch.Leave(sid, p.RoomID); err != nil {
		ctl.replyErr(c, err)
	}
}
