package signal

import (
	"encoding/json"

	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

// Cursor traffic is best effort: a bad or late frame is answered or
// dropped, never retried.
func (ctl *Controller) handleCursorMove(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.CursorMove
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad cursor-move payload")
		return
	}
	if err := ctl.Orch.CursorMove(sid, p.RoomID, p.X, p.Y); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *Controller) handleCursorLeave(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.CursorLeave
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad cursor-leave payload")
		return
	}
	if err := ctl.Orch.CursorLeave(sid, p.RoomID); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *Controller) handleActivity(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.Activity
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad activity payload")
		return
	}
	if !p.Activity.Valid() {
		ctl.sendError(c, "unknown activity type")
		return
	}
	if err := ctl.Orch.Activity(sid, p.RoomID, p.Activity); err != nil {
		ctl.replyErr(c, err)
	}
}
