package signal

import (
	"encoding/json"

	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

func (ctl *Controller) handleStateUpdate(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.StateUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad state-update payload")
		return
	}
	if p.Update.Path == "" {
		ctl.sendError(c, "update path required")
		return
	}
	if err := ctl.Orch.StateUpdate(sid, p.RoomID, p.Update); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *Controller) handleStateReplace(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.StateReplace
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad state-replace payload")
		return
	}
	if p.State == nil {
		ctl.sendError(c, "state required")
		return
	}
	if err := ctl.Orch.StateReplace(sid, p.RoomID, p.State); err != nil {
		ctl.replyErr(c, err)
	}
}
