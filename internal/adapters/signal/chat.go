package signal

import (
	"encoding/json"

	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

func (ctl *Controller) handleChat(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.ChatSend
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad chat-message payload")
		return
	}
	if err := ctl.Orch.SendMessage(sid, p.RoomID, p.Content); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *Controller) handleTypingStart(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.Typing
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad typing-start payload")
		return
	}
	if err := ctl.Orch.TypingStart(sid, p.RoomID); err != nil {
		ctl.replyErr(c, err)
	}
}

func (ctl *Controller) handleTypingStop(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.Typing
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad typing-stop payload")
		return
	}
	if err := ctl.Orch.TypingStop(sid, p.RoomID); err != nil {
		ctl.replyErr(c, err)
	}
}
