package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

// handleAuthenticate verifies the identity token and binds the user
// to the session. With a verifier configured the token is the only
// accepted identity; the inline user is a secretless dev-mode escape
// hatch. The reply always carries success so the client state machine
// can settle either way.
func (ctl *Controller) handleAuthenticate(sid core.SessionID, c *WsConn, data []byte) {
	var p protocol.Authenticate
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.authReply(c, false, "bad authenticate payload")
		return
	}

	var user *domain.User
	switch {
	case ctl.Verifier != nil && p.Token != "":
		u, err := ctl.Verifier.VerifyToken(p.Token)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("token rejected")
			ctl.authReply(c, false, "authentication rejected")
			return
		}
		user = u
	case ctl.Verifier == nil && p.User != nil:
		u, err := domain.NewUser(p.User.ID, p.User.Name, p.User.AvatarURL)
		if err != nil {
			ctl.authReply(c, false, err.Error())
			return
		}
		user = u
	default:
		ctl.authReply(c, false, "missing credentials")
		return
	}

	if !ctl.Orch.Registry.Authenticate(sid, user) {
		ctl.authReply(c, false, "unknown session")
		return
	}
	ctl.authReply(c, true, "")
}

func (ctl *Controller) authReply(c *WsConn, success bool, msg string) {
	ctl.sendJSON(c, protocol.Authenticated{
		Type:    protocol.EventAuthenticated,
		Success: success,
		Message: msg,
	})
}
