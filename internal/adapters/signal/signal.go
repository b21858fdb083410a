// Package signal is the websocket transport adapter: it owns the
// connection lifecycle and decodes the event envelope, then hands
// intents to the orchestrator. It renders nothing and retries
// nothing; errors go back to the caller as error events.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/internal/app"
	"github.com/thabo-nyembe/collabsync/internal/auth"
	"github.com/thabo-nyembe/collabsync/internal/core"
)

const sendBuffer = 64

type Controller struct {
	Orch       *app.Orchestrator
	Verifier   *auth.Verifier
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(orch *app.Orchestrator, verifier *auth.Verifier, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{Orch: orch, Verifier: verifier, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

// WsConn wraps one client connection. TrySend never blocks: a full
// buffer drops the frame and reports backpressure, so a slow reader
// cannot stall a room broadcast.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame
	once sync.Once
}

func (c *WsConn) TrySend(f core.Frame) error {
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *WsConn) Close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the session until the
// connection drops. Each connection is one transport session; a
// reconnecting client gets a fresh session and must re-join its rooms.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new ws connection")

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sid, conn, cancel)

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, sid, conn)
}
