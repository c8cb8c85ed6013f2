package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Tetris/internal/app/orch"
	"github.com/dkeye/Tetris/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Options tune a controller. Zero values fall back to defaults.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	MaxChatRunes int
	ChatLimit    int
	ChatInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Chat    *RoomRateLimiter
	Decoder Decoder

	readLimit  int64
	pingPeriod time.Duration
	sendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.ChatLimit <= 0 {
		opts.ChatLimit = 5
	}
	if opts.ChatInterval <= 0 {
		opts.ChatInterval = 5 * time.Second
	}
	return &SignalWSController{
		Orch:       o,
		Chat:       NewRoomRateLimiter(opts.ChatLimit, opts.ChatInterval),
		Decoder:    Decoder{MaxChatRunes: opts.MaxChatRunes},
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
		sendBuffer: opts.SendBuffer,
	}
}

// pongWait is how long a connection may stay silent, pings included.
func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.pingPeriod * 10 / 9
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. Every connection
// gets its own session id; the client cookie is only logged.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
