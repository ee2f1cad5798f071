package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/oggyb/venue-match/internal/broadcast"
	svcErr "github.com/oggyb/venue-match/internal/errors"
	"github.com/oggyb/venue-match/internal/metrics"
)

type CloseReason string

const (
	ReasonWriteError CloseReason = "write_error"
	ReasonPingError  CloseReason = "ping_error"
	ReasonReadError  CloseReason = "read_error"
	ReasonShutdown   CloseReason = "server_shutdown"
	ReasonBufferFull CloseReason = "buffer_full"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 * 1024
)

// Limits bound one socket's inbound event rate and outbound queue.
type Limits struct {
	EventsPerSecond float64
	EventBurst      int
	SendBuffer      int
}

// Client is one authenticated WebSocket connection. It implements
// broadcast.Socket for the services.
type Client struct {
	userID  string
	conn    *websocket.Conn
	hub     *Hub
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.Mutex
	session *broadcast.VenueSession

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection. conn may be nil in tests that
// only observe the outbound queue.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, limits Limits, log zerolog.Logger) *Client {
	if limits.SendBuffer <= 0 {
		limits.SendBuffer = 256
	}
	if limits.EventBurst <= 0 {
		limits.EventBurst = 1
	}
	return &Client{
		userID:  userID,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, limits.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(limits.EventsPerSecond), limits.EventBurst),
		log:     log.With().Str("user", userID).Logger(),
	}
}

func (c *Client) UserID() string { return c.userID }

// Emit sends to this socket only.
func (c *Client) Emit(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode frame failed")
		return
	}
	c.enqueue(frame)
}

func (c *Client) Join(room broadcast.Room)  { c.hub.Join(c, room) }
func (c *Client) Leave(room broadcast.Room) { c.hub.Leave(c, room) }

func (c *Client) VenueSession() (broadcast.VenueSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return broadcast.VenueSession{}, false
	}
	return *c.session, true
}

func (c *Client) SetVenueSession(s *broadcast.VenueSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// enqueue never blocks: a socket that cannot keep up is dropped.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.Close(ReasonBufferFull, nil)
		return false
	}
}

// Close terminates the connection once. The send channel is left open so
// concurrent emitters never panic.
func (c *Client) Close(r CloseReason, err error) {
	c.closeOnce.Do(func() {
		ev := c.log.Debug()
		if err != nil {
			ev = c.log.Warn().Err(err)
		}
		ev.Str("reason", string(r)).Msg("ws connection closed")
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Done is closed when the connection is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump drains the send queue to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close(ReasonWriteError, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(ReasonPingError, err)
				return
			}
		}
	}
}

// ReadPump reads frames until the connection fails, handing each one to
// handle in order. Events beyond the socket's rate are answered with
// RATE_LIMITED and dropped.
func (c *Client) ReadPump(ctx context.Context, handle func(ctx context.Context, c *Client, raw []byte)) {
	var readErr error
	defer func() { c.Close(ReasonReadError, readErr) }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				readErr = err
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.EventsTotal.WithLabelValues("any", "rate_limited").Inc()
			c.Emit(broadcast.EventError, svcErr.Payload(svcErr.Policy(svcErr.CodeRateLimited, "slow down")))
			continue
		}
		handle(ctx, c, raw)
	}
}
