package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/domain"
)

// liveness tracks when a channel last proved it was alive and whether a ping is
// outstanding. The read deadline is the earlier of the idle and pong deadlines.
type liveness struct {
	mu       sync.Mutex
	lastSeen time.Time
	pingedAt time.Time
	awaiting bool
}

func (l *liveness) touch(now time.Time) {
	l.mu.Lock()
	l.lastSeen = now
	l.awaiting = false
	l.mu.Unlock()
}

func (l *liveness) pinged(now time.Time) {
	l.mu.Lock()
	if !l.awaiting {
		l.pingedAt = now
		l.awaiting = true
	}
	l.mu.Unlock()
}

func (l *liveness) deadline(idle, pong time.Duration) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.lastSeen.Add(idle)
	if l.awaiting {
		if p := l.pingedAt.Add(pong); p.Before(d) {
			d = p
		}
	}
	return d
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal domain.Principal

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	alive      liveness
	writeFail  bool
}

func newClient(h *Hub, conn *websocket.Conn, principal domain.Principal) *client {
	c := &client{
		hub:        h,
		conn:       conn,
		principal:  principal,
		send:       make(chan []byte, h.cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.alive.touch(time.Now())
	return c
}

// enqueue never blocks. It reports false when the buffer is full or the channel is gone.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop consumes inbound frames until the connection fails or goes quiet. It
// returns the eviction reason.
func (c *client) readLoop() string {
	cfg := c.hub.cfg
	c.conn.SetPongHandler(func(string) error {
		c.alive.touch(time.Now())
		return c.conn.SetReadDeadline(c.alive.deadline(cfg.IdleTimeout, cfg.PongTimeout))
	})

	for {
		if err := c.conn.SetReadDeadline(c.alive.deadline(cfg.IdleTimeout, cfg.PongTimeout)); err != nil {
			return "write"
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return "closed"
			default:
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return "timeout"
			}
			return "closed"
		}
		c.alive.touch(time.Now())

		var in Envelope
		if err := json.Unmarshal(data, &in); err != nil {
			c.hub.log.Debug("ignoring malformed frame", "account", c.principal.AccountID, "error", err)
			continue
		}
		if in.Type == TypePing {
			// echo the client's timestamp so it can measure the round trip
			pong, _ := json.Marshal(Envelope{Type: TypePong, Timestamp: in.Timestamp})
			if !c.enqueue(pong) {
				return "slow"
			}
		}
	}
}

// writeLoop drains the send buffer and pings the peer every PingInterval.
func (c *client) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.evict(c, "write")
				return
			}
		case <-ticker.C:
			now := time.Now()
			c.alive.pinged(now)
			_ = c.conn.SetReadDeadline(c.alive.deadline(cfg.IdleTimeout, cfg.PongTimeout))
			if err := c.conn.WriteControl(websocket.PingMessage, nil, now.Add(cfg.WriteTimeout)); err != nil {
				c.hub.evict(c, "write")
				return
			}
		}
	}
}
