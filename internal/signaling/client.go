package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536 // SDP offers are large.
)

var errClosed = errors.New("connection closed")

// Client is one live signaling connection for one user.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	UserID   int64

	mu     sync.Mutex
	closed bool
	send   chan []byte

	onClose func()
	log     zerolog.Logger
}

func NewClient(registry *Registry, conn *websocket.Conn, userID int64, onClose func(), log zerolog.Logger) *Client {
	return &Client{
		registry: registry,
		conn:     conn,
		UserID:   userID,
		send:     make(chan []byte, 64),
		onClose:  onClose,
		log:      log,
	}
}

// Deliver queues a relayed payload for this connection. Safe to call
// concurrently with teardown; a closed or saturated connection reports
// an error instead of panicking, and the registry treats that as
// not-connected.
func (c *Client) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// envelope is the only part of an inbound payload the relay interprets.
type envelope struct {
	RecipientID int64 `json:"recipient_id"`
}

// route forwards one inbound payload to its addressed recipient. A
// payload without a recipient is dropped; the connection stays up either
// way.
func (c *Client) route(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.RecipientID == 0 {
		c.log.Warn().Int64("user_id", c.UserID).Msg("signaling payload without recipient dropped")
		return
	}
	if !c.registry.Relay(env.RecipientID, payload) {
		c.log.Debug().
			Int64("user_id", c.UserID).
			Int64("recipient_id", env.RecipientID).
			Msg("recipient not connected")
	}
}

// ReadPump pumps inbound payloads through the relay until the connection
// ends, then unregisters exactly once.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c.UserID, c)
		c.shutdown()
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("signaling connection error")
			}
			break
		}
		c.route(payload)
	}
}

// WritePump forwards relayed payloads to the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
