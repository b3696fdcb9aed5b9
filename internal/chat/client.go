package chat

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

// Client is one live connection on the chat channel, bound at admission
// to a (chat, user) pair. The hub owns its room membership and is the
// only closer of send.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	UserID   int64
	Username string
	ChatID   int64

	// onClose runs once when the connection ends, after the hub has been
	// told to drop it.
	onClose func()
	log     zerolog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username string, chatID int64, onClose func(), log zerolog.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		UserID:   userID,
		Username: username,
		ChatID:   chatID,
		onClose:  onClose,
		log:      log,
	}
}

// detach hands the client back to the hub. Once the hub has stopped it
// is no longer reading, so teardown must not wait on it.
func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// dispatch forwards an inbound frame to the hub, dropping it if the hub
// has already stopped.
func (c *Client) dispatch(frame []byte) {
	select {
	case c.hub.actions <- inbound{client: c, frame: frame}:
	case <-c.hub.done:
	}
}

// ReadPump pumps frames from the websocket connection into the hub.
// Whatever ends the connection, teardown happens exactly once here.
func (c *Client) ReadPump() {
	defer func() {
		c.detach()
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
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("chat connection error")
			}
			break
		}
		c.dispatch(frame)
	}
}

// WritePump pumps events from the hub to the websocket connection.
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
				// The hub dropped us.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain queued events into the same write to save syscalls.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
