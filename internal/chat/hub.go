package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
)

const imagePlaceholder = "[image]"

// Store is the slice of the persistence gateway the hub drives.
type Store interface {
	AppendMessage(ctx context.Context, chatID, senderID int64, text, image string, replyTo *int64) (*Message, error)
	EditMessage(ctx context.Context, chatID, messageID, senderID int64, text string) (*Message, error)
	ResolveMessage(ctx context.Context, messageID int64) (*Message, error)
}

// Notifier is invoked after a message has been persisted and broadcast.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, chatID, senderID int64, senderName, body string)
}

type inbound struct {
	client *Client
	frame  []byte
}

// Hub owns all room state. A single goroutine (Run) processes
// registrations, departures and client actions serially, so rooms need no
// locking and broadcast order matches commit order within a chat.
type Hub struct {
	rooms map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	actions    chan inbound
	done       chan struct{}

	store    Store
	notifier Notifier
	log      zerolog.Logger
}

func NewHub(store Store, notifier Notifier, log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		actions:    make(chan inbound),
		done:       make(chan struct{}),
		store:      store,
		notifier:   notifier,
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Register admits a client into its chat's room. After shutdown the
// client is refused and closed instead of blocking.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Run processes hub traffic until ctx is cancelled, then closes every
// remaining connection. The done channel lets client teardown proceed
// without the hub once Run has returned.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.join(c)
		case c := <-h.unregister:
			h.leave(c)
		case in := <-h.actions:
			h.handle(ctx, in.client, in.frame)
		}
	}
}

func (h *Hub) join(c *Client) {
	room := h.rooms[c.ChatID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[c.ChatID] = room
	}
	room[c] = true
}

// leave is idempotent: a client already gone is a no-op.
func (h *Hub) leave(c *Client) {
	room, ok := h.rooms[c.ChatID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.ChatID)
	}
}

func (h *Hub) closeAll() {
	for chatID, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, chatID)
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, frame []byte) {
	var action Action
	if err := json.Unmarshal(frame, &action); err != nil {
		h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("undecodable frame dropped")
		return
	}

	switch action.Action {
	case ActionSend:
		var p SendPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			h.log.Warn().Err(err).Msg("bad send payload")
			return
		}
		h.handleSend(ctx, c, p.Text, "", p.ReplyToID)

	case ActionUpload:
		var p UploadPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			h.log.Warn().Err(err).Msg("bad upload payload")
			return
		}
		if p.ImageURL == "" {
			return
		}
		h.handleSend(ctx, c, imagePlaceholder, p.ImageURL, nil)

	case ActionEdit:
		var p EditPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			h.log.Warn().Err(err).Msg("bad edit payload")
			return
		}
		h.handleEdit(ctx, c, p.MessageID, p.Text)

	default:
		h.log.Debug().Str("action", action.Action).Msg("unknown action ignored")
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, text, image string, replyTo *int64) {
	if text == "" && image == "" {
		return
	}

	reply := h.resolveReply(ctx, c.ChatID, replyTo)
	if reply == nil {
		replyTo = nil
	}

	msg, err := h.store.AppendMessage(ctx, c.ChatID, c.UserID, text, image, replyTo)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", c.ChatID).Msg("append message failed")
		h.errorTo(c, "message could not be saved")
		return
	}
	msg.SenderUsername = c.Username

	h.broadcast(c.ChatID, Event{Action: EventNewMessage, Message: projection(msg, reply)})

	if h.notifier != nil {
		body := msg.Text
		if msg.Image != "" {
			body = imagePlaceholder
		}
		go h.notifier.Notify(context.WithoutCancel(ctx), msg.ChatID, msg.SenderID, msg.SenderUsername, body)
	}
}

func (h *Hub) handleEdit(ctx context.Context, c *Client, messageID int64, text string) {
	if text == "" {
		return
	}

	// The update is constrained to the connection's chat so a rejected
	// edit never commits anything.
	msg, err := h.store.EditMessage(ctx, c.ChatID, messageID, c.UserID, text)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotOwner):
			// Silently dropped for everyone but the editor.
			h.errorTo(c, "edit rejected")
		default:
			h.log.Error().Err(err).Int64("message_id", messageID).Msg("edit message failed")
			h.errorTo(c, "message could not be saved")
		}
		return
	}

	reply := h.resolveReply(ctx, msg.ChatID, msg.ReplyToID)
	h.broadcast(c.ChatID, Event{Action: EventEditMessage, Message: projection(msg, reply)})
}

// resolveReply fetches reply context, degrading to nil when the reference
// is missing or points outside the chat.
func (h *Hub) resolveReply(ctx context.Context, chatID int64, replyTo *int64) *Message {
	if replyTo == nil {
		return nil
	}
	reply, err := h.store.ResolveMessage(ctx, *replyTo)
	if err != nil {
		h.log.Warn().Err(err).Int64("reply_to_id", *replyTo).Msg("reply reference dropped")
		return nil
	}
	if reply.ChatID != chatID {
		h.log.Warn().Int64("reply_to_id", *replyTo).Msg("reply reference outside chat dropped")
		return nil
	}
	return reply
}

// broadcast delivers an event to every member of a room. A member whose
// send buffer is unavailable is removed so later broadcasts skip it; the
// rest still receive the event.
func (h *Hub) broadcast(chatID int64, evt Event) {
	room := h.rooms[chatID]
	if len(room) == 0 {
		return
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error().Err(err).Msg("encode event failed")
		return
	}

	for c := range room {
		select {
		case c.send <- payload:
		default:
			delete(room, c)
			close(c.send)
		}
	}
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}

// errorTo reports a failure to the originating connection only.
func (h *Hub) errorTo(c *Client, msg string) {
	payload, _ := json.Marshal(map[string]string{"action": EventError, "error": msg})
	select {
	case c.send <- payload:
	default:
	}
}
