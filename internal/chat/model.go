package chat

import (
	"encoding/json"
	"time"
)

type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ChatID         int64     `json:"chat_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	Image          string    `json:"image,omitempty"`
	ReplyToID      *int64    `json:"reply_to_id,omitempty"`
	Edited         bool      `json:"is_edited"`
	CreatedAt      time.Time `json:"created_at"`
}

// Member is a chat participant as the dispatcher needs it.
type Member struct {
	ID        int64
	Username  string
	PushToken string
}

// Action is the inbound client frame on the chat channel.
type Action struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type SendPayload struct {
	Text      string `json:"text"`
	ReplyToID *int64 `json:"reply_to_id,omitempty"`
}

type EditPayload struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type UploadPayload struct {
	ImageURL string `json:"image_url"`
}

// Projection is the client-facing shape of a persisted message.
type Projection struct {
	ID             int64     `json:"id"`
	ChatID         int64     `json:"chat_id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	Image          string    `json:"image,omitempty"`
	IsEdited       bool      `json:"is_edited"`
	ReplyToID      *int64    `json:"reply_to_id,omitempty"`
	ReplyText      string    `json:"reply_text,omitempty"`
	ReplySender    string    `json:"reply_sender,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is the outbound broadcast frame.
type Event struct {
	Action  string     `json:"action"`
	Message Projection `json:"message"`
}

const (
	ActionSend   = "send"
	ActionEdit   = "edit"
	ActionUpload = "upload"

	EventNewMessage  = "new_message"
	EventEditMessage = "edit_message"
	EventError       = "error"
)

func projection(m *Message, reply *Message) Projection {
	p := Projection{
		ID:             m.ID,
		ChatID:         m.ChatID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		Text:           m.Text,
		Image:          m.Image,
		IsEdited:       m.Edited,
		ReplyToID:      m.ReplyToID,
		CreatedAt:      m.CreatedAt,
	}
	if reply != nil {
		p.ReplyText = reply.Text
		p.ReplySender = reply.SenderUsername
	}
	return p
}
