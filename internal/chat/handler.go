package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-messenger/internal/middleware"
)

const defaultHistoryLimit = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dev mode; lock down per deployment.
	},
}

// Presence marks users online while they hold a live connection.
type Presence interface {
	Mark(userID int64)
	Clear(userID int64)
}

type Handler struct {
	hub      *Hub
	repo     *Repository
	presence Presence
	log      zerolog.Logger
}

func NewHandler(hub *Hub, repo *Repository, presence Presence, log zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		repo:     repo,
		presence: presence,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// ServeWs admits a chat channel connection. Membership of the (user,
// chat) pair is verified once here; actions on the connection trust the
// binding afterwards.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	username, ok2 := middleware.Username(r.Context())
	if !ok || !ok2 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	member, err := h.repo.IsMember(r.Context(), chatID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "not a member of this chat", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	if h.presence != nil {
		h.presence.Mark(userID)
	}
	onClose := func() {
		if h.presence != nil {
			h.presence.Clear(userID)
		}
	}

	client := NewClient(h.hub, conn, userID, username, chatID, onClose, h.log)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// StartConversation finds or creates the private chat between the caller
// and the requested peer.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.UserID == userID {
		http.Error(w, "cannot chat with yourself", http.StatusBadRequest)
		return
	}

	c, err := h.repo.GetOrCreateChat(r.Context(), userID, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("get or create chat failed")
		http.Error(w, "could not start conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

// GetConversations lists the caller's chats.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chats, err := h.repo.ListChats(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("list chats failed")
		http.Error(w, "could not load conversations", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []Chat{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chats)
}

// GetChatHistory returns a chat's messages in chronological order.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	member, err := h.repo.IsMember(r.Context(), chatID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "not a member of this chat", http.StatusForbidden)
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), chatID, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("list messages failed")
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}
