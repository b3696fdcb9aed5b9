package signaling

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-messenger/internal/middleware"
)

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
	registry *Registry
	presence Presence
	log      zerolog.Logger
}

func NewHandler(registry *Registry, presence Presence, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		presence: presence,
		log:      log.With().Str("component", "signal").Logger(),
	}
}

// ServeWs admits a signaling connection for the authenticated user,
// replacing any previous one for the same user id.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
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

	client := NewClient(h.registry, conn, userID, onClose, h.log)
	h.registry.Register(userID, client)

	go client.WritePump()
	go client.ReadPump()
}
