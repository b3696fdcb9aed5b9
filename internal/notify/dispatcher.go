// Package notify fans a persisted message out to offline chat members
// through an external push gateway. It runs off the real-time path:
// every failure is logged and swallowed.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"go-messenger/internal/chat"
)

// PushGateway is the external delivery provider.
type PushGateway interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// MemberSource lists a chat's members with their push tokens.
type MemberSource interface {
	ChatMembers(ctx context.Context, chatID int64) ([]chat.Member, error)
}

// Presence reports whether a user holds a live connection right now.
type Presence interface {
	Online(ctx context.Context, userID int64) bool
}

type Dispatcher struct {
	members  MemberSource
	presence Presence
	gateway  PushGateway
	timeout  time.Duration
	log      zerolog.Logger
}

func NewDispatcher(members MemberSource, presence Presence, gateway PushGateway, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		members:  members,
		presence: presence,
		gateway:  gateway,
		timeout:  timeout,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Notify pushes the message body to every chat member other than the
// sender that has a push token and is not currently online. Attempts are
// independent; one failing recipient never affects the others, and no
// error reaches the caller.
func (d *Dispatcher) Notify(ctx context.Context, chatID, senderID int64, senderName, body string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	members, err := d.members.ChatMembers(ctx, chatID)
	if err != nil {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("member lookup failed, no pushes sent")
		return
	}

	for _, m := range members {
		if m.ID == senderID || m.PushToken == "" {
			continue
		}
		if d.presence != nil && d.presence.Online(ctx, m.ID) {
			continue
		}

		data := map[string]string{
			"chat_id":   strconv.FormatInt(chatID, 10),
			"sender_id": strconv.FormatInt(senderID, 10),
		}
		if err := d.gateway.SendPush(ctx, m.PushToken, senderName, body, data); err != nil {
			d.log.Warn().Err(err).
				Int64("chat_id", chatID).
				Int64("user_id", m.ID).
				Msg("push delivery failed")
		}
	}
}
