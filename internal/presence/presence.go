// Package presence tracks which users currently hold a live connection,
// backed by redis so the notification path can skip them.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const opTimeout = 2 * time.Second

type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewTracker(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Tracker {
	return &Tracker{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "presence").Logger(),
	}
}

func key(userID int64) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Mark records the user as online. The TTL bounds staleness if Clear is
// never reached.
func (t *Tracker) Mark(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := t.rdb.Set(ctx, key(userID), 1, t.ttl).Err(); err != nil {
		t.log.Warn().Err(err).Int64("user_id", userID).Msg("presence mark failed")
	}
}

func (t *Tracker) Clear(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := t.rdb.Del(ctx, key(userID)).Err(); err != nil {
		t.log.Warn().Err(err).Int64("user_id", userID).Msg("presence clear failed")
	}
}

// Online reports whether the user has a live connection. Redis being
// unreachable degrades to offline, so pushes still go out.
func (t *Tracker) Online(ctx context.Context, userID int64) bool {
	n, err := t.rdb.Exists(ctx, key(userID)).Result()
	if err != nil {
		t.log.Warn().Err(err).Int64("user_id", userID).Msg("presence lookup failed")
		return false
	}
	return n > 0
}
