package progress

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
)

// RedisMirror republishes bus events on a per-topic Redis Pub/Sub channel
// so detached processes (or other server instances) can listen too.
type RedisMirror struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisMirror creates a Redis-backed mirror.
func NewRedisMirror(rdb *redis.Client, log zerolog.Logger) *RedisMirror {
	return &RedisMirror{
		rdb: rdb,
		log: log.With().Str("component", "progress_mirror").Logger(),
	}
}

// MirrorProgress publishes the event as JSON. Failures are logged and
// dropped: the in-process bus already delivered to local listeners.
func (m *RedisMirror) MirrorProgress(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Msg("Marshal progress event failed")
		return
	}

	channel := config.CacheKey.ProgressChannel(ev.TopicKey)
	if err := m.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		m.log.Warn().Err(err).Str("channel", channel).Msg("Mirror publish failed")
	}
}
