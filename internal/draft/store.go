package draft

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
)

// Draft is a non-authoritative saved answer shown back to the user.
type Draft struct {
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// Store buffers in-progress answer text in Redis hashes, one hash per
// (participant, marathon) attempt with question IDs as fields. Writes are
// last-write-wins with no locking: drafts never decide a score, so two
// tabs of the same user racing is accepted behavior, not a bug.
type Store struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewStore creates a Redis-backed draft store.
func NewStore(rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{
		rdb: rdb,
		log: log.With().Str("component", "draft_store").Logger(),
	}
}

// Save overwrites the draft for one question and returns its save time.
func (s *Store) Save(ctx context.Context, marathonID string, participantID int, questionID, text string) (time.Time, error) {
	now := time.Now()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.DraftTextKey(marathonID, participantID), questionID, text)
	pipe.HSet(ctx, config.CacheKey.DraftSavedAtKey(marathonID, participantID), questionID, now.Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, fmt.Errorf("write draft: %w", err)
	}

	return now, nil
}

// Get returns the draft for one question, reporting whether one exists.
func (s *Store) Get(ctx context.Context, marathonID string, participantID int, questionID string) (Draft, bool, error) {
	text, err := s.rdb.HGet(ctx, config.CacheKey.DraftTextKey(marathonID, participantID), questionID).Result()
	if err == redis.Nil {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, fmt.Errorf("read draft: %w", err)
	}

	d := Draft{Text: text}
	if raw, err := s.rdb.HGet(ctx, config.CacheKey.DraftSavedAtKey(marathonID, participantID), questionID).Result(); err == nil {
		if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			d.SavedAt = time.Unix(unix, 0)
		}
	}
	return d, true, nil
}

// Load returns every draft of an attempt, keyed by question ID. Used to
// resync a reconnecting client.
func (s *Store) Load(ctx context.Context, marathonID string, participantID int) (map[string]Draft, error) {
	texts, err := s.rdb.HGetAll(ctx, config.CacheKey.DraftTextKey(marathonID, participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read drafts: %w", err)
	}

	times, err := s.rdb.HGetAll(ctx, config.CacheKey.DraftSavedAtKey(marathonID, participantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read draft times: %w", err)
	}

	drafts := make(map[string]Draft, len(texts))
	for qid, text := range texts {
		d := Draft{Text: text}
		if raw, ok := times[qid]; ok {
			if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				d.SavedAt = time.Unix(unix, 0)
			}
		}
		drafts[qid] = d
	}
	return drafts, nil
}

// Clear drops an attempt's draft buffers. Called by the completion worker
// once the final answers are durable.
func (s *Store) Clear(ctx context.Context, marathonID string, participantID int) error {
	return s.rdb.Del(ctx,
		config.CacheKey.DraftTextKey(marathonID, participantID),
		config.CacheKey.DraftSavedAtKey(marathonID, participantID),
	).Err()
}
