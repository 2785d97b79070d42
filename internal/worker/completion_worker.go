package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/model"
)

const (
	CompletionBatchSize    = 50
	CompletionBatchTimeout = 2 * time.Second
	CompletionPollTimeout  = 1 * time.Second
)

// CompletionWorker consumes persist_completions_queue and marks attempts
// terminal in batches. After a batch lands it clears the Redis draft
// buffers and bumps the completion leaderboard.
type CompletionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewCompletionWorker creates a new CompletionWorker.
func NewCompletionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *CompletionWorker {
	return &CompletionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "completion_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *CompletionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CompletionWorker started")

	batch := make([]*model.CompletionTask, 0, CompletionBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= CompletionBatchSize || time.Since(lastFlush) >= CompletionBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, CompletionPollTimeout, config.WorkerKey.PersistCompletionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var t model.CompletionTask
			if err := json.Unmarshal([]byte(item[1]), &t); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &t)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *CompletionWorker) flushSafe(ctx context.Context, batch []*model.CompletionTask) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdateAttempts(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk attempt update failed, using fallback")

		for _, t := range batch {
			if err := w.persistSingle(ctx, t); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(t)
				w.rdb.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, raw)
				continue
			}
			w.finishAttempt(ctx, t)
		}
		return
	}

	// Attempts are durable → clear draft buffers and update the leaderboard.
	for _, t := range batch {
		w.finishAttempt(ctx, t)
	}
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *CompletionWorker) bulkUpdateAttempts(ctx context.Context, batch []*model.CompletionTask) error {
	n := len(batch)

	marathonIDs := make([]uuid.UUID, 0, n)
	participants := make([]int, 0, n)
	statuses := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, t := range batch {
		mID, err := uuid.Parse(t.MarathonID)
		if err != nil {
			return err
		}
		marathonIDs = append(marathonIDs, mID)
		participants = append(participants, t.ParticipantID)
		statuses = append(statuses, t.Status)
		finishedAts = append(finishedAts, t.FinishedAt)
	}

	query := `
		UPDATE attempts AS a
		SET status = t.status,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.marathon_id,
				u.participant_id,
				u.status,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::text[],
				$4::timestamptz[]
			) AS u (marathon_id, participant_id, status, finished_at)
		) AS t
		WHERE a.marathon_id = t.marathon_id
		  AND a.participant_id = t.participant_id
	`

	_, err := w.pool.Exec(ctx, query, marathonIDs, participants, statuses, finishedAts)
	return err
}

// ----------------------------------------------------------------
// Post-persistence cleanup: drafts, leaderboard, refresh signal
// ----------------------------------------------------------------

func (w *CompletionWorker) finishAttempt(ctx context.Context, t *model.CompletionTask) {
	pipe := w.rdb.Pipeline()
	pipe.Del(ctx,
		config.CacheKey.DraftTextKey(t.MarathonID, t.ParticipantID),
		config.CacheKey.DraftSavedAtKey(t.MarathonID, t.ParticipantID),
	)
	if t.Status == string(model.AttemptStatusCompleted) {
		pipe.ZIncrBy(ctx, config.CacheKey.MarathonLeaderboardKey(t.MarathonID), 1, strconv.Itoa(t.ParticipantID))
	}
	pipe.Publish(ctx, config.CacheKey.LeaderboardRefreshChannel(t.MarathonID), t.ParticipantID)
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).
			Str("marathon_id", t.MarathonID).
			Int("participant_id", t.ParticipantID).
			Msg("Post-completion cleanup failed")
	}
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *CompletionWorker) persistSingle(ctx context.Context, t *model.CompletionTask) error {
	mID, err := uuid.Parse(t.MarathonID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1,
		     finished_at = $2
		 WHERE marathon_id = $3 AND participant_id = $4`,
		t.Status, t.FinishedAt, mID, t.ParticipantID,
	)

	return err
}
