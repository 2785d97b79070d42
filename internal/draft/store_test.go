package draft_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/draft"
)

func newTestStore(t *testing.T) *draft.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return draft.NewStore(rdb, zerolog.Nop())
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marathonID := uuid.New().String()
	questionID := uuid.New().String()

	savedAt, err := store.Save(ctx, marathonID, 7, questionID, "draft text")
	require.NoError(t, err)
	assert.False(t, savedAt.IsZero())

	d, ok, err := store.Get(ctx, marathonID, 7, questionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "draft text", d.Text)
	assert.Equal(t, savedAt.Unix(), d.SavedAt.Unix())
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Get(context.Background(), uuid.New().String(), 7, uuid.New().String())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marathonID := uuid.New().String()
	questionID := uuid.New().String()

	_, err := store.Save(ctx, marathonID, 7, questionID, "a")
	require.NoError(t, err)
	_, err = store.Save(ctx, marathonID, 7, questionID, "b")
	require.NoError(t, err)

	d, ok, err := store.Get(ctx, marathonID, 7, questionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", d.Text)
}

func TestConcurrentSavesNeverCorrupt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marathonID := uuid.New().String()
	questionID := uuid.New().String()

	// Two tabs racing on the same question. One of the two writes must
	// win intact; a merge of both is a bug.
	var wg sync.WaitGroup
	for _, text := range []string{"tab one", "tab two"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, marathonID, 7, questionID, text)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	d, ok, err := store.Get(ctx, marathonID, 7, questionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, []string{"tab one", "tab two"}, d.Text)
}

func TestLoadReturnsAllDraftsOfAttempt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marathonID := uuid.New().String()
	q1 := uuid.New().String()
	q2 := uuid.New().String()

	_, err := store.Save(ctx, marathonID, 7, q1, "first")
	require.NoError(t, err)
	_, err = store.Save(ctx, marathonID, 7, q2, "second")
	require.NoError(t, err)

	// A different participant's drafts stay invisible.
	_, err = store.Save(ctx, marathonID, 8, q1, "someone else")
	require.NoError(t, err)

	drafts, err := store.Load(ctx, marathonID, 7)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "first", drafts[q1].Text)
	assert.Equal(t, "second", drafts[q2].Text)
}

func TestClearDropsBuffers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	marathonID := uuid.New().String()
	questionID := uuid.New().String()

	_, err := store.Save(ctx, marathonID, 7, questionID, "to be cleared")
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, marathonID, 7))

	_, ok, err := store.Get(ctx, marathonID, 7, questionID)
	require.NoError(t, err)
	assert.False(t, ok)

	drafts, err := store.Load(ctx, marathonID, 7)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
