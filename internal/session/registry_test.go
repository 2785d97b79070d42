package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/session"
)

func TestStartRejectsDuplicate(t *testing.T) {
	fx := newFixture(t, 1)

	_, _, err := fx.registry.Start(fx.key, fx.order, time.Minute)
	require.NoError(t, err)

	_, _, err = fx.registry.Start(fx.key, fx.order, time.Minute)
	assert.ErrorIs(t, err, session.ErrAlreadyActive)
	assert.Equal(t, 1, fx.registry.Len())
}

func TestAttachWithoutStart(t *testing.T) {
	fx := newFixture(t, 1)

	_, err := fx.registry.Attach(fx.key)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestConcurrentStartOrAttachYieldsOneActor(t *testing.T) {
	fx := newFixture(t, 2)

	const callers = 64

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		actors = make(map[*session.Actor]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := fx.registry.StartOrAttach(fx.key, fx.order, time.Minute)
			require.NoError(t, err)
			mu.Lock()
			actors[a]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, actors, 1, "every caller must land on the same actor")
	assert.Equal(t, 1, fx.registry.Len())
}

func TestDistinctKeysGetDistinctActors(t *testing.T) {
	fx := newFixture(t, 1)

	otherKey := session.Key{MarathonID: fx.key.MarathonID, ParticipantID: fx.key.ParticipantID + 1}

	a1, err := fx.registry.StartOrAttach(fx.key, fx.order, time.Minute)
	require.NoError(t, err)
	a2, err := fx.registry.StartOrAttach(otherKey, fx.order, time.Minute)
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
	assert.Equal(t, 2, fx.registry.Len())
}

func TestFinalizedActorLeavesRegistryAndKeyRestarts(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	a1, err := fx.registry.StartOrAttach(fx.key, fx.order, time.Minute)
	require.NoError(t, err)
	require.NoError(t, a1.Complete(ctx))
	require.Equal(t, 0, fx.registry.Len())

	// The key is reusable once the previous attempt finalized.
	a2, err := fx.registry.StartOrAttach(fx.key, fx.order, time.Minute)
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)

	snap, err := a2.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, snap.Status)
	assert.Empty(t, snap.Submitted)
}

func TestKeyString(t *testing.T) {
	id := uuid.MustParse("3e0a4fd2-0001-4b6b-9a3e-62a5a1a40a11")
	key := session.Key{MarathonID: id, ParticipantID: 42}
	assert.Equal(t, "participant:42:marathon:3e0a4fd2-0001-4b6b-9a3e-62a5a1a40a11", key.String())
}
