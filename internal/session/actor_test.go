package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/session"
)

const waitTimeout = 2 * time.Second

type answerCall struct {
	Key        session.Key
	QuestionID uuid.UUID
	Answer     string
}

type completionCall struct {
	Key       session.Key
	Status    session.Status
	Submitted []uuid.UUID
}

// fakeCompleter records collaborator calls and can be told to fail.
type fakeCompleter struct {
	mu          sync.Mutex
	answers     []answerCall
	completions []completionCall

	failAnswer     error
	failCompletion error
}

func (f *fakeCompleter) PersistFinalAnswer(_ context.Context, key session.Key, questionID uuid.UUID, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAnswer != nil {
		return f.failAnswer
	}
	f.answers = append(f.answers, answerCall{Key: key, QuestionID: questionID, Answer: answer})
	return nil
}

func (f *fakeCompleter) PersistSessionCompletion(_ context.Context, key session.Key, status session.Status, submitted []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCompletion != nil {
		return f.failCompletion
	}
	f.completions = append(f.completions, completionCall{Key: key, Status: status, Submitted: submitted})
	return nil
}

func (f *fakeCompleter) completionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

func (f *fakeCompleter) lastCompletion() completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completions[len(f.completions)-1]
}

// fakeDrafts records draft saves in memory.
type fakeDrafts struct {
	mu    sync.Mutex
	saved map[string]string
	at    time.Time
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{saved: make(map[string]string), at: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)}
}

func (f *fakeDrafts) Save(_ context.Context, marathonID string, participantID int, questionID, text string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[questionID] = text
	return f.at, nil
}

type fixture struct {
	clock     *fakeClock
	completer *fakeCompleter
	drafts    *fakeDrafts
	registry  *session.Registry
	key       session.Key
	order     []uuid.UUID
}

func newFixture(t *testing.T, questions int) *fixture {
	t.Helper()
	order := make([]uuid.UUID, questions)
	for i := range order {
		order[i] = uuid.New()
	}
	clock := newFakeClock()
	completer := &fakeCompleter{}
	drafts := newFakeDrafts()
	return &fixture{
		clock:     clock,
		completer: completer,
		drafts:    drafts,
		registry:  session.NewRegistry(clock, time.Second, drafts, completer, zerolog.Nop()),
		key:       session.Key{MarathonID: uuid.New(), ParticipantID: 7},
		order:     order,
	}
}

func waitEvent(t *testing.T, sub *session.Subscription, want session.EventType) session.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-sub.C:
			require.True(t, ok, "subscription closed before %s event", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func waitClosed(t *testing.T, sub *session.Subscription) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for subscription close")
		}
	}
}

func TestSubmitAllQuestionsCompletes(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	actor, snap, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, snap.Status)
	assert.Equal(t, fx.order[0], snap.CurrentQuestionID())

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	res, err := actor.SubmitFinal(ctx, fx.order[0], "first answer")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.Completed)

	res, err = actor.SubmitFinal(ctx, fx.order[1], "second answer")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Completed)

	ev := waitEvent(t, sub, session.EventCompleted)
	assert.Equal(t, session.StatusCompleted, ev.Status)
	waitClosed(t, sub)

	require.Equal(t, 1, fx.completer.completionCount())
	completion := fx.completer.lastCompletion()
	assert.Equal(t, session.StatusCompleted, completion.Status)
	assert.Equal(t, fx.order, completion.Submitted)
	assert.Equal(t, 0, fx.registry.Len())
}

func TestResubmissionOverwritesWithoutDoubleCounting(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	res, err := actor.SubmitFinal(ctx, fx.order[0], "v1")
	require.NoError(t, err)
	assert.False(t, res.AlreadySubmitted)
	assert.False(t, res.Completed)

	res, err = actor.SubmitFinal(ctx, fx.order[0], "v2")
	require.NoError(t, err)
	assert.True(t, res.AlreadySubmitted)
	assert.False(t, res.Completed, "resubmitting the same question must not finalize")

	snap, err := actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fx.order[0]}, snap.Submitted)
}

func TestCompleteIsIdempotent(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, actor.Complete(ctx))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, fx.completer.completionCount(), "exactly one persistence call")
	assert.Equal(t, 0, fx.registry.Len())
}

func TestDeadlineExpiresWithPartialSubmissions(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 2*time.Minute)
	require.NoError(t, err)

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	_, err = actor.SubmitFinal(ctx, fx.order[0], "only the first")
	require.NoError(t, err)

	fx.clock.Advance(2 * time.Minute)

	waitEvent(t, sub, session.EventTimeUp)
	waitClosed(t, sub)

	require.Equal(t, 1, fx.completer.completionCount())
	completion := fx.completer.lastCompletion()
	assert.Equal(t, session.StatusExpired, completion.Status)
	assert.Equal(t, []uuid.UUID{fx.order[0]}, completion.Submitted)

	_, err = actor.SubmitFinal(ctx, fx.order[1], "too late")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestSubmitRacingDeadlineFinalizesOnce(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		fx.clock.Advance(time.Minute)
	}()
	go func() {
		defer wg.Done()
		// Whichever reaches the actor loop first wins; both outcomes are
		// legal, but finalize must happen exactly once.
		_, _ = actor.SubmitFinal(ctx, fx.order[0], "at the wire")
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		return fx.completer.completionCount() == 1 && fx.registry.Len() == 0
	}, waitTimeout, 10*time.Millisecond)

	status := fx.completer.lastCompletion().Status
	assert.Contains(t, []session.Status{session.StatusCompleted, session.StatusExpired}, status)
	require.Equal(t, 1, fx.completer.completionCount())
}

func TestChangeQuestion(t *testing.T) {
	fx := newFixture(t, 3)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	// Out-of-order navigation is allowed.
	require.NoError(t, actor.ChangeQuestion(ctx, fx.order[2]))
	ev := waitEvent(t, sub, session.EventQuestionChanged)
	assert.Equal(t, fx.order[2], ev.QuestionID)

	// Changing to the current question is a silent no-op.
	require.NoError(t, actor.ChangeQuestion(ctx, fx.order[2]))
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected broadcast %s after redundant change", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}

	err = actor.ChangeQuestion(ctx, uuid.New())
	assert.ErrorIs(t, err, session.ErrUnknownQuestion)
}

func TestReconnectSnapshotPreservesProgress(t *testing.T) {
	fx := newFixture(t, 3)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, actor.ChangeQuestion(ctx, fx.order[1]))
	_, err = actor.SubmitFinal(ctx, fx.order[0], "answered before disconnect")
	require.NoError(t, err)

	// Disconnect only cancels the subscription.
	sub.Cancel()

	attached, err := fx.registry.Attach(fx.key)
	require.NoError(t, err)
	require.Same(t, actor, attached)

	snap, err := attached.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, snap.Status)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, []uuid.UUID{fx.order[0]}, snap.Submitted)
}

func TestTicksReportNonIncreasingTimeRemaining(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, time.Minute)
	require.NoError(t, err)

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	fx.clock.Advance(time.Second)
	first := waitEvent(t, sub, session.EventTick)
	fx.clock.Advance(time.Second)
	second := waitEvent(t, sub, session.EventTick)

	assert.LessOrEqual(t, second.TimeRemaining, first.TimeRemaining)
	assert.GreaterOrEqual(t, second.TimeElapsed, first.TimeElapsed)
}

func TestSaveDraftIndependentOfAcks(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	sub, err := actor.Subscribe(ctx)
	require.NoError(t, err)

	savedAt, err := actor.SaveDraft(ctx, fx.order[0], "work in progress")
	require.NoError(t, err)
	assert.Equal(t, fx.drafts.at, savedAt)
	assert.Equal(t, "work in progress", fx.drafts.saved[fx.order[0].String()])

	ev := waitEvent(t, sub, session.EventDraftSaved)
	assert.Equal(t, fx.order[0], ev.QuestionID)
	assert.Equal(t, savedAt, ev.SavedAt)
}

func TestCollaboratorFailureOnSubmitKeepsSessionConsistent(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	fx.completer.mu.Lock()
	fx.completer.failAnswer = context.DeadlineExceeded
	fx.completer.mu.Unlock()

	_, err = actor.SubmitFinal(ctx, fx.order[0], "will not stick")
	require.ErrorIs(t, err, session.ErrCollaborator)

	// The failed submission is not recorded, so a retry can succeed.
	snap, err := actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Submitted)

	fx.completer.mu.Lock()
	fx.completer.failAnswer = nil
	fx.completer.mu.Unlock()

	res, err := actor.SubmitFinal(ctx, fx.order[0], "retried")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestCollaboratorFailureOnFinalizeStillRemovesActor(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	actor, _, err := fx.registry.Start(fx.key, fx.order, 10*time.Minute)
	require.NoError(t, err)

	fx.completer.mu.Lock()
	fx.completer.failCompletion = context.DeadlineExceeded
	fx.completer.mu.Unlock()

	err = actor.Complete(ctx)
	require.ErrorIs(t, err, session.ErrCollaborator)

	// The registry slot is freed even though persistence failed, so the
	// session key is never permanently wedged.
	assert.Equal(t, 0, fx.registry.Len())
}
