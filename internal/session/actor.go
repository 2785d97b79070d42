package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberBuffer bounds each listener's event channel. A listener that
// falls this far behind starts dropping events and must resync from a
// snapshot on reconnect.
const subscriberBuffer = 32

// Actor owns the authoritative state of one live attempt: timer state,
// question pointer and the submitted set. All mutations happen on its run
// goroutine; callers interact through commands and receive snapshots and
// events back. Commands are processed strictly in arrival order, which is
// what makes the submit-versus-deadline race well defined.
type Actor struct {
	key       Key
	clock     Clock
	tick      time.Duration
	drafts    DraftSaver
	completer Completer
	reg       *Registry
	log       zerolog.Logger

	cmds    chan request
	stopped chan struct{}

	// State below is owned by the run goroutine.
	status    Status
	startedAt time.Time
	deadline  time.Time
	order     []uuid.UUID
	orderPos  map[uuid.UUID]int
	index     int
	submitted map[uuid.UUID]struct{}

	timer   Timer
	ticker  Ticker
	subs    map[int]chan Event
	nextSub int
	closing bool
}

type request struct {
	run  func()
	done chan struct{}
}

func newActor(key Key, order []uuid.UUID, timeLimit time.Duration, reg *Registry) *Actor {
	a := &Actor{
		key:       key,
		clock:     reg.clock,
		tick:      reg.tick,
		drafts:    reg.drafts,
		completer: reg.completer,
		reg:       reg,
		log: reg.log.With().
			Str("session_key", key.String()).
			Logger(),
		cmds:      make(chan request),
		stopped:   make(chan struct{}),
		status:    StatusPending,
		order:     append([]uuid.UUID(nil), order...),
		orderPos:  make(map[uuid.UUID]int, len(order)),
		submitted: make(map[uuid.UUID]struct{}),
		subs:      make(map[int]chan Event),
	}
	for i, id := range a.order {
		a.orderPos[id] = i
	}

	// Deadline is fixed here and never extended.
	a.startedAt = a.clock.Now()
	a.deadline = a.startedAt.Add(timeLimit)
	a.status = StatusActive

	return a
}

// Key returns the session identifier this actor owns.
func (a *Actor) Key() Key { return a.key }

// run is the actor's single mutation point. It exits after the first
// finalize, whether driven by a command or the deadline timer.
func (a *Actor) run() {
	a.timer = a.clock.NewTimer(a.deadline.Sub(a.clock.Now()))
	a.ticker = a.clock.NewTicker(a.tick)

	defer func() {
		a.timer.Stop()
		a.ticker.Stop()
		close(a.stopped)
	}()

	for {
		select {
		case req := <-a.cmds:
			req.run()
			close(req.done)
			if a.closing {
				return
			}

		case <-a.timer.C():
			a.expire()
			if a.closing {
				return
			}

		case <-a.ticker.C():
			a.broadcastTick()
		}
	}
}

// do runs fn on the actor goroutine and waits for it to finish.
// The command channel is unbuffered, so a delivered command is always
// executed; a closed stopped channel means the actor already finalized.
func (a *Actor) do(ctx context.Context, fn func()) error {
	req := request{run: fn, done: make(chan struct{})}
	select {
	case a.cmds <- req:
		<-req.done
		return nil
	case <-a.stopped:
		return ErrInvalidTransition
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current state with derived time values.
func (a *Actor) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := a.do(ctx, func() { snap = a.snapshotLocked() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ChangeQuestion moves the current question pointer. Out-of-order
// navigation is permitted; pacing is the client's concern. A request for
// the question already current is a no-op without a broadcast.
func (a *Actor) ChangeQuestion(ctx context.Context, questionID uuid.UUID) error {
	var opErr error
	if err := a.do(ctx, func() { opErr = a.changeQuestion(questionID) }); err != nil {
		return err
	}
	return opErr
}

// SaveDraft writes the draft store and broadcasts an acknowledgment.
// The store write happens on the caller's goroutine: drafts are
// last-write-wins and non-authoritative, so they bypass the actor's
// ordering on purpose and two tabs may race.
func (a *Actor) SaveDraft(ctx context.Context, questionID uuid.UUID, text string) (time.Time, error) {
	savedAt, err := a.drafts.Save(ctx, a.key.MarathonID.String(), a.key.ParticipantID, questionID.String(), text)
	if err != nil {
		return time.Time{}, fmt.Errorf("save draft: %w", err)
	}

	// Best-effort ack broadcast; a finalized actor just drops it.
	_ = a.do(ctx, func() {
		a.broadcast(Event{
			Type:       EventDraftSaved,
			Key:        a.key,
			Status:     a.status,
			QuestionID: questionID,
			SavedAt:    savedAt,
		})
	})

	return savedAt, nil
}

// SubmitFinal records a final answer. Re-submission overwrites the prior
// stored answer downstream. Submitting the last outstanding question
// finalizes the session atomically.
func (a *Actor) SubmitFinal(ctx context.Context, questionID uuid.UUID, answer string) (SubmitResult, error) {
	var (
		res   SubmitResult
		opErr error
	)
	if err := a.do(ctx, func() { res, opErr = a.submitFinal(questionID, answer) }); err != nil {
		return SubmitResult{}, err
	}
	return res, opErr
}

// Complete finalizes the session explicitly. Idempotent: a second call
// after the session already finalized is a silent no-op.
func (a *Actor) Complete(ctx context.Context) error {
	var opErr error
	if err := a.do(ctx, func() { opErr = a.finalize(StatusCompleted) }); err != nil {
		if err == ErrInvalidTransition {
			return nil // already finalized
		}
		return err
	}
	return opErr
}

// Subscription is a cancellable stream of actor events. Cancellation only
// detaches this listener; the actor and other listeners are unaffected.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Cancel detaches the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() { s.cancel() }

// Subscribe attaches a listener to the actor's broadcasts.
func (a *Actor) Subscribe(ctx context.Context) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)
	var id int
	err := a.do(ctx, func() {
		id = a.nextSub
		a.nextSub++
		a.subs[id] = ch
	})
	if err != nil {
		return nil, err
	}

	return &Subscription{
		C: ch,
		cancel: func() {
			// Ignore delivery failure: a finalized actor already closed
			// every subscriber channel.
			_ = a.do(context.Background(), func() {
				if sub, ok := a.subs[id]; ok {
					delete(a.subs, id)
					close(sub)
				}
			})
		},
	}, nil
}

// ─── Run-goroutine internals ────────────────────────────────────────

func (a *Actor) snapshotLocked() Snapshot {
	now := a.clock.Now()
	remaining := a.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	submitted := make([]uuid.UUID, 0, len(a.submitted))
	for _, id := range a.order {
		if _, ok := a.submitted[id]; ok {
			submitted = append(submitted, id)
		}
	}

	return Snapshot{
		Key:           a.key,
		Status:        a.status,
		StartedAt:     a.startedAt,
		Deadline:      a.deadline,
		QuestionOrder: append([]uuid.UUID(nil), a.order...),
		CurrentIndex:  a.index,
		Submitted:     submitted,
		TimeRemaining: remaining,
		TimeElapsed:   now.Sub(a.startedAt),
	}
}

func (a *Actor) changeQuestion(questionID uuid.UUID) error {
	if a.status != StatusActive {
		return ErrInvalidTransition
	}
	pos, ok := a.orderPos[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if pos == a.index {
		return nil // redundant broadcast avoided
	}

	a.index = pos
	a.broadcast(Event{
		Type:       EventQuestionChanged,
		Key:        a.key,
		Status:     a.status,
		QuestionID: questionID,
	})
	return nil
}

func (a *Actor) submitFinal(questionID uuid.UUID, answer string) (SubmitResult, error) {
	if a.status != StatusActive {
		return SubmitResult{}, ErrInvalidTransition
	}
	if _, ok := a.orderPos[questionID]; !ok {
		return SubmitResult{}, ErrUnknownQuestion
	}

	// Queue the answer before marking it submitted so a failed push can be
	// retried by the client without the set lying about durability.
	if err := a.completer.PersistFinalAnswer(context.Background(), a.key, questionID, answer); err != nil {
		a.log.Error().Err(err).Str("question_id", questionID.String()).Msg("Persist final answer failed")
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrCollaborator, err)
	}

	_, already := a.submitted[questionID]
	a.submitted[questionID] = struct{}{}

	res := SubmitResult{Accepted: true, AlreadySubmitted: already}

	if len(a.submitted) == len(a.order) {
		res.Completed = true
		if err := a.finalize(StatusCompleted); err != nil {
			return res, err
		}
	}
	return res, nil
}

// expire is driven by the deadline timer. Whichever of expire and a
// completing submit reaches the run goroutine first wins; the loser's
// finalize is a no-op.
func (a *Actor) expire() {
	if a.status != StatusActive {
		return
	}
	a.log.Info().Msg("Deadline reached, expiring session")
	if err := a.finalize(StatusExpired); err != nil {
		a.log.Error().Err(err).Msg("Finalize on expiry failed")
	}
}

// finalize performs the single terminal transition: stop timers, emit the
// terminal broadcast, invoke the completion collaborator, then leave the
// registry. Removal is unconditional so a failed collaborator call cannot
// wedge the registry; the error is surfaced to the caller instead.
func (a *Actor) finalize(terminal Status) error {
	if a.status == StatusCompleted || a.status == StatusExpired {
		return nil
	}
	a.status = terminal
	a.closing = true
	a.timer.Stop()
	a.ticker.Stop()

	eventType := EventCompleted
	if terminal == StatusExpired {
		eventType = EventTimeUp
	}
	snap := a.snapshotLocked()
	a.broadcast(Event{
		Type:          eventType,
		Key:           a.key,
		Status:        terminal,
		TimeRemaining: snap.TimeRemaining,
		TimeElapsed:   snap.TimeElapsed,
	})

	err := a.completer.PersistSessionCompletion(context.Background(), a.key, terminal, snap.Submitted)

	a.reg.remove(a.key, a)
	a.closeSubs()

	if err != nil {
		a.log.Error().Err(err).Msg("Persist session completion failed")
		return fmt.Errorf("%w: %v", ErrCollaborator, err)
	}

	a.log.Info().
		Str("status", string(terminal)).
		Int("submitted", len(snap.Submitted)).
		Msg("Session finalized")
	return nil
}

func (a *Actor) broadcastTick() {
	if a.status != StatusActive {
		return
	}
	now := a.clock.Now()
	remaining := a.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	a.broadcast(Event{
		Type:          EventTick,
		Key:           a.key,
		Status:        a.status,
		TimeRemaining: remaining,
		TimeElapsed:   now.Sub(a.startedAt),
	})
}

// broadcast fans an event out to every subscriber without blocking the
// actor. A full subscriber channel drops the event.
func (a *Actor) broadcast(ev Event) {
	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (a *Actor) closeSubs() {
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}
