package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/progress"
)

func TestSequencesAreGaplessPerTopic(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())
	ctx := context.Background()

	sub := bus.Subscribe("report:abc")
	defer sub.Cancel()

	for i := 1; i <= 5; i++ {
		bus.Publish(ctx, "report:abc", i*20, "step", i == 5)
	}

	for want := uint64(1); want <= 5; want++ {
		select {
		case ev := <-sub.C:
			assert.Equal(t, want, ev.Sequence)
			assert.Equal(t, "report:abc", ev.TopicKey)
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", want)
		}
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())
	ctx := context.Background()

	subA := bus.Subscribe("topic:a")
	defer subA.Cancel()
	subB := bus.Subscribe("topic:b")
	defer subB.Cancel()

	bus.Publish(ctx, "topic:a", 50, "only for a", false)

	select {
	case ev := <-subA.C:
		assert.Equal(t, "topic:a", ev.TopicKey)
	case <-time.After(time.Second):
		t.Fatal("subscriber a received nothing")
	}

	select {
	case ev := <-subB.C:
		t.Fatalf("subscriber b received foreign event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), "lonely", i, "nobody listening", false)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())
	ctx := context.Background()

	// Never drained: the buffer fills and later events are dropped.
	slow := bus.Subscribe("busy")
	defer slow.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			bus.Publish(ctx, "busy", i, "burst", false)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The subscriber still got a prefix of the stream, in order.
	var last uint64
	for {
		select {
		case ev := <-slow.C:
			assert.Greater(t, ev.Sequence, last)
			last = ev.Sequence
		default:
			assert.Greater(t, last, uint64(0))
			return
		}
	}
}

func TestCancelDetachesOnlyThatSubscriber(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())
	ctx := context.Background()

	sub1 := bus.Subscribe("shared")
	sub2 := bus.Subscribe("shared")
	defer sub2.Cancel()

	sub1.Cancel()
	sub1.Cancel() // second cancel is a no-op

	bus.Publish(ctx, "shared", 10, "after cancel", false)

	select {
	case ev := <-sub2.C:
		assert.Equal(t, 10, ev.Percent)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber received nothing")
	}

	_, open := <-sub1.C
	assert.False(t, open, "cancelled subscription channel must be closed")
}

func TestSequenceContinuesAcrossReruns(t *testing.T) {
	bus := progress.NewBus(nil, zerolog.Nop())
	ctx := context.Background()

	first := bus.Publish(ctx, "rerun", 100, "done", true)
	second := bus.Publish(ctx, "rerun", 0, "starting again", false)

	assert.Greater(t, second.Sequence, first.Sequence,
		"sequence must stay strictly increasing across runs on the same key")
}

type recordingMirror struct {
	mu     sync.Mutex
	events []progress.Event
}

func (m *recordingMirror) MirrorProgress(_ context.Context, ev progress.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *recordingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestMirrorSeesEveryPublish(t *testing.T) {
	mirror := &recordingMirror{}
	bus := progress.NewBus(mirror, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bus.Publish(ctx, "mirrored", i, "step", false)
	}

	require.Eventually(t, func() bool { return mirror.count() == 3 },
		time.Second, 10*time.Millisecond)
}
