package progress

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer bounds each listener's channel. A listener that falls
// behind drops events and should resync from a current snapshot instead
// of relying on streamed history.
const subscriberBuffer = 16

// Event is one progress update on a topic. Sequence is strictly
// increasing per topic so a reconnecting subscriber can detect gaps.
type Event struct {
	TopicKey string `json:"topic_key"`
	Sequence uint64 `json:"sequence"`
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
	Terminal bool   `json:"terminal"`
}

// Mirror receives every published event for out-of-process delivery,
// e.g. a Redis Pub/Sub channel. Implementations must tolerate being
// called concurrently.
type Mirror interface {
	MirrorProgress(ctx context.Context, ev Event)
}

// Bus is a per-topic fan-out decoupling progress producers from however
// many listeners are currently connected. Publishing never blocks and
// never depends on subscriber presence; cancelling one subscription
// affects neither the publisher nor other listeners.
type Bus struct {
	log    zerolog.Logger
	mirror Mirror

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	seq     uint64
	nextSub int
	subs    map[int]chan Event
}

// NewBus creates a bus. mirror may be nil.
func NewBus(mirror Mirror, log zerolog.Logger) *Bus {
	return &Bus{
		log:    log.With().Str("component", "progress_bus").Logger(),
		mirror: mirror,
		topics: make(map[string]*topic),
	}
}

// Publish delivers an event to all current subscribers of the topic,
// assigning the next sequence number. Slow subscribers drop the event
// rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, topicKey string, percent int, message string, terminal bool) Event {
	b.mu.Lock()
	t := b.topic(topicKey)
	t.seq++
	ev := Event{
		TopicKey: topicKey,
		Sequence: t.seq,
		Percent:  percent,
		Message:  message,
		Terminal: terminal,
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Listener is behind; it resyncs via snapshot on its own.
		}
	}
	b.mu.Unlock()

	if b.mirror != nil {
		go b.mirror.MirrorProgress(ctx, ev)
	}

	return ev
}

// Subscription is a cancellable stream of topic events.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Cancel detaches the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() { s.cancel() }

// Subscribe attaches a listener to a topic.
func (b *Bus) Subscribe(topicKey string) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	t := b.topic(topicKey)
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: ch,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				if t, ok := b.topics[topicKey]; ok {
					delete(t.subs, id)
					close(ch)
				}
				b.mu.Unlock()
			})
		},
	}
}

// topic returns the topic entry, creating it if needed. Caller holds mu.
// Topic entries are retained so sequence numbers stay strictly increasing
// across repeated runs on the same key.
func (b *Bus) topic(topicKey string) *topic {
	t, ok := b.topics[topicKey]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[topicKey] = t
	}
	return t
}
