// Package eventbus implements the Event Bus (spec.md §4.A): a
// persist-then-broadcast pub/sub backbone every other component publishes
// to and subscribes from. Grounded on system/events/dispatcher.go's
// worker-pool/bounded-channel shape and original_source/.../events/bus.rs's
// persist-before-broadcast ordering and lagging-subscriber semantics.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/platform/metrics"
)

// Repository persists published events for replay via GetEventsByTopic /
// GetEventsSince (spec.md §4.A). Implemented by internal/storage/postgres;
// declared here to avoid an import cycle.
type Repository interface {
	SaveEvent(ctx context.Context, evt event.ArbEvent) error
	EventsByTopic(ctx context.Context, topicPattern string, limit int) ([]event.ArbEvent, error)
	EventsSince(ctx context.Context, eventID string, topics []string, limit int) ([]event.ArbEvent, error)
}

// subscriberQueueSize bounds each subscriber's channel. A slow subscriber
// whose queue is full misses new events rather than blocking the bus; it
// stays subscribed and receives later events once it drains its queue —
// matching original_source/.../events/bus.rs's Lagged-warn-and-continue
// semantics, adapted to Go's non-blocking-send idiom since there is no
// broadcast-channel primitive with built-in lag tracking in the stdlib.
const subscriberQueueSize = 1024

// Bus is the concrete Event Bus: publish persists then fans out to every
// live subscription whose filter matches the event's topic.
type Bus struct {
	repo Repository
	log  *logging.Logger

	mu   sync.RWMutex
	subs map[int64]*subscription
	next int64
}

// New constructs a Bus backed by repo for durable event storage.
func New(repo Repository, log *logging.Logger) *Bus {
	return &Bus{repo: repo, log: log, subs: make(map[int64]*subscription)}
}

// Publish persists evt then fans it out to matching subscribers. A
// subscriber whose queue is full misses evt (counted in
// metrics.EventBusDropped and logged as a warning; the gap shows on its
// next EventsSince replay) rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, evt event.ArbEvent) error {
	if err := b.repo.SaveEvent(ctx, evt); err != nil {
		return fmt.Errorf("eventbus: persist: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.matches(evt.Topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			metrics.EventBusDropped.WithLabelValues(evt.Topic).Inc()
			b.log.WithContext(ctx).WithField("topic", evt.Topic).Warn("subscriber lagging, event dropped")
		}
	}
	return nil
}

// Subscription is a live feed of events matching zero or more topic
// patterns (empty means all topics, per original_source/.../events/bus.rs).
type Subscription struct {
	bus *Bus
	id  int64
	ch  <-chan event.ArbEvent
}

type subscription struct {
	filters []string
	ch      chan event.ArbEvent
}

func (s *subscription) matches(topic string) bool {
	if len(s.filters) == 0 {
		return true
	}
	for _, f := range s.filters {
		if event.MatchesPattern(topic, f) {
			return true
		}
	}
	return false
}

// Subscribe returns a Subscription filtered to the given topic patterns
// (supporting the ".*" prefix-match suffix). No patterns subscribes to
// everything.
func (b *Bus) Subscribe(patterns ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscription{filters: patterns, ch: make(chan event.ArbEvent, subscriberQueueSize)}
	b.subs[id] = sub

	return &Subscription{bus: b, id: id, ch: sub.ch}
}

// Recv blocks until an event arrives or ctx is cancelled, mirroring
// original_source/.../events/bus.rs's EventSubscription::recv — the Closed
// case there maps to ctx.Done() here, and there's no Lagged case to
// surface to the caller because the bus already dropped+logged it in
// Publish.
func (s *Subscription) Recv(ctx context.Context) (event.ArbEvent, bool) {
	select {
	case evt, ok := <-s.ch:
		return evt, ok
	case <-ctx.Done():
		return event.ArbEvent{}, false
	}
}

// Unsubscribe removes the subscription from the bus.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// EventsByTopic replays persisted events matching a topic or topic pattern,
// most recent first (spec.md §4.A).
func (b *Bus) EventsByTopic(ctx context.Context, topicPattern string, limit int) ([]event.ArbEvent, error) {
	return b.repo.EventsByTopic(ctx, topicPattern, limit)
}

// EventsSince replays persisted events after eventID, optionally filtered
// to topics, oldest first (spec.md §4.A).
func (b *Bus) EventsSince(ctx context.Context, eventID string, topics []string, limit int) ([]event.ArbEvent, error) {
	return b.repo.EventsSince(ctx, eventID, topics, limit)
}

// SubscriberCount reports how many live subscriptions the bus currently
// holds, for health/metrics reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
