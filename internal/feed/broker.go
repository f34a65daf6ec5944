// Package feed delivers change notifications from the store to live views.
//
// Stores publish an Event for every committed write. Live views subscribe
// to the topic they render and reload their full state when signalled, so
// an Event is a "something changed" hint rather than a diff.
package feed

import (
	"context"
	"slices"
	"sync"
)

// Op is the kind of change an Event describes.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Event signals a committed change to one record.
type Event struct {
	Topic      string `json:"topic"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         Op     `json:"op"`
}

// TeamTopic is the topic carrying changes to a team record.
func TeamTopic(teamID string) string {
	return "team:" + teamID
}

// ScheduleTopic is the topic carrying changes to a team's schedules.
func ScheduleTopic(teamID string) string {
	return "schedules:" + teamID
}

// Publisher accepts committed change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// subscriptionBuffer bounds queued signals per subscriber.
const subscriptionBuffer = 16

// Broker fans events out to in-process subscribers by topic.
// It is safe for concurrent use.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives the events of one or more topics on a single
// channel until closed.
type Subscription struct {
	broker *Broker
	topics []string
	ch     chan Event
	once   sync.Once
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Topics returns the subscribed topics.
func (s *Subscription) Topics() []string {
	return slices.Clone(s.topics)
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		for _, topic := range s.topics {
			if subs, ok := s.broker.topics[topic]; ok {
				delete(subs, s)
				if len(subs) == 0 {
					delete(s.broker.topics, topic)
				}
			}
		}
		close(s.ch)
		s.broker.mu.Unlock()
	})
}

// Subscribe registers interest in topic and any further topics. Events of
// all of them arrive on the one subscription.
func (b *Broker) Subscribe(topic string, more ...string) *Subscription {
	topics := slices.Compact(slices.Sorted(slices.Values(append([]string{topic}, more...))))
	sub := &Subscription{broker: b, topics: topics, ch: make(chan Event, subscriptionBuffer)}
	b.mu.Lock()
	for _, t := range topics {
		if _, ok := b.topics[t]; !ok {
			b.topics[t] = make(map[*Subscription]struct{})
		}
		b.topics[t][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub
}

// Publish delivers ev to every subscriber of ev.Topic without blocking.
// A subscriber whose buffer is full already has an undelivered signal
// queued, so dropping the newer one loses nothing for a reloading reader.
func (b *Broker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
