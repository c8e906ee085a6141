// Package pubsub is the in-process event bus carrying live simulation
// updates to observers such as the TUI dashboard and the stats endpoint.
package pubsub

import (
	"context"
	"sync"
	"time"
)

// Topics published by the simulator
const (
	TopicDelivery = "network.delivery"
	TopicTopology = "mesh.topology"
	TopicStats    = "sim.stats"
	TopicState    = "sim.state"
)

// DeliveryEvent describes one message leaving the delivery pipeline
type DeliveryEvent struct {
	MessageID   string
	Source      string
	Destination string
	Delivered   bool
	Reason      string // set when Delivered is false
	Delay       time.Duration
	At          time.Time
}

// StateEvent announces a simulation state transition
type StateEvent struct {
	From string
	To   string
	At   time.Time
}

// Bus fans out events to topic subscribers. Sends never block: a
// subscriber that falls behind misses frames rather than stalling the
// simulation.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}

	shutdownMu sync.Mutex
	shutdown   chan struct{}
	isShutdown bool
}

// Subscription is one subscriber's handle on a topic
type Subscription struct {
	topic     string
	channel   chan any
	bus       *Bus
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewBus creates an event bus with no subscribers
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[*Subscription]struct{}),
		shutdown:    make(chan struct{}),
	}
}

// Subscribe registers for a topic. The subscription ends when the context
// is cancelled, Unsubscribe is called, or the bus shuts down. Returns nil
// after shutdown.
func (b *Bus) Subscribe(ctx context.Context, topic string) *Subscription {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return nil
	}
	b.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   topic,
		channel: make(chan any, 100),
		bus:     b,
		ctx:     subCtx,
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*Subscription]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-b.shutdown:
			sub.close()
		}
	}()

	return sub
}

// Publish delivers an event to every subscriber of a topic. Subscribers
// with a full buffer are skipped.
func (b *Bus) Publish(topic string, event any) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.shutdownMu.Unlock()

	// Snapshot under lock; sends happen outside it so a slow subscriber
	// cannot hold up Unsubscribe.
	b.mu.RLock()
	topicSubs := b.subscribers[topic]
	if len(topicSubs) == 0 {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.channel <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Shutdown closes every subscription and stops the bus
func (b *Bus) Shutdown() {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.isShutdown = true
	b.shutdownMu.Unlock()

	close(b.shutdown)

	b.mu.Lock()
	for topic := range b.subscribers {
		for sub := range b.subscribers[topic] {
			sub.close()
		}
		delete(b.subscribers, topic)
	}
	b.mu.Unlock()
}

// Channel returns the subscription's event channel
func (s *Subscription) Channel() <-chan any {
	return s.channel
}

// Unsubscribe removes the subscription and closes its channel
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.bus.subscribers[s.topic] != nil {
		delete(s.bus.subscribers[s.topic], s)
		if len(s.bus.subscribers[s.topic]) == 0 {
			delete(s.bus.subscribers, s.topic)
		}
	}

	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
