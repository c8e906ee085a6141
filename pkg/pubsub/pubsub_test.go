package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	sub := bus.Subscribe(context.Background(), TopicDelivery)
	if sub == nil {
		t.Fatal("Subscribe returned nil on a live bus")
	}

	event := DeliveryEvent{MessageID: "MSG_1", Source: "SENSOR_1", Destination: "GATEWAY_1", Delivered: true}
	bus.Publish(TopicDelivery, event)

	select {
	case got := <-sub.Channel():
		de, ok := got.(DeliveryEvent)
		if !ok {
			t.Fatalf("Expected DeliveryEvent, got %T", got)
		}
		if de.MessageID != "MSG_1" || !de.Delivered {
			t.Errorf("Unexpected event: %+v", de)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	delivery := bus.Subscribe(context.Background(), TopicDelivery)
	topology := bus.Subscribe(context.Background(), TopicTopology)
	defer delivery.Unsubscribe()
	defer topology.Unsubscribe()

	bus.Publish(TopicDelivery, DeliveryEvent{MessageID: "MSG_2"})

	select {
	case <-delivery.Channel():
	case <-time.After(1 * time.Second):
		t.Fatal("Delivery subscriber did not receive its event")
	}

	select {
	case got := <-topology.Channel():
		t.Errorf("Topology subscriber received foreign event: %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultipleSubscribersReceiveBroadcast(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	const n = 5
	subs := make([]*Subscription, n)
	for i := range subs {
		subs[i] = bus.Subscribe(context.Background(), TopicState)
		defer subs[i].Unsubscribe()
	}

	bus.Publish(TopicState, StateEvent{From: "STOPPED", To: "RUNNING"})

	for i, sub := range subs {
		select {
		case got := <-sub.Channel():
			se, ok := got.(StateEvent)
			if !ok || se.To != "RUNNING" {
				t.Errorf("Subscriber %d: unexpected event %v", i, got)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("Subscriber %d: timeout", i)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	sub := bus.Subscribe(context.Background(), TopicStats)
	if got := bus.SubscriberCount(TopicStats); got != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", got)
	}

	sub.Unsubscribe()
	if got := bus.SubscriberCount(TopicStats); got != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", got)
	}

	// Channel must be closed
	select {
	case _, open := <-sub.Channel():
		if open {
			t.Error("Channel still open after unsubscribe")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Channel not closed after unsubscribe")
	}
}

func TestContextCancellationEndsSubscription(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(ctx, TopicStats)

	done := make(chan struct{})
	go func() {
		for range sub.Channel() {
		}
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Subscription did not close on context cancellation")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	sub := bus.Subscribe(context.Background(), TopicDelivery)
	defer sub.Unsubscribe()

	// Overfill the subscriber buffer; Publish must return regardless
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(TopicDelivery, DeliveryEvent{MessageID: "MSG"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	sub := bus.Subscribe(context.Background(), TopicDelivery)
	defer sub.Unsubscribe()

	const n = 50
	received := make(map[string]bool)
	var mu sync.Mutex

	go func() {
		for got := range sub.Channel() {
			if de, ok := got.(DeliveryEvent); ok {
				mu.Lock()
				received[de.MessageID] = true
				mu.Unlock()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			bus.Publish(TopicDelivery, DeliveryEvent{MessageID: string(rune('A' + id%26))})
		}(i)
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 {
		t.Error("No events received from concurrent publishers")
	}
}

func TestShutdownClosesSubscriptions(t *testing.T) {
	bus := NewBus()

	sub := bus.Subscribe(context.Background(), TopicState)

	done := make(chan struct{})
	go func() {
		for range sub.Channel() {
		}
		close(done)
	}()

	bus.Shutdown()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Subscription channel did not close on shutdown")
	}

	if got := bus.Subscribe(context.Background(), TopicState); got != nil {
		t.Error("Subscribe after shutdown should return nil")
	}
}
