package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewEventBus()

	done := make(chan Event, 1)
	b.Subscribe(EventTypeTranscript, func(e Event) {
		done <- e
	})

	b.Publish(Event{Type: EventTypeTranscript, Data: map[string]any{"text": "hello"}})

	select {
	case e := <-done:
		if e.Data["text"] != "hello" {
			t.Errorf("Expected text 'hello', got %v", e.Data["text"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for event")
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	b := NewEventBus()

	callCount := atomic.Int32{}
	b.Subscribe(EventTypeSessionStarted, func(e Event) {
		callCount.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeSessionEnded})
	b.PublishSync(Event{Type: EventTypeSessionStarted})

	if callCount.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", callCount.Load())
	}
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	callCount := atomic.Int32{}
	b.SubscribeMultiple([]EventType{EventTypeSpeakingStarted, EventTypeSpeakingStopped}, func(e Event) {
		callCount.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeSpeakingStarted})
	b.PublishSync(Event{Type: EventTypeSpeakingStopped})

	if callCount.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount.Load())
	}
}

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	b := NewEventBus()

	callCount := atomic.Int32{}
	for i := 0; i < 3; i++ {
		b.Subscribe(EventTypeTurnChanged, func(e Event) {
			time.Sleep(10 * time.Millisecond)
			callCount.Add(1)
		})
	}

	b.PublishSync(Event{Type: EventTypeTurnChanged})

	if callCount.Load() != 3 {
		t.Errorf("Expected 3 handlers to complete before PublishSync returned, got %d", callCount.Load())
	}
}

func TestClear(t *testing.T) {
	b := NewEventBus()

	callCount := atomic.Int32{}
	b.Subscribe(EventTypeUserNotice, func(e Event) {
		callCount.Add(1)
	})

	b.Clear()
	b.PublishSync(Event{Type: EventTypeUserNotice})

	if callCount.Load() != 0 {
		t.Errorf("Expected 0 calls after Clear, got %d", callCount.Load())
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewEventBus()

	received := atomic.Int32{}
	for i := 0; i < 10; i++ {
		b.Subscribe(EventTypeVisemeChanged, func(e Event) {
			received.Add(1)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.PublishSync(Event{Type: EventTypeVisemeChanged})
		}()
	}
	wg.Wait()

	expected := int32(100 * 10)
	if received.Load() != expected {
		t.Errorf("Expected %d total deliveries, got %d", expected, received.Load())
	}
}
