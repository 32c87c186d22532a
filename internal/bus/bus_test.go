package bus

import (
	"sync"
	"testing"
	"time"
)

// waitFor polls until cond holds or the deadline passes. Handlers run in
// their own goroutines, so tests have to wait for delivery.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishReachesSubscriber(t *testing.T) {
	var mu sync.Mutex
	var got []Event

	id := Subscribe("test.topic.a", func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer Unsubscribe(id)

	Publish("test.topic.a", "payload")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	ev := got[0]
	mu.Unlock()

	if ev.Topic != "test.topic.a" {
		t.Errorf("topic = %q, want test.topic.a", ev.Topic)
	}
	if ev.Data != "payload" {
		t.Errorf("data = %v, want payload", ev.Data)
	}
	if ev.Source != "system" {
		t.Errorf("source = %q, want system", ev.Source)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestPublishWithSourceCarriesOrigin(t *testing.T) {
	var mu sync.Mutex
	var source string

	id := Subscribe("test.topic.b", func(ev Event) {
		mu.Lock()
		source = ev.Source
		mu.Unlock()
	})
	defer Unsubscribe(id)

	PublishWithSource("test.topic.b", nil, "watcher")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return source == "watcher"
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var mu sync.Mutex
	count := 0

	id := Subscribe("test.topic.c", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	Publish("test.topic.c", nil)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	if !Unsubscribe(id) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if Unsubscribe(id) {
		t.Error("second Unsubscribe should report not found")
	}

	Publish("test.topic.c", nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times after unsubscribe, want 1", count)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	// Must not panic or block.
	Publish("test.topic.nobody", "ignored")
}

func TestHandlerPanicDoesNotSinkOtherSubscribers(t *testing.T) {
	var mu sync.Mutex
	delivered := false

	bad := Subscribe("test.topic.d", func(Event) {
		panic("handler bug")
	})
	defer Unsubscribe(bad)

	good := Subscribe("test.topic.d", func(Event) {
		mu.Lock()
		delivered = true
		mu.Unlock()
	})
	defer Unsubscribe(good)

	Publish("test.topic.d", nil)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered
	})
}

func TestSubscribersCount(t *testing.T) {
	topic := "test.topic.e"
	if n := Subscribers(topic); n != 0 {
		t.Fatalf("fresh topic has %d subscribers, want 0", n)
	}

	a := Subscribe(topic, func(Event) {})
	b := Subscribe(topic, func(Event) {})

	if n := Subscribers(topic); n != 2 {
		t.Errorf("Subscribers = %d, want 2", n)
	}

	Unsubscribe(a)
	Unsubscribe(b)

	if n := Subscribers(topic); n != 0 {
		t.Errorf("Subscribers after removal = %d, want 0", n)
	}
}
