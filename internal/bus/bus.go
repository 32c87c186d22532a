// Package bus provides a small in-process pub/sub used to decouple
// components: config reloads, settings changes and channel lifecycle
// notifications flow through here.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/hwestman/personabot/internal/logging"
)

// Well-known topics.
const (
	TopicConfigReloaded  = "config.reloaded"
	TopicSettingsChanged = "settings.changed"
	TopicChannelUp       = "channel.up"
	TopicChannelDown     = "channel.down"
)

// Event is a notification broadcast to subscribers.
type Event struct {
	Topic     string    // "config.reloaded", "settings.changed", ...
	Data      any       // Optional payload
	Timestamp time.Time // When the event was published
	Source    string    // Origin: "watcher", "command", "system", ...
}

// Handler processes an event. Fire and forget; no return value.
type Handler func(Event)

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

var (
	subscriptions   = make(map[string][]subscription)
	subscriptionsMu sync.RWMutex
	nextID          uint64
)

// Subscribe registers a handler for a topic and returns its SubscriptionID.
func Subscribe(topic string, handler Handler) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&nextID, 1))

	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	subscriptions[topic] = append(subscriptions[topic], subscription{id: id, handler: handler})
	L_debug("bus: subscribed", "topic", topic, "id", id)
	return id
}

// Unsubscribe removes a subscription by ID. Returns true if found.
func Unsubscribe(id SubscriptionID) bool {
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	for topic, subs := range subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				subscriptions[topic] = append(subs[:i], subs[i+1:]...)
				if len(subscriptions[topic]) == 0 {
					delete(subscriptions, topic)
				}
				return true
			}
		}
	}
	return false
}

// Publish broadcasts an event to all subscribers of the topic.
// Handlers run asynchronously in their own goroutines.
func Publish(topic string, data any) {
	PublishWithSource(topic, data, "system")
}

// PublishWithSource broadcasts an event with origin information.
func PublishWithSource(topic string, data any, source string) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	subscriptionsMu.RLock()
	subs := subscriptions[topic]
	subsCopy := make([]subscription, len(subs))
	copy(subsCopy, subs)
	subscriptionsMu.RUnlock()

	if len(subsCopy) == 0 {
		L_trace("bus: published without subscribers", "topic", topic)
		return
	}

	L_debug("bus: published", "topic", topic, "subscribers", len(subsCopy), "source", source)

	for _, sub := range subsCopy {
		go func(s subscription) {
			defer func() {
				if r := recover(); r != nil {
					L_error("bus: handler panic", "topic", topic, "id", s.id, "panic", r)
				}
			}()
			s.handler(event)
		}(sub)
	}
}

// Subscribers returns the number of subscribers for a topic.
func Subscribers(topic string) int {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()
	return len(subscriptions[topic])
}
