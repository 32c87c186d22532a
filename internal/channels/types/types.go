// Package types defines the shared channel contracts. It is a
// separate package to avoid circular imports between the channels
// manager and the individual channel implementations, which both
// need these types.
package types

import (
	"context"
	"time"
)

// ManagedChannel is the lifecycle contract every chat surface
// implements. Transport details stay inside the implementations; the
// manager only starts, stops and inspects them.
type ManagedChannel interface {
	// Name identifies the channel ("discord", "telegram").
	Name() string

	// Start connects the channel and begins handling events. It
	// returns once the channel is usable; event handling runs in the
	// background until Stop.
	Start(ctx context.Context) error

	// Stop disconnects and stops event handling.
	Stop() error

	// Status reports the current connection state.
	Status() ChannelStatus
}

// Deliverer is implemented by channels that can push scheduled
// reminder deliveries back into the chat they were created from.
type Deliverer interface {
	// BotID returns the bot identity this channel serves. Reminders
	// are routed to the channel whose BotID matches.
	BotID() string

	// DeliverReminder posts the rendered reminder into the chat.
	DeliverReminder(ctx context.Context, channelID, userID, text string) error
}

// ChannelStatus is a point-in-time snapshot for the status page.
type ChannelStatus struct {
	Running   bool
	Connected bool
	Error     error
	StartedAt time.Time
	// Info is a short human-readable detail ("@botname", "webhook").
	Info string
}
