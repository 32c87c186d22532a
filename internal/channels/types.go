// Package channels owns the lifecycle of every chat surface the bot
// listens on. Each surface (discord, telegram, the local console) turns
// platform events into interaction requests, hands them to the
// orchestrator, and carries the replies back out. The Manager starts
// and stops them, retries failed connections in the background, and
// routes reminder deliveries to the surface that owns the target chat.
package channels

import "github.com/hwestman/personabot/internal/channels/types"

// The contracts live in the leaf package channels/types so the channel
// implementations can import them without importing the manager. The
// aliases below keep channels.ManagedChannel and friends as the
// canonical names for everything above this package.

// ManagedChannel is the lifecycle contract every chat surface
// implements. Transport details stay inside the implementations; the
// manager only starts, stops and inspects them.
type ManagedChannel = types.ManagedChannel

// Deliverer is implemented by channels that can push scheduled
// reminder deliveries back into the chat they were created from.
type Deliverer = types.Deliverer

// ChannelStatus is a point-in-time snapshot for the status page.
type ChannelStatus = types.ChannelStatus
