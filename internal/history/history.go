// Package history maintains the bounded conversation context per
// (bot, user, channel) identity. Appends are durable and ordered; reads
// take a suffix window without ever mutating stored history.
package history

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/tokens"
)

// DefaultMaxTurns is the history window handed to the model when no
// setting overrides it.
const DefaultMaxTurns = 40

const stripeCount = 64

// Store is the persistence boundary for conversation turns.
type Store interface {
	// AppendTurn durably records one turn, ordered after all previous
	// appends for the same identity.
	AppendTurn(ctx context.Context, id interaction.Identity, turn interaction.Turn) error
	// ReadTurns returns up to limit most-recent turns, oldest first.
	ReadTurns(ctx context.Context, id interaction.Identity, limit int) ([]interaction.Turn, error)
	// ClearTurns removes all history for one identity.
	ClearTurns(ctx context.Context, id interaction.Identity) error
}

// Context serializes appends per conversation and serves windowed reads.
// Different identities proceed independently; the stripes only serialize
// writers that share a conversation key.
type Context struct {
	store   Store
	stripes [stripeCount]sync.Mutex
}

// New creates a conversation Context over the given store.
func New(store Store) *Context {
	return &Context{store: store}
}

func (c *Context) stripe(id interaction.Identity) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id.ConversationKey()))
	return &c.stripes[h.Sum32()%stripeCount]
}

// Append records one turn for the identity. Concurrent appends for the
// same conversation are serialized so the store never sees interleaved
// partial writes.
func (c *Context) Append(ctx context.Context, id interaction.Identity, turn interaction.Turn) error {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	if err := c.store.AppendTurn(ctx, id, turn); err != nil {
		return fmt.Errorf("appending %s turn: %w", turn.Role, err)
	}
	return nil
}

// Window returns the last maxTurns turns, oldest first. The stored
// history is never truncated; only this read view is bounded.
func (c *Context) Window(ctx context.Context, id interaction.Identity, maxTurns int) ([]interaction.Turn, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	turns, err := c.store.ReadTurns(ctx, id, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("reading history window: %w", err)
	}
	return turns, nil
}

// WindowBudgeted returns the history window additionally trimmed from the
// oldest side until the token estimate fits budget. Used when the
// provider's context size is tighter than the turn count alone implies.
func (c *Context) WindowBudgeted(ctx context.Context, id interaction.Identity, maxTurns, tokenBudget int) ([]interaction.Turn, error) {
	turns, err := c.Window(ctx, id, maxTurns)
	if err != nil {
		return nil, err
	}
	if tokenBudget <= 0 {
		return turns, nil
	}

	total := 0
	counts := make([]int, len(turns))
	for i, turn := range turns {
		counts[i] = tokens.Estimate(turn.Content) + tokens.MessageOverhead
		total += counts[i]
	}

	drop := 0
	for drop < len(turns) && total > tokenBudget {
		total -= counts[drop]
		drop++
	}
	if drop > 0 {
		L_debug("history: trimmed window to token budget", "dropped", drop, "kept", len(turns)-drop, "budget", tokenBudget)
	}
	return turns[drop:], nil
}

// Clear removes all history for one identity (the forget command).
func (c *Context) Clear(ctx context.Context, id interaction.Identity) error {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	if err := c.store.ClearTurns(ctx, id); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	L_info("history: cleared", "user", id.UserID, "channel", id.ChannelID)
	return nil
}
