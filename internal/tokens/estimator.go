// Package tokens provides token estimation utilities using tiktoken.
package tokens

import (
	"sync"

	. "github.com/hwestman/personabot/internal/logging"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is cl100k_base, a reasonable estimator for the chat
// models this bot talks to.
const DefaultEncoding = "cl100k_base"

// MessageOverhead approximates the per-message framing tokens (role,
// separators) chat APIs add around the content.
const MessageOverhead = 4

// Estimator counts tokens for prompt budgeting. The zero value falls back
// to a chars/4 estimate when the encoding is unavailable.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	global     *Estimator
	globalOnce sync.Once
)

// Get returns the global estimator singleton.
func Get() *Estimator {
	globalOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			L_warn("tokens: estimator unavailable, using chars/4 fallback", "error", err)
			global = &Estimator{}
			return
		}
		global = &Estimator{encoding: enc}
	})
	return global
}

// Count returns the token count for a string.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Estimate counts tokens using the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}
