// Package ratelimit enforces a sliding-window request quota per
// (bot, user) identity. A denied check does not consume quota, so a user
// who retries while blocked is not penalized further.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

const shardCount = 16

// Defaults match the production quota: 10 requests per rolling minute.
const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// Result of a rate check.
type Result struct {
	Allowed bool
	// RetryAfter is how long until the oldest counted request leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter tracks request timestamps per identity key. Keys are sharded so
// unrelated users never contend on a common lock.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time
	shards      [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// New creates a Limiter with the given quota and window. Non-positive
// values fall back to the defaults.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string][]time.Time)
	}
	return l
}

// SetNow overrides the clock; tests use this for deterministic windows.
func (l *Limiter) SetNow(now func() time.Time) {
	l.now = now
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

// Check evaluates and records one request for (botID, userID) atomically.
// Timestamps older than the window are pruned first; if the remaining
// count is under the quota the request is recorded and allowed, otherwise
// it is denied without being recorded.
func (l *Limiter) Check(botID, userID string) Result {
	key := botID + "\x00" + userID
	now := l.now()
	cutoff := now.Add(-l.window)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	times := s.windows[key]

	// Prune expired entries in place. Entries are appended in time order,
	// so the retained suffix stays ordered.
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxRequests {
		s.windows[key] = kept
		retryAfter := l.window - now.Sub(kept[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		L_debug("ratelimit: denied", "user", userID, "bot", botID, "retry_after", retryAfter)
		MetricInc("ratelimit", "denied")
		return Result{Allowed: false, RetryAfter: retryAfter}
	}

	s.windows[key] = append(kept, now)
	MetricInc("ratelimit", "allowed")
	return Result{Allowed: true}
}

// RetryIn reports how long (bot, user) must wait before a request would be
// allowed, without recording anything. Zero means a request would pass now.
func (l *Limiter) RetryIn(botID, userID string) time.Duration {
	key := botID + "\x00" + userID
	now := l.now()
	cutoff := now.Add(-l.window)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest time.Time
	count := 0
	for _, t := range s.windows[key] {
		if t.After(cutoff) {
			if count == 0 {
				oldest = t
			}
			count++
		}
	}
	if count < l.maxRequests {
		return 0
	}
	return l.window - now.Sub(oldest)
}

// Reset drops all recorded requests for one identity.
func (l *Limiter) Reset(botID, userID string) {
	key := botID + "\x00" + userID
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}
