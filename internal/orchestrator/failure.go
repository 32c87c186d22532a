package orchestrator

import (
	"fmt"
	"math"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/llm"
)

// FailureKind classifies why an interaction did not complete normally.
type FailureKind int

const (
	FailureRateLimited FailureKind = iota
	FailureConfigurationUnavailable
	FailureUpstreamTimeout
	FailureUpstreamError
	FailureTransportError
	FailureInternalInvariant
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureConfigurationUnavailable:
		return "configuration_unavailable"
	case FailureUpstreamTimeout:
		return "upstream_timeout"
	case FailureUpstreamError:
		return "upstream_error"
	case FailureTransportError:
		return "transport_error"
	case FailureInternalInvariant:
		return "internal_invariant_violation"
	default:
		return "unknown"
	}
}

// Failure is a classified interaction failure.
type Failure struct {
	Kind FailureKind
	Err  error
	// RetryAfter is set for FailureRateLimited.
	RetryAfter time.Duration
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// User-facing reply strings. The wording is part of the bot's surface;
// channels send these verbatim.
const (
	msgTimedOut      = "⏱️ **Request timed out** — the AI service is taking too long to respond. Please try again in a moment."
	msgUpstreamAdmin = "🔧 **AI service error** — there's an issue with the AI service configuration or quota. Please tell an admin."
	msgGenericError  = "❌ **Error processing request** — something went wrong. Please try again."
)

// rateLimitedMessage renders the quota notice with a whole-second wait.
func rateLimitedMessage(retryAfter time.Duration) string {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("⏱️ You're sending commands too quickly! Please slow down. Try again in %ds.", secs)
}

// UserMessage maps a failure to the single reply the user sees.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case FailureRateLimited:
		return rateLimitedMessage(f.RetryAfter)
	case FailureUpstreamTimeout:
		return msgTimedOut
	case FailureUpstreamError:
		if llm.IsConfigIssue(llm.Classify(f.Err)) {
			return msgUpstreamAdmin
		}
		return msgGenericError
	default:
		return msgGenericError
	}
}

// Outcome maps a failure to the usage-stats outcome string.
func (f *Failure) Outcome() string {
	switch f.Kind {
	case FailureRateLimited:
		return interaction.OutcomeRateLimited
	case FailureUpstreamTimeout:
		return interaction.OutcomeExpired
	default:
		return interaction.OutcomeFailed
	}
}

// classifyUpstream folds an LLM error into the taxonomy: context
// cancellation and provider-side timeouts expire the interaction, all
// other upstream errors fail it.
func classifyUpstream(err error) *Failure {
	if llm.Classify(err) == llm.ErrorTypeTimeout {
		return &Failure{Kind: FailureUpstreamTimeout, Err: err}
	}
	return &Failure{Kind: FailureUpstreamError, Err: err}
}
