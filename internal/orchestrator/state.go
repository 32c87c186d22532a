package orchestrator

// State is the lifecycle position of one interaction.
type State int

const (
	StateReceived State = iota
	StateRateChecked
	StateConfigured
	StateAcknowledged
	StateCompleting
	StateDelivered
	StateFailed
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateRateChecked:
		return "rate_checked"
	case StateConfigured:
		return "configured"
	case StateAcknowledged:
		return "acknowledged"
	case StateCompleting:
		return "completing"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions or sends are permitted.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed || s == StateExpired
}

// legalTransitions guards the state machine. A rate-limited request jumps
// from RateChecked straight to Delivered; a quick interaction delivers
// from Acknowledged without a Completing phase.
var legalTransitions = map[State][]State{
	StateReceived:     {StateRateChecked, StateFailed},
	StateRateChecked:  {StateConfigured, StateDelivered, StateFailed},
	StateConfigured:   {StateAcknowledged, StateFailed},
	StateAcknowledged: {StateCompleting, StateDelivered, StateFailed},
	StateCompleting:   {StateDelivered, StateFailed, StateExpired},
}

func transitionLegal(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
