package metrics

import "time"

// Global functions for dot-import usage

// MetricInc increments a counter by 1
func MetricInc(topic, operation string) {
	GetInstance().IncrementCounter(topic, operation)
}

// MetricAdd adds a value to a counter
func MetricAdd(topic, operation string, delta int64) {
	GetInstance().AddCounter(topic, operation, delta)
}

// MetricSet sets a gauge value
func MetricSet(topic, operation string, value int64) {
	GetInstance().SetGauge(topic, operation, value)
}

// MetricTimerStart begins timing an operation.
// Returns a timer key that must be passed to MetricTimerStop.
func MetricTimerStart(topic, operation string) string {
	return GetInstance().StartTiming(topic, operation)
}

// MetricTimerStop completes timing an operation
func MetricTimerStop(key string) {
	GetInstance().EndTiming(key)
}

// MetricDuration records a duration directly
func MetricDuration(topic, operation string, d time.Duration) {
	GetInstance().RecordDuration(topic, operation, d)
}

// MetricSuccess records a successful operation
func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

// MetricFail records a failed operation without reason
func MetricFail(topic, operation string) {
	GetInstance().RecordFailure(topic, operation, "")
}

// MetricFailWithReason records a failed operation with a specific reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}

// MetricOutcome records a specific outcome
func MetricOutcome(topic, operation, outcome string) {
	GetInstance().RecordOutcome(topic, operation, outcome)
}

// MetricSnapshot returns a deep copy of the current metrics tree
func MetricSnapshot() Snapshot {
	return GetInstance().GetSnapshot()
}
