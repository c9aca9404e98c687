package controller

import "time"

// MetricsReporter receives controller events for monitoring. The controller
// calls these hooks synchronously from the tick thread; implementations must
// be cheap. The default reporter discards everything.
type MetricsReporter interface {
	// RecordSessionTransition is called on every session FSM status change.
	RecordSessionTransition(label string, role Role, from, to SessionStatus)

	// RecordConnectAttempt is called before each dial attempt.
	RecordConnectAttempt(label string)

	// RecordExchange is called after each websocket exchange completes.
	RecordExchange(label string, success bool)

	// RecordSeriesSubmitted is called when a request series is queued.
	RecordSeriesSubmitted(label string)

	// RecordSeriesClaimed is called when a response series is consumed.
	RecordSeriesClaimed(label string)

	// RecordStatusMessage is called for every status message harvested from
	// a peer by the per-tick status drain. Messages the controller produces
	// itself are not reported.
	RecordStatusMessage(severity string)

	// RecordTick is called at the end of every Tick with its duration.
	RecordTick(elapsed time.Duration)
}

// nopMetrics is the default reporter.
type nopMetrics struct{}

func (nopMetrics) RecordSessionTransition(string, Role, SessionStatus, SessionStatus) {}
func (nopMetrics) RecordConnectAttempt(string)                                       {}
func (nopMetrics) RecordExchange(string, bool)                                       {}
func (nopMetrics) RecordSeriesSubmitted(string)                                      {}
func (nopMetrics) RecordSeriesClaimed(string)                                        {}
func (nopMetrics) RecordStatusMessage(string)                                        {}
func (nopMetrics) RecordTick(time.Duration)                                          {}
