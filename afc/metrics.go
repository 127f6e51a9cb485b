package afc

import "time"

// Metrics receives coordinator events. internal/metrics.Collector implements it.
type Metrics interface {
	RecordInquiry(outcome string)
	RecordCacheLookup(hit bool)
	RecordDispatch(err error)
	RecordTaskOutcome(state, code string)
	RecordTaskWait(duration time.Duration)
}

// Item outcomes reported through RecordInquiry.
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeCompleted = "completed"
	OutcomeTicket    = "ticket"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
)

type noopMetrics struct{}

func (noopMetrics) RecordInquiry(string)             {}
func (noopMetrics) RecordCacheLookup(bool)           {}
func (noopMetrics) RecordDispatch(error)             {}
func (noopMetrics) RecordTaskOutcome(string, string) {}
func (noopMetrics) RecordTaskWait(time.Duration)     {}
