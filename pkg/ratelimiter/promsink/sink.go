// Package promsink adapts ratelimiter.EventSink to Prometheus metrics,
// following the counter/gauge registration pattern used throughout
// patrickwarner-openadserve's HTTP middleware stack: vectors keyed by
// limiter name, registered once at construction, incremented from
// request-scoped code.
package promsink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/manenim/ratelimiter/pkg/ratelimiter"
)

// Sink records Success, Failure, and Drained events as Prometheus metrics,
// plus a waiting-threads gauge. It implements ratelimiter.EventSink. The
// gauge has no corresponding EventSink method — EventSink only fires on
// Acquire/Reserve/Drain outcomes, not on the sampled Metrics().WaitingThreads
// value — so callers that want it populated call SetWaitingThreads
// themselves, typically once per request alongside the Success/Failure call.
type Sink struct {
	successTotal   *prometheus.CounterVec
	failureTotal   *prometheus.CounterVec
	drainedTotal   *prometheus.CounterVec
	permitsGrant   *prometheus.CounterVec
	permitsDenied  *prometheus.CounterVec
	waitingThreads *prometheus.GaugeVec
}

// NewSink builds a Sink and registers its metrics against reg.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		successTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_acquire_success_total",
			Help: "Number of Acquire/Reserve calls granted, by limiter name.",
		}, []string{"limiter"}),
		failureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_acquire_failure_total",
			Help: "Number of Acquire/Reserve calls refused, by limiter name.",
		}, []string{"limiter"}),
		drainedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_drained_total",
			Help: "Number of Drain calls, by limiter name.",
		}, []string{"limiter"}),
		permitsGrant: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_permits_granted_total",
			Help: "Total permits granted, by limiter name.",
		}, []string{"limiter"}),
		permitsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimiter_permits_denied_total",
			Help: "Total permits requested but refused, by limiter name.",
		}, []string{"limiter"}),
		waitingThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratelimiter_waiting_threads",
			Help: "Current number of goroutines parked waiting for a reservation to mature, by limiter name.",
		}, []string{"limiter"}),
	}
	reg.MustRegister(s.successTotal, s.failureTotal, s.drainedTotal, s.permitsGrant, s.permitsDenied, s.waitingThreads)
	return s
}

// Success implements ratelimiter.EventSink.
func (s *Sink) Success(ev ratelimiter.SuccessEvent) {
	s.successTotal.WithLabelValues(ev.Limiter).Inc()
	s.permitsGrant.WithLabelValues(ev.Limiter).Add(float64(ev.Permits))
}

// Failure implements ratelimiter.EventSink.
func (s *Sink) Failure(ev ratelimiter.FailureEvent) {
	s.failureTotal.WithLabelValues(ev.Limiter).Inc()
	s.permitsDenied.WithLabelValues(ev.Limiter).Add(float64(ev.Permits))
}

// Drained implements ratelimiter.EventSink.
func (s *Sink) Drained(ev ratelimiter.DrainedEvent) {
	s.drainedTotal.WithLabelValues(ev.Limiter).Inc()
}

// SetWaitingThreads records the current number of goroutines parked waiting
// on limiterName, as read from ratelimiter.Limiter.Metrics().WaitingThreads.
// It is not part of ratelimiter.EventSink: callers sample and report it
// themselves, since there is no discrete event for "a goroutine is waiting".
func (s *Sink) SetWaitingThreads(limiterName string, n int64) {
	s.waitingThreads.WithLabelValues(limiterName).Set(float64(n))
}
