package ratelimiter

// SuccessEvent is emitted whenever Acquire or Reserve grants permits, either
// immediately or after a wait.
type SuccessEvent struct {
	Limiter string
	Permits int64
}

// FailureEvent is emitted whenever Acquire or Reserve refuses a request
// because it could not be granted within the caller's timeout.
type FailureEvent struct {
	Limiter string
	Permits int64
}

// DrainedEvent is emitted by Drain. PermitsDiscarded is the number of
// permits that were actually sitting unused and thrown away: a limiter
// holding a negative balance (an in-flight reservation) discards nothing,
// so PermitsDiscarded is never negative.
type DrainedEvent struct {
	Limiter          string
	PermitsDiscarded int64
}

// EventSink receives the limiter's three event kinds. The limiter calls it
// synchronously, on the goroutine that triggered the event, after its CAS
// has won, so a sink must never block that caller; the default sink is a
// no-op so the hot path never needs a nil check.
type EventSink interface {
	Success(SuccessEvent)
	Failure(FailureEvent)
	Drained(DrainedEvent)
}

// noopSink discards every event. It exists so Limiter's publish path never
// has to branch on whether a sink was configured.
type noopSink struct{}

func (noopSink) Success(SuccessEvent) {}
func (noopSink) Failure(FailureEvent) {}
func (noopSink) Drained(DrainedEvent) {}

// handlerSink fans events out to the closures registered via
// Limiter.OnSuccess/OnFailure/OnDrained, recovering any handler panic at the
// publication boundary so a broken observer can never affect limiter
// control flow.
type handlerSink struct {
	onSuccess []func(SuccessEvent)
	onFailure []func(FailureEvent)
	onDrained []func(DrainedEvent)
}

func (h *handlerSink) Success(ev SuccessEvent) {
	for _, fn := range h.onSuccess {
		callSafely(func() { fn(ev) })
	}
}

func (h *handlerSink) Failure(ev FailureEvent) {
	for _, fn := range h.onFailure {
		callSafely(func() { fn(ev) })
	}
}

func (h *handlerSink) Drained(ev DrainedEvent) {
	for _, fn := range h.onDrained {
		callSafely(func() { fn(ev) })
	}
}

// callSafely runs fn, swallowing any panic. Event handlers are caller-owned
// code; a fault in one must never propagate into the limiter.
func callSafely(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
