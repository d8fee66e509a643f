package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"
)

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithEventSink installs an EventSink that receives every Success, Failure,
// and Drained event the limiter emits, in addition to any handlers
// registered through OnSuccess/OnFailure/OnDrained.
func WithEventSink(sink EventSink) Option {
	return func(l *Limiter) { l.sink = sink }
}

// withClock is unexported: tests substitute a fake Clock to drive cycle
// boundaries deterministically; production callers always get the default
// monotonic clock anchored at construction, per spec.
func withClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// Limiter is a lock-free token-bucket rate limiter. Every state transition
// is a single compare-and-swap on an immutable snapshot; there are no
// mutexes anywhere on the Acquire/Reserve/Drain hot path. It is safe for any
// number of concurrent callers.
type Limiter struct {
	name string
	tags map[string]string

	clock Clock
	state atomic.Pointer[snapshot]

	waitingThreads atomic.Int64

	sink     EventSink
	handlers *handlerSink
}

// New constructs a Limiter with the given name, configuration, and
// observational tags. The anchor time used for internal "now" readings is
// captured at this call. Name and tags never affect behaviour; the name is
// carried on every event, both are returned by Name and Tags, and they exist
// purely so operators can tell limiters apart.
func New(name string, cfg Config, tags map[string]string, opts ...Option) *Limiter {
	l := &Limiter{
		name:     name,
		tags:     tags,
		sink:     noopSink{},
		handlers: &handlerSink{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = newMonotonicClock()
	}
	l.state.Store(&snapshot{
		config:            cfg,
		activeCycle:       0,
		activePermissions: cfg.LimitForPeriod,
		nanosToWait:       0,
	})
	return l
}

// Name returns the limiter's constructor-supplied name.
func (l *Limiter) Name() string { return l.name }

// Tags returns the limiter's constructor-supplied observational tags.
func (l *Limiter) Tags() map[string]string { return l.tags }

// Acquire attempts to obtain permits permits, waiting up to the limiter's
// current AcquireTimeout if necessary. It returns true if the permits were
// granted (immediately or after waiting), false if they could not be
// granted within the timeout.
//
// If ctx is cancelled while Acquire is parked waiting for its reservation to
// mature, Acquire stops waiting and returns false immediately — mirroring
// the original's interrupt handling, it does not refund the already-
// deducted reservation, since undoing it race-free would require exactly
// the mutex this design avoids.
func (l *Limiter) Acquire(ctx context.Context, permits int64) bool {
	nextState, timeoutNanos := l.updateStateWithBackoff(permits)

	if nextState.nanosToWait == 0 {
		l.publishSuccess(permits)
		return true
	}

	if timeoutNanos >= nextState.nanosToWait {
		granted := l.park(ctx, time.Duration(nextState.nanosToWait))
		if granted {
			l.publishSuccess(permits)
		} else {
			l.publishFailure(permits)
		}
		return granted
	}

	l.park(ctx, time.Duration(timeoutNanos))
	l.publishFailure(permits)
	return false
}

// Reserve attempts to obtain permits permits without parking the caller. It
// returns (0, true) if permits are immediately available, (wait, true) if
// the caller should wait wait before using its reservation, or (0, false) if
// the request cannot be granted within the limiter's current
// AcquireTimeout — in which case no reservation was made. Callers that get
// (0, false) should treat it exactly like Java's -1 sentinel: refused, try
// again later.
func (l *Limiter) Reserve(permits int64) (wait time.Duration, ok bool) {
	nextState, timeoutNanos := l.updateStateWithBackoff(permits)

	if nextState.nanosToWait == 0 {
		l.publishSuccess(permits)
		return 0, true
	}
	if timeoutNanos >= nextState.nanosToWait {
		l.publishSuccess(permits)
		return time.Duration(nextState.nanosToWait), true
	}
	l.publishFailure(permits)
	return 0, false
}

// Drain sets the active permit balance to zero, keeping the active cycle,
// the configuration, and nanosToWait as they were. A positive balance is
// discarded; a negative balance (permits already reserved by waiting
// callers) is raised to zero, and callers already parked keep waiting as
// before. The emitted event's PermitsDiscarded is the number of permits
// that were actually sitting unused (never negative).
func (l *Limiter) Drain() {
	var prev *snapshot
	for {
		prev = l.state.Load()
		candidate := &snapshot{
			config:            prev.config,
			activeCycle:       prev.activeCycle,
			activePermissions: 0,
			nanosToWait:       prev.nanosToWait,
		}
		if l.state.CompareAndSwap(prev, candidate) {
			break
		}
		backoff()
	}
	l.sink.Drained(DrainedEvent{Limiter: l.name, PermitsDiscarded: max64(prev.activePermissions, 0)})
	l.handlers.Drained(DrainedEvent{Limiter: l.name, PermitsDiscarded: max64(prev.activePermissions, 0)})
}

// ChangeTimeout installs a new AcquireTimeout. Permit state (active cycle,
// active permissions) is preserved exactly: an in-flight reservation is not
// invalidated by a configuration change.
func (l *Limiter) ChangeTimeout(d time.Duration) error {
	return l.changeConfig(func(cfg Config) Config { return cfg.withTimeout(d) })
}

// ChangeLimitForPeriod installs a new LimitForPeriod. Like ChangeTimeout,
// permit state is preserved; the new limit applies to cycles from this point
// onward.
func (l *Limiter) ChangeLimitForPeriod(n int64) error {
	return l.changeConfig(func(cfg Config) Config { return cfg.withLimitForPeriod(n) })
}

func (l *Limiter) changeConfig(mutate func(Config) Config) error {
	newCfg := mutate(l.state.Load().config)
	if err := newCfg.validate(); err != nil {
		return err
	}
	for {
		prev := l.state.Load()
		candidate := &snapshot{
			config:            mutate(prev.config),
			activeCycle:       prev.activeCycle,
			activePermissions: prev.activePermissions,
			nanosToWait:       prev.nanosToWait,
		}
		if l.state.CompareAndSwap(prev, candidate) {
			return nil
		}
		backoff()
	}
}

// Metrics is a read-only snapshot of the limiter's current estimated state.
type Metrics struct {
	WaitingThreads       int64
	AvailablePermissions int64
	NanosToWaitEstimate  int64
	CurrentCycleEstimate int64
}

// Metrics reads the limiter's current state without mutating it. It works
// by simulating next() with timeoutNanos = -1, which can never satisfy
// "timeoutNanos >= wait" for any non-negative wait, so this call never
// reserves permits — it only observes what a live Acquire(1) would see.
func (l *Limiter) Metrics() Metrics {
	prev := *l.state.Load()
	estimated := next(prev, 1, -1, l.clock.NowNanos())
	return Metrics{
		WaitingThreads:       l.waitingThreads.Load(),
		AvailablePermissions: estimated.activePermissions,
		NanosToWaitEstimate:  estimated.nanosToWait,
		CurrentCycleEstimate: estimated.activeCycle,
	}
}

// OnSuccess registers a handler invoked after every successful Acquire or
// Reserve. Handler panics are recovered and swallowed; they never reach the
// caller of Acquire/Reserve.
func (l *Limiter) OnSuccess(h func(SuccessEvent)) { l.handlers.onSuccess = append(l.handlers.onSuccess, h) }

// OnFailure registers a handler invoked after every refused Acquire or
// Reserve.
func (l *Limiter) OnFailure(h func(FailureEvent)) { l.handlers.onFailure = append(l.handlers.onFailure, h) }

// OnDrained registers a handler invoked after every Drain.
func (l *Limiter) OnDrained(h func(DrainedEvent)) { l.handlers.onDrained = append(l.handlers.onDrained, h) }

// updateStateWithBackoff runs the CAS loop: read the current snapshot,
// compute the candidate next snapshot via the pure next() function, and
// attempt to install it. A losing CAS parks briefly (constant back-off, not
// a correctness requirement) before retrying on the freshly-observed
// snapshot.
func (l *Limiter) updateStateWithBackoff(permits int64) (snapshot, int64) {
	for {
		prev := l.state.Load()
		timeoutNanos := prev.config.AcquireTimeout.Nanoseconds()
		candidate := next(*prev, permits, timeoutNanos, l.clock.NowNanos())
		if l.state.CompareAndSwap(prev, &candidate) {
			return candidate, timeoutNanos
		}
		backoff()
	}
}

// backoff parks the calling goroutine for a single nanosecond after a failed
// CAS. This reduces cache-line contention on the state pointer under heavy
// contention; unbounded spinning would also be correct, so this is a
// throughput hint, not a correctness mechanism.
func backoff() {
	time.Sleep(1 * time.Nanosecond)
}

// park blocks the caller for up to d, incrementing waitingThreads on entry
// and decrementing it on every exit path. It returns false, without
// refunding the caller's already-deducted reservation, if ctx is cancelled
// before d elapses.
func (l *Limiter) park(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	l.waitingThreads.Add(1)
	defer l.waitingThreads.Add(-1)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Limiter) publishSuccess(permits int64) {
	ev := SuccessEvent{Limiter: l.name, Permits: permits}
	l.sink.Success(ev)
	l.handlers.Success(ev)
}

func (l *Limiter) publishFailure(permits int64) {
	ev := FailureEvent{Limiter: l.name, Permits: permits}
	l.sink.Failure(ev)
	l.handlers.Failure(ev)
}
