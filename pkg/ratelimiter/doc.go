// Package ratelimiter provides a lock-free, in-process token-bucket rate
// limiter.
//
// The primary entry point is Limiter:
//
//	cfg, _ := ratelimiter.NewConfig(
//		ratelimiter.WithRefreshPeriod(time.Second),
//		ratelimiter.WithLimitForPeriod(10),
//		ratelimiter.WithAcquireTimeout(200*time.Millisecond),
//	)
//	lim := ratelimiter.New("checkout", cfg, map[string]string{"service": "api"})
//	if lim.Acquire(ctx, 1) {
//		// permit granted
//	}
//
// # Overview
//
// Unlike a mutex-guarded bucket, every state transition here is a single
// compare-and-swap on an immutable snapshot: a pure function computes the
// candidate next state from the current snapshot and the caller's request,
// and only the goroutine that wins the CAS gets to act on its answer. There
// is no lock anywhere on the Acquire/Reserve/Drain path.
//
// # Cycles and permits
//
// Time is divided into cycles of Config.RefreshPeriod nanoseconds. At the
// start of each cycle the limiter is conceptually topped up to
// Config.LimitForPeriod permits; if a request can't be satisfied from the
// current cycle's balance, the limiter computes how many nanoseconds until
// enough future cycles' worth of permits would cover it, and — if the
// caller's timeout allows — reserves them now by letting the balance go
// negative.
//
// # Acquire vs Reserve
//
// Acquire parks the calling goroutine (honouring ctx cancellation) until its
// reservation matures, then reports whether the permit was granted. Reserve
// never parks: it reports how long the caller would have to wait, or that
// the request cannot be granted within the limiter's timeout, and lets the
// caller integrate that wait with its own scheduling.
//
// # Metrics and events
//
// Metrics() is observation-only: it simulates the next-state computation
// without installing it, so reading metrics never perturbs the limiter.
// OnSuccess, OnFailure, and OnDrained register handlers that are invoked
// after the limiter's own CAS has already won, never as part of it; a
// handler that panics never affects the limiter's control flow.
//
// # Distributed mirroring
//
// This package is intentionally in-process only: it makes no attempt at
// cross-process coordination, persistence, or clock-skew recovery across
// restarts. The sibling ratelimiter/distributed package offers a Redis-
// backed mirror for callers that want a best-effort global view across
// replicas; it is an external collaborator, not an extension of this
// package's consistency guarantees.
package ratelimiter
