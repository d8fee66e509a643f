package ratelimiter

import "sync/atomic"

// fakeClock lets tests advance time deterministically instead of racing
// against the wall clock.
type fakeClock struct {
	nanos atomic.Int64
}

func (f *fakeClock) NowNanos() int64 { return f.nanos.Load() }

func (f *fakeClock) Advance(d int64) { f.nanos.Add(d) }
