package ratelimiter

import (
	"testing"
	"time"
)

func cfg(refresh time.Duration, limit int64, timeout time.Duration) Config {
	return Config{RefreshPeriod: refresh, LimitForPeriod: limit, AcquireTimeout: timeout}
}

func TestNext_ImmediateGrant(t *testing.T) {
	c := cfg(time.Second, 10, 0)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 10, nanosToWait: 0}

	got := next(prev, 1, c.AcquireTimeout.Nanoseconds(), 0)

	if got.nanosToWait != 0 {
		t.Fatalf("expected no wait, got %d", got.nanosToWait)
	}
	if got.activePermissions != 9 {
		t.Fatalf("expected 9 remaining permissions, got %d", got.activePermissions)
	}
}

func TestNext_RefreshAfterIdle(t *testing.T) {
	c := cfg(time.Second, 10, 0)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 10, nanosToWait: 0}

	// Drain the whole cycle at t=0.
	s := next(prev, 10, 0, 0)
	if s.nanosToWait != 0 || s.activePermissions != 0 {
		t.Fatalf("expected full cycle drained, got %+v", s)
	}

	// At t=0.5s, timeout=0: wait is ~0.5s > 0, refused.
	s2 := next(s, 1, 0, int64(500*time.Millisecond))
	if s2.nanosToWait == 0 {
		t.Fatalf("expected a positive wait mid-cycle, got 0")
	}

	// At t=1.1s, a new cycle has started: 10 fresh permits available.
	s3 := next(s2, 1, 0, int64(1100*time.Millisecond))
	if s3.nanosToWait != 0 {
		t.Fatalf("expected immediate grant after refresh, got wait=%d", s3.nanosToWait)
	}
	if s3.activeCycle != 1 {
		t.Fatalf("expected cycle 1, got %d", s3.activeCycle)
	}
}

func TestNext_WaitWithinTimeout(t *testing.T) {
	c := cfg(100*time.Millisecond, 1, 200*time.Millisecond)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 1, nanosToWait: 0}

	// Grant at t=0 consumes the single permit for cycle 0.
	s := next(prev, 1, int64(c.AcquireTimeout), 0)
	if s.nanosToWait != 0 || s.activePermissions != 0 {
		t.Fatalf("expected immediate grant, got %+v", s)
	}

	// At t=10ms, computed wait should be ~90ms, well within the 200ms timeout.
	s2 := next(s, 1, int64(c.AcquireTimeout), int64(10*time.Millisecond))
	wantWait := int64(90 * time.Millisecond)
	if s2.nanosToWait != wantWait {
		t.Fatalf("expected wait=%d, got %d", wantWait, s2.nanosToWait)
	}
	if s2.activePermissions != -1 {
		t.Fatalf("expected a reservation (activePermissions=-1), got %d", s2.activePermissions)
	}
}

func TestNext_ReservationBeyondCycle(t *testing.T) {
	c := cfg(100*time.Millisecond, 2, time.Second)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 2, nanosToWait: 0}

	s1 := next(prev, 1, int64(c.AcquireTimeout), 0)
	s2 := next(s1, 1, int64(c.AcquireTimeout), 0)
	if s2.activePermissions != 0 {
		t.Fatalf("expected 0 remaining after two grants, got %d", s2.activePermissions)
	}

	s3 := next(s2, 1, int64(c.AcquireTimeout), 0)
	if s3.nanosToWait == 0 {
		t.Fatalf("expected third request to wait for the next cycle")
	}
	if s3.activePermissions != -1 {
		t.Fatalf("expected a reservation of -1 against the next cycle, got %d", s3.activePermissions)
	}

	// Once the reservation matures in the next cycle, the balance should
	// read 1, not -1: the reservation is honoured against the new cycle's
	// fresh credit, not stacked onto the old one.
	s4 := next(s3, 0, int64(c.AcquireTimeout), int64(100*time.Millisecond))
	if s4.activePermissions != 1 {
		t.Fatalf("expected activePermissions=1 in the new cycle, got %d", s4.activePermissions)
	}
}

func TestNext_ReserveSentinel(t *testing.T) {
	c := cfg(100*time.Millisecond, 1, 50*time.Millisecond)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 0, nanosToWait: 0}

	s := next(prev, 1, int64(c.AcquireTimeout), int64(10*time.Millisecond))
	if s.nanosToWait <= int64(c.AcquireTimeout) {
		t.Fatalf("expected wait to exceed the timeout, got wait=%d timeout=%d", s.nanosToWait, c.AcquireTimeout)
	}
	if s.activePermissions != prev.activePermissions {
		t.Fatalf("a refused request must not alter activePermissions, got %d", s.activePermissions)
	}
}

func TestNext_CapAfterLongIdle(t *testing.T) {
	// A limiter with a tiny per-cycle limit, idle for an hour, must not
	// overflow when computing accumulated credit, and must cap at
	// LimitForPeriod rather than stacking an hour's worth of cycles.
	c := cfg(time.Millisecond, 1, 0)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 0, nanosToWait: 0}

	s := next(prev, 1, 0, int64(time.Hour))

	if s.activePermissions < 0 {
		t.Fatalf("expected a non-negative permission count after refresh, got %d", s.activePermissions)
	}
	if s.nanosToWait != 0 {
		t.Fatalf("expected an immediate grant after an hour of idleness, got wait=%d", s.nanosToWait)
	}
}

func TestNext_CapAfterLongIdleWithReservationPending(t *testing.T) {
	// A reservation in flight (activePermissions=-1) that then sits idle for
	// many cycles must recover all the way to the cap, not just one cycle's
	// worth of credit: the deficit here is 3 permits (1 to reach 0, plus 2
	// more to reach the 2-permit cap), so it takes 2 cycles of credit to
	// clear, and 100 idle cycles must not under-credit it to 1.
	c := cfg(100*time.Millisecond, 2, 0)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: -1, nanosToWait: 0}

	s := next(prev, 0, 0, int64(10*time.Second))

	if s.activePermissions != 2 {
		t.Fatalf("expected recovery to the cap of 2 after a long idle period, got %d", s.activePermissions)
	}
}

func TestNext_DrainMidCycle(t *testing.T) {
	c := cfg(time.Second, 10, time.Second)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 9, nanosToWait: 0}

	drained := snapshot{config: c, activeCycle: prev.activeCycle, activePermissions: 0, nanosToWait: prev.nanosToWait}

	s := next(drained, 1, 0, 0)
	if s.nanosToWait == 0 {
		t.Fatalf("expected a non-zero wait after draining mid-cycle")
	}
}

func TestNext_Determinism(t *testing.T) {
	c := cfg(time.Second, 10, time.Second)
	prev := snapshot{config: c, activeCycle: 0, activePermissions: 3, nanosToWait: 0}

	a := next(prev, 5, int64(c.AcquireTimeout), int64(1500*time.Millisecond))
	b := next(prev, 5, int64(c.AcquireTimeout), int64(1500*time.Millisecond))

	if a.activeCycle != b.activeCycle || a.activePermissions != b.activePermissions || a.nanosToWait != b.nanosToWait {
		t.Fatalf("next() must be deterministic for identical inputs, got %+v vs %+v", a, b)
	}
}
