package ratelimiter

// snapshot is the immutable quadruple held behind the limiter's single
// atomic pointer. config and permit state travel together so no reader can
// ever observe a config read from one word combined with permissions from
// another — the joint update is what makes next() correct under
// unsynchronised concurrent CAS attempts.
type snapshot struct {
	config            Config
	activeCycle       int64
	activePermissions int64
	nanosToWait       int64
}

// next computes the state that results from a request for permits permits,
// willing to wait up to timeoutNanos, observed at nowNanos on the limiter's
// clock. It is pure and side-effect-free: called twice with the same
// arguments it always returns the same value, which is what lets many
// goroutines race to compute it and only the CAS winner's answer count.
//
// Step 1 refreshes the token budget for any cycles that elapsed since prev
// was installed. Step 2 computes how long a caller would have to wait for
// permits permits to become available. Step 3 reserves them, but only if
// the caller says it is willing to wait that long.
func next(prev snapshot, permits int64, timeoutNanos int64, nowNanos int64) snapshot {
	cfg := prev.config
	refreshPeriod := cfg.RefreshPeriod.Nanoseconds()
	limitForPeriod := cfg.LimitForPeriod

	cycleNow := nowNanos / refreshPeriod

	permissions := prev.activePermissions
	if cycleNow != prev.activeCycle {
		elapsedCycles := cycleNow - prev.activeCycle
		// Clamp before multiplying: only as many cycles as are actually
		// needed to refill the deficit up to the cap can ever matter, so
		// elapsedCycles is capped at that need rather than at a fixed 1.
		// permissions may be negative (an in-flight reservation), in which
		// case more than one cycle's worth of credit can legitimately be
		// needed to recover to the cap. Capping at the true need (instead of
		// letting elapsedCycles itself grow unbounded) is what keeps the
		// multiplication below from overflowing for a limiter that sat idle
		// for, say, an hour at a refresh period of a few milliseconds.
		needed := ceilDiv(limitForPeriod-permissions, limitForPeriod)
		if elapsedCycles > needed {
			elapsedCycles = needed
		}
		accumulated := elapsedCycles * limitForPeriod
		permissions = min64(permissions+accumulated, limitForPeriod)
	}

	wait := nanosToWaitForPermission(permits, refreshPeriod, limitForPeriod, permissions, nowNanos, cycleNow)

	if timeoutNanos >= wait {
		permissions -= permits
	}

	return snapshot{
		config:            cfg,
		activeCycle:       cycleNow,
		activePermissions: permissions,
		nanosToWait:       wait,
	}
}

// nanosToWaitForPermission computes how long a caller must wait for permits
// permits to become available, given availablePermissions are on hand as of
// currentCycle.
func nanosToWaitForPermission(permits, refreshPeriod, limitForPeriod, availablePermissions, nowNanos, currentCycle int64) int64 {
	if availablePermissions >= permits {
		return 0
	}
	nanosToNextCycle := (currentCycle+1)*refreshPeriod - nowNanos
	permissionsAtNextCycle := availablePermissions + limitForPeriod
	shortfall := permits - permissionsAtNextCycle
	fullCyclesToWait := ceilDiv(max64(shortfall, 0), limitForPeriod)
	return fullCyclesToWait*refreshPeriod + nanosToNextCycle
}

// ceilDiv divides x by y and rounds up. Both arguments are assumed >= 0 and
// y > 0.
func ceilDiv(x, y int64) int64 {
	return (x + y - 1) / y
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
