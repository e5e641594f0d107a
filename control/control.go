// control.go — Global sweep progress and interrupt bookkeeping
// ============================================================================
// SWEEP PROGRESS COORDINATION
// ============================================================================
//
// Control package exposes lock-free counters describing how far the current
// topology sweep has progressed. The sweep driver advances them between
// probes; the signal handler reads them when the process is interrupted so
// the diagnostic can say how many pairs were measured before the abort.
//
// Architecture overview:
//   • Single writer: the sweep driver, strictly between probes
//   • Interrupt is raised by the signal handler and polled between probes
//   • Any number of readers: signal handler, tests
//   • Counters are never touched from inside a timed region
//
// Threading model:
//   • BeginSweep resets both counters before the first probe
//   • ProbeDone advances the completed count after each joined probe
//   • Progress may be called concurrently from any goroutine

package control

import "sync/atomic"

// ============================================================================
// GLOBAL STATE MANAGEMENT
// ============================================================================

var (
	probesTotal atomic.Int64 // Pairs scheduled for the running sweep
	probesDone  atomic.Int64 // Pairs whose responder has been joined
	interrupted atomic.Bool  // Set once a termination signal was observed
)

// ============================================================================
// SWEEP LIFECYCLE
// ============================================================================

// BeginSweep records the number of pairs the sweep will probe and clears the
// completed count.
func BeginSweep(total int) {
	probesDone.Store(0)
	probesTotal.Store(int64(total))
}

// ProbeDone marks one more pair as measured.
func ProbeDone() {
	probesDone.Add(1)
}

// Progress returns completed and scheduled probe counts.
func Progress() (done, total int) {
	return int(probesDone.Load()), int(probesTotal.Load())
}

// ============================================================================
// INTERRUPT SIGNALING
// ============================================================================

// Interrupt flags the run as externally terminated. It reports whether this
// call was the first to do so.
func Interrupt() bool {
	return interrupted.CompareAndSwap(false, true)
}

// Interrupted reports whether Interrupt has been called.
func Interrupted() bool {
	return interrupted.Load()
}

// Reset clears the counters and the interrupt flag.
func Reset() {
	probesTotal.Store(0)
	probesDone.Store(0)
	interrupted.Store(false)
}
