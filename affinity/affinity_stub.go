// ============================================================================
// NON-LINUX AFFINITY FALLBACK
// ============================================================================
//
// Platforms without sched_setaffinity(2) can still enumerate logical CPUs,
// but cannot pin a thread. Pinning reports an error so the run fails with a
// diagnostic rather than producing unpinned, meaningless numbers.

//go:build !linux

package affinity

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("thread affinity not supported on " + runtime.GOOS)

// readMask assumes every logical CPU is usable.
func readMask() ([]CoreID, error) {
	n := runtime.NumCPU()
	cores := make([]CoreID, n)
	for i := range cores {
		cores[i] = CoreID(i)
	}
	return cores, nil
}

func setThread([]CoreID) error {
	return errUnsupported
}
