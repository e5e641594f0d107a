// affinity_linux.go - Linux CPU affinity via sched_getaffinity(2)/sched_setaffinity(2)

//go:build linux

package affinity

import (
	"fmt"

	"c2clat/constants"

	"golang.org/x/sys/unix"
)

// readMask returns the cores in the calling thread's affinity mask. At
// startup every thread inherits the process mask.
func readMask() ([]CoreID, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("affinity: sched_getaffinity: %w", err)
	}
	cores := make([]CoreID, 0, set.Count())
	for i := 0; i < constants.CPUSetSize; i++ {
		if set.IsSet(i) {
			cores = append(cores, CoreID(i))
		}
	}
	return cores, nil
}

// setThread applies a mask to the calling thread only (pid 0 is the caller's
// tid for sched_setaffinity).
func setThread(cores []CoreID) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		if int(c) >= constants.CPUSetSize {
			return fmt.Errorf("cpu %d beyond mask size %d", c, constants.CPUSetSize)
		}
		set.Set(int(c))
	}
	return unix.SchedSetaffinity(0, &set)
}
