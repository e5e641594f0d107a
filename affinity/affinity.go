// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: affinity.go — Usable core discovery & OS-thread pinning
//
// Purpose:
//   - Captures the process affinity mask once, producing the immutable list
//     of cores a run may probe.
//   - Pins the calling OS thread to a single core and restores the captured
//     mask afterwards.
//
// Notes:
//   - Callers must hold runtime.LockOSThread while a pin is in effect; the
//     pin applies to the OS thread, not to the goroutine.
//   - Platform files provide readMask/setThread; unsupported platforms
//     report an error instead of silently running unpinned.
// ─────────────────────────────────────────────────────────────────────────────

package affinity

import (
	"fmt"
	"sync"
)

// CoreID identifies a logical CPU as exposed by the scheduler's affinity
// mechanism.
type CoreID int

var (
	startupOnce  sync.Once
	startupCores []CoreID
	startupErr   error
)

func captureStartup() {
	startupOnce.Do(func() {
		startupCores, startupErr = readMask()
		if startupErr == nil && len(startupCores) == 0 {
			startupErr = fmt.Errorf("affinity: empty process affinity mask")
		}
	})
}

// Available returns the cores present in the process affinity mask, in
// ascending order. The mask is read on the first call and cached; later
// changes to process affinity are not observed.
func Available() ([]CoreID, error) {
	captureStartup()
	if startupErr != nil {
		return nil, startupErr
	}
	out := make([]CoreID, len(startupCores))
	copy(out, startupCores)
	return out, nil
}

// Contains reports whether core is part of cores.
func Contains(cores []CoreID, core CoreID) bool {
	for _, c := range cores {
		if c == core {
			return true
		}
	}
	return false
}

// Thread pins the calling OS thread.
type Thread struct{}

// Pin restricts the calling OS thread to core.
func (Thread) Pin(core CoreID) error {
	if core < 0 {
		return fmt.Errorf("affinity: negative cpu %d", core)
	}
	if err := setThread([]CoreID{core}); err != nil {
		return fmt.Errorf("affinity: pin to cpu %d: %w", core, err)
	}
	return nil
}

// Release restores the calling OS thread to the startup affinity mask.
func (Thread) Release() error {
	captureStartup()
	if startupErr != nil {
		return startupErr
	}
	if err := setThread(startupCores); err != nil {
		return fmt.Errorf("affinity: restore startup mask: %w", err)
	}
	return nil
}
