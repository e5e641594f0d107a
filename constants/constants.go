// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Measurement tunables & platform paths
//
// Purpose:
//   - Defines the fixed shape of a ping-pong batch and the default run size.
//   - Centralizes the warm-up window and cache-line isolation minimum.
//
// Notes:
//   - StepsPerBatch is part of the calibration: every reported latency is
//     the best batch round trip divided by StepsPerBatch and by 2.
//   - Changing any of these values makes results incomparable with stored runs.
//
// ⚠️ No runtime logic here — all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Batch Geometry ──────────────────────────────

const (
	// StepsPerBatch is the number of handshake steps timed as one sample.
	// One step is one full round trip between initiator and responder.
	StepsPerBatch = 100

	// DefaultBatches is the number of samples taken per core pair when the
	// caller does not ask for a different count. The minimum over all of them
	// is reported.
	DefaultBatches = 1000

	// FinalCASMarker is the last value the responder publishes in a
	// compare-and-swap batch: 2*StepsPerBatch - 1.
	FinalCASMarker = 2*StepsPerBatch - 1
)

// ──────────────────────────── Thread Preparation ───────────────────────────

const (
	// WarmupWindow is the fixed busy-spin each pinned thread performs before
	// measuring, pulling the core out of deep idle states.
	WarmupWindow = 200 * time.Millisecond
)

// ─────────────────────────── Memory Layout ─────────────────────────────────

const (
	// CacheLineSize is the minimum distance, in bytes, kept between the two
	// shared sequence slots. Architectures with wider lines pad further;
	// probe refuses to build if its pad is narrower.
	CacheLineSize = 64
)

// ─────────────────────────── Platform Paths ────────────────────────────────

const (
	// SysfsCPURoot is where per-cpu topology files live on Linux.
	SysfsCPURoot = "/sys/devices/system/cpu"

	// CPUSetSize mirrors the kernel's CPU_SETSIZE: highest cpu id + 1 that an
	// affinity mask can describe.
	CPUSetSize = 1024
)

// ─────────────────────────── Output Layout ─────────────────────────────────

const (
	// CellWidth is the column width of the textual latency table.
	CellWidth = 4
)
