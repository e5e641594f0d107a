package probe

import "errors"

// Error kinds surfaced by the prober and the sweep built on it. Callers
// classify with errors.Is.
var (
	// ErrInvalidConfig marks a rejected run configuration. It is always
	// returned before any thread is spawned or pinned.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAffinity marks a failure to pin a participating thread. The
	// measurement it belongs to is discarded.
	ErrAffinity = errors.New("cpu affinity")
)
