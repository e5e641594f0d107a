// ════════════════════════════════════════════════════════════════════════════════════════════════
// Pairwise Latency Prober
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Core-to-Core One-Way Latency Measurement
//
// Description:
//   Runs a two-thread ping-pong over a fresh SyncCell between a responder pinned to one core
//   and an initiator pinned to another, and reduces the per-batch round trips to a calibrated
//   one-way latency: best round trip / StepsPerBatch / 2.
//
// Threading model:
//   - Initiator: the calling goroutine, locked to its OS thread and pinned for the probe,
//     then restored to the startup mask and unlocked.
//   - Responder: a spawned goroutine locked to its own OS thread and pinned once. It never
//     unlocks, so the runtime retires that thread when the responder returns.
//   - The caller blocks until the responder has been joined.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package probe

import (
	"fmt"
	"runtime"
	"time"

	"c2clat/affinity"
	"c2clat/constants"
)

// Pinner restricts the calling OS thread to one core. Release undoes a Pin
// on the same thread.
type Pinner interface {
	Pin(core affinity.CoreID) error
	Release() error
}

// Config describes how every pair of a run is measured.
type Config struct {
	// Batches is the number of timed StepsPerBatch exchanges per pair.
	Batches int
	// Protocol selects the handoff.
	Protocol Protocol
	// Warmup enables the fixed busy-spin before measuring.
	Warmup bool

	// Pinner pins both participating threads. Nil selects affinity.Thread.
	Pinner Pinner
	// Clock timestamps batch boundaries. Nil selects time.Now, which
	// carries a monotonic reading.
	Clock func() time.Time
}

// Validate rejects configurations that cannot produce a measurement.
func (c Config) Validate() error {
	if c.Batches <= 0 {
		return fmt.Errorf("%w: batch count must be positive, got %d", ErrInvalidConfig, c.Batches)
	}
	if !c.Protocol.Valid() {
		return fmt.Errorf("%w: unknown protocol %v", ErrInvalidConfig, c.Protocol)
	}
	return nil
}

// Prober measures one ordered pair of cores at a time.
type Prober struct {
	batches  int
	protocol Protocol
	warmup   bool
	pinner   Pinner
	now      func() time.Time
}

// New validates cfg and returns a ready prober. No thread is touched.
func New(cfg Config) (*Prober, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Prober{
		batches:  cfg.Batches,
		protocol: cfg.Protocol,
		warmup:   cfg.Warmup,
		pinner:   cfg.Pinner,
		now:      cfg.Clock,
	}
	if p.pinner == nil {
		p.pinner = affinity.Thread{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Batches returns the configured batch count.
func (p *Prober) Batches() int { return p.batches }

// Protocol returns the configured handoff protocol.
func (p *Prober) Protocol() Protocol { return p.protocol }

// Probe measures the one-way latency between responder and initiator. The
// calling goroutine becomes the initiator for the duration of the call.
//
// A pin failure on either side returns an ErrAffinity error; no partial
// result is produced. There is no timeout: a stalled participant stalls the
// call.
func (p *Prober) Probe(responder, initiator affinity.CoreID) (d time.Duration, err error) {
	runtime.LockOSThread()
	if err := p.pinner.Pin(initiator); err != nil {
		runtime.UnlockOSThread()
		return 0, fmt.Errorf("%w: initiator on cpu %d: %w", ErrAffinity, initiator, err)
	}
	defer func() {
		if rerr := p.pinner.Release(); rerr != nil {
			// Stay locked: a thread with a foreign mask must not go back
			// to the runtime's pool.
			d, err = 0, fmt.Errorf("%w: restore initiator mask: %w", ErrAffinity, rerr)
			return
		}
		runtime.UnlockOSThread()
	}()

	cell := NewSyncCell()
	ready := make(chan error, 1)
	done := make(chan struct{})
	go p.respond(responder, cell, ready, done)

	if err := <-ready; err != nil {
		<-done
		return 0, fmt.Errorf("%w: responder on cpu %d: %w", ErrAffinity, responder, err)
	}
	if p.warmup {
		spinFor(constants.WarmupWindow)
	}

	rtt := p.protocol.initiate(cell, p.batches, p.now)
	<-done

	return OneWay(rtt), nil
}

func (p *Prober) respond(core affinity.CoreID, cell *SyncCell, ready chan<- error, done chan<- struct{}) {
	// Locked without a matching unlock: the thread carries a custom mask and
	// must exit with this goroutine.
	runtime.LockOSThread()
	defer close(done)

	if err := p.pinner.Pin(core); err != nil {
		ready <- err
		return
	}
	ready <- nil

	if p.warmup {
		spinFor(constants.WarmupWindow)
	}
	p.protocol.respond(cell, p.batches)
}

// OneWay converts a best batch round trip into the reported one-way
// latency. Negative inputs, which only a non-monotonic clock can produce,
// clamp to zero.
func OneWay(rtt time.Duration) time.Duration {
	if rtt < 0 {
		return 0
	}
	return rtt / 2 / constants.StepsPerBatch
}

// spinFor busy-waits on the wall clock for exactly d. It never sleeps.
func spinFor(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
