// ============================================================================
// PING-PONG HANDOFF PROTOCOLS
// ============================================================================
//
// Two ways of bouncing a cache line between the initiator and the
// responder. Both time StepsPerBatch round trips per batch and keep the
// fastest batch.
//
// Load/store handoff:
//   - initiator stores n into seq1, spins until seq2 == n
//   - responder spins until seq1 == n, stores n into seq2
//   - strict alternation: one round trip of coherence traffic per step
//
// Compare-and-swap handoff:
//   - per batch: initiator resets seq1, publishes seq2 = 0; responder
//     answers seq2 = 1; initiator resets seq2 and starts the clock
//   - step n: initiator CAS seq1 2n-1 → 2n, responder CAS seq1 2n → 2n+1
//   - the responder always publishes an odd marker one above the even value
//     it observed; the initiator always advances the odd value by one
//   - clock stops once the initiator sees FinalCASMarker (2*steps-1)
//
// Spin loops are bare polls on purpose: no Gosched, no PAUSE. Anything
// that yields hands the core to the scheduler and the sample measures the
// scheduler instead of the coherence fabric.
//
// Memory ordering: sync/atomic operations are sequentially consistent,
// which is strictly stronger than the acquire loads / release stores the
// protocols need.

package probe

import (
	"fmt"
	"math"
	"strings"
	"time"

	"c2clat/constants"
)

// Protocol selects the handoff used to bounce the shared line.
type Protocol uint8

const (
	// LoadStore hands off with plain atomic stores observed by atomic loads.
	LoadStore Protocol = iota
	// CompareAndSwap hands off with compare-and-swap on a shared counter,
	// forcing line ownership to migrate through the write path every step.
	CompareAndSwap
)

// String returns the canonical protocol name.
func (p Protocol) String() string {
	switch p {
	case LoadStore:
		return "load-store"
	case CompareAndSwap:
		return "cas"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// Valid reports whether p names a known protocol.
func (p Protocol) Valid() bool {
	return p == LoadStore || p == CompareAndSwap
}

// ParseProtocol accepts the canonical names plus a few common aliases.
// The empty string selects LoadStore.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "load-store", "loadstore", "ls", "read":
		return LoadStore, nil
	case "cas", "compare-and-swap", "write":
		return CompareAndSwap, nil
	default:
		return 0, fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, s)
	}
}

func (p Protocol) initiate(c *SyncCell, batches int, now func() time.Time) time.Duration {
	if p == CompareAndSwap {
		return initiateCAS(c, batches, now)
	}
	return initiateLoadStore(c, batches, now)
}

func (p Protocol) respond(c *SyncCell, batches int) {
	if p == CompareAndSwap {
		respondCAS(c, batches)
		return
	}
	respondLoadStore(c, batches)
}

// ============================================================================
// LOAD / STORE
// ============================================================================

func initiateLoadStore(c *SyncCell, batches int, now func() time.Time) time.Duration {
	best := time.Duration(math.MaxInt64)
	for m := 0; m < batches; m++ {
		c.reset()

		start := now()
		for n := int64(0); n < constants.StepsPerBatch; n++ {
			c.seq1.Store(n)
			for c.seq2.Load() != n {
			}
		}
		if rtt := now().Sub(start); rtt < best {
			best = rtt
		}
	}
	return best
}

func respondLoadStore(c *SyncCell, batches int) {
	for m := 0; m < batches; m++ {
		for n := int64(0); n < constants.StepsPerBatch; n++ {
			for c.seq1.Load() != n {
			}
			c.seq2.Store(n)
		}
	}
}

// ============================================================================
// COMPARE-AND-SWAP
// ============================================================================

func initiateCAS(c *SyncCell, batches int, now func() time.Time) time.Duration {
	best := time.Duration(math.MaxInt64)
	for m := 0; m < batches; m++ {
		// seq1 must be back at the sentinel before the responder can see
		// the batch open, otherwise it could act on last batch's marker.
		c.seq1.Store(-1)
		c.seq2.Store(0)
		for c.seq2.Load() != 1 {
		}
		c.seq2.Store(-1)

		start := now()
		for n := int64(0); n < constants.StepsPerBatch; n++ {
			// expected value is recomputed from n on every attempt
			for !c.seq1.CompareAndSwap(2*n-1, 2*n) {
			}
		}
		for c.seq1.Load() != constants.FinalCASMarker {
		}
		if rtt := now().Sub(start); rtt < best {
			best = rtt
		}
	}
	return best
}

func respondCAS(c *SyncCell, batches int) {
	for m := 0; m < batches; m++ {
		for c.seq2.Load() != 0 {
		}
		c.seq2.Store(1)

		for n := int64(0); n < constants.StepsPerBatch; n++ {
			for !c.seq1.CompareAndSwap(2*n, 2*n+1) {
			}
		}
	}
}
