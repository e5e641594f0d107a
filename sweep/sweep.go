// ════════════════════════════════════════════════════════════════════════════════════════════════
// Topology Sweep Driver
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: All-Pairs Latency Matrix Assembly
//
// Description:
//   Schedules every unordered pair {i, j}, i < j, of the run's cores into a FIFO and drains it
//   one probe at a time. The responder goes on cores[i], the calling goroutine initiates from
//   cores[j], and the responder is joined before the next pair starts. Probes never overlap:
//   a second concurrent pair would compete for cores and skew both readings.
//
// Failure model:
//   - Configuration problems are reported before the first probe
//   - Any probe error aborts the sweep; a partial matrix is never returned
//   - An interrupt is honoured between probes with ErrInterrupted
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package sweep

import (
	"errors"
	"fmt"
	"time"

	"c2clat/affinity"
	"c2clat/control"
	"c2clat/debug"
	"c2clat/probe"

	"github.com/eapache/queue"
)

// ErrInterrupted is returned when control.Interrupt was called while a sweep
// was running. The pair in flight is always finished first.
var ErrInterrupted = errors.New("sweep: interrupted")

// Prober measures one ordered pair. *probe.Prober satisfies it.
type Prober interface {
	Probe(responder, initiator affinity.CoreID) (time.Duration, error)
}

// pair is a scheduled probe, by position in the core list.
type pair struct {
	responder, initiator int
}

// Driver runs sweeps with a fixed prober.
type Driver struct {
	prober Prober

	// OnProbe, when set, is called after each pair has been measured and
	// its responder joined.
	OnProbe func(responder, initiator affinity.CoreID, latency time.Duration)
}

// NewDriver returns a driver measuring pairs with p.
func NewDriver(p Prober) *Driver {
	return &Driver{prober: p}
}

// PairCount returns the number of probes a sweep over n cores performs.
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// ValidateCores checks that cores can index a latency matrix: at least two
// of them, none negative, none repeated.
func ValidateCores(cores []affinity.CoreID) error {
	if len(cores) < 2 {
		return fmt.Errorf("%w: need at least 2 cpus, got %d", probe.ErrInvalidConfig, len(cores))
	}
	seen := make(map[affinity.CoreID]struct{}, len(cores))
	for _, c := range cores {
		if c < 0 {
			return fmt.Errorf("%w: negative cpu %d", probe.ErrInvalidConfig, c)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: cpu %d listed twice", probe.ErrInvalidConfig, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// schedule queues every unordered pair in row-major order: (0,1), (0,2),
// ..., (1,2), ...
func schedule(n int) *queue.Queue {
	q := queue.New()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			q.Add(pair{responder: i, initiator: j})
		}
	}
	return q
}

// Sweep probes every unordered pair of cores exactly once, sequentially,
// and returns the completed matrix.
func (d *Driver) Sweep(cores []affinity.CoreID) (*Matrix, error) {
	if err := ValidateCores(cores); err != nil {
		return nil, err
	}

	pending := schedule(len(cores))
	m := NewMatrix(cores)
	control.BeginSweep(pending.Length())
	started := time.Now()

	for pending.Length() > 0 {
		if control.Interrupted() {
			done, total := control.Progress()
			return nil, fmt.Errorf("%w after %d of %d probes", ErrInterrupted, done, total)
		}
		p := pending.Remove().(pair)
		a, b := cores[p.responder], cores[p.initiator]

		latency, err := d.prober.Probe(a, b)
		if err != nil {
			return nil, fmt.Errorf("sweep: cpu %d <-> cpu %d: %w", a, b, err)
		}
		m.Set(p.responder, p.initiator, latency)
		control.ProbeDone()

		debug.Log().Debug().
			Int("responder", int(a)).
			Int("initiator", int(b)).
			Dur("latency", latency).
			Msg("probe")
		if d.OnProbe != nil {
			d.OnProbe(a, b, latency)
		}
	}

	debug.Log().Info().
		Int("cpus", len(cores)).
		Int("pairs", PairCount(len(cores))).
		Dur("elapsed", time.Since(started)).
		Msg("sweep complete")
	return m, nil
}

// Run validates the cores and probe configuration, then sweeps them with a
// prober built from cfg. Nothing is spawned or pinned if validation fails.
func Run(cores []affinity.CoreID, cfg probe.Config) (*Matrix, error) {
	if err := ValidateCores(cores); err != nil {
		return nil, err
	}
	p, err := probe.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewDriver(p).Sweep(cores)
}
