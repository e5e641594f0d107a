// ============================================================================
// PAIRWISE PROBER VALIDATION SUITE
// ============================================================================
//
// Test categories:
//   - Configuration: rejection before any thread is touched
//   - Calibration: round trip → one-way normalization with a scripted clock
//   - Reduction: minimum over batches never grows with more batches
//   - Protocols: load/store and CAS complete under real scheduling
//   - Pinning: both participants pinned, failures surfaced as ErrAffinity
//   - Layout: sequence slots isolated on separate cache lines
//
// Hardware-dependent cases skip when GOMAXPROCS < 2 (two spinning threads
// would serialize on one P) or when affinity is unsupported.

package probe

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"c2clat/affinity"
	"c2clat/constants"
)

// ============================================================================
// TEST UTILITIES AND HELPERS
// ============================================================================

// recordingPinner records pin requests without touching thread affinity.
type recordingPinner struct {
	mu       sync.Mutex
	pins     []affinity.CoreID
	releases int
	fail     map[affinity.CoreID]error
}

func (p *recordingPinner) Pin(core affinity.CoreID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins = append(p.pins, core)
	return p.fail[core]
}

func (p *recordingPinner) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func (p *recordingPinner) snapshot() ([]affinity.CoreID, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]affinity.CoreID, len(p.pins))
	copy(out, p.pins)
	return out, p.releases
}

// scriptedClock makes batch k last exactly batches[k]. The initiator calls
// the clock once at batch start and once at batch end, from one goroutine.
type scriptedClock struct {
	base    time.Time
	batches []time.Duration
	calls   int
}

func (c *scriptedClock) now() time.Time {
	k := c.calls / 2
	start := c.base.Add(time.Duration(k) * time.Hour)
	end := c.calls%2 == 1
	c.calls++
	if end {
		return start.Add(c.batches[k])
	}
	return start
}

func requireParallel(t *testing.T) {
	t.Helper()
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("needs GOMAXPROCS >= 2 for two spinning participants")
	}
}

func mustProber(t *testing.T, cfg Config) *Prober {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

var protocols = []Protocol{LoadStore, CompareAndSwap}

// ============================================================================
// CONFIGURATION
// ============================================================================

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "Zero batches", cfg: Config{Batches: 0}},
		{name: "Negative batches", cfg: Config{Batches: -5}},
		{name: "Unknown protocol", cfg: Config{Batches: 10, Protocol: Protocol(7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinner := &recordingPinner{}
			tt.cfg.Pinner = pinner
			p, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if p != nil {
				t.Fatal("prober returned alongside error")
			}
			if pins, _ := pinner.snapshot(); len(pins) != 0 {
				t.Fatalf("pinner touched during validation: %v", pins)
			}
		})
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		input    string
		expected Protocol
		wantErr  bool
	}{
		{input: "", expected: LoadStore},
		{input: "load-store", expected: LoadStore},
		{input: " LS ", expected: LoadStore},
		{input: "cas", expected: CompareAndSwap},
		{input: "Write", expected: CompareAndSwap},
		{input: "mesi", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseProtocol(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseProtocol(%q) err = %v, want ErrInvalidConfig", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.expected {
			t.Errorf("ParseProtocol(%q) = %v, %v; want %v", tt.input, got, err, tt.expected)
		}
		if again, _ := ParseProtocol(got.String()); again != got {
			t.Errorf("String() of %v does not parse back", got)
		}
	}
}

// ============================================================================
// CALIBRATION
// ============================================================================

func TestOneWay(t *testing.T) {
	tests := []struct {
		rtt      time.Duration
		expected time.Duration
	}{
		{rtt: 0, expected: 0},
		{rtt: 20 * time.Microsecond, expected: 100 * time.Nanosecond},
		{rtt: 199, expected: 0},
		{rtt: 200, expected: 1},
		{rtt: 12345, expected: 61},
		{rtt: -1, expected: 0},
	}
	for _, tt := range tests {
		if got := OneWay(tt.rtt); got != tt.expected {
			t.Errorf("OneWay(%v) = %v, want %v", tt.rtt, got, tt.expected)
		}
	}
}

// A loopback pair that answers instantly, timed by a clock that reports
// exactly 20µs per batch, must report 20µs / 100 steps / 2 = 100ns.
func TestProbeNormalizationZeroLatencyChannel(t *testing.T) {
	requireParallel(t)

	for _, proto := range protocols {
		t.Run(proto.String(), func(t *testing.T) {
			clock := &scriptedClock{base: time.Unix(0, 0), batches: []time.Duration{20 * time.Microsecond}}
			p := mustProber(t, Config{
				Batches:  1,
				Protocol: proto,
				Pinner:   &recordingPinner{},
				Clock:    clock.now,
			})

			got, err := p.Probe(0, 1)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if got != 100*time.Nanosecond {
				t.Fatalf("latency = %v, want 100ns", got)
			}
			if clock.calls != 2 {
				t.Fatalf("clock read %d times, want 2", clock.calls)
			}
		})
	}
}

// ============================================================================
// REDUCTION
// ============================================================================

func TestProbeMinimumNonIncreasingWithBatches(t *testing.T) {
	requireParallel(t)

	rng := rand.New(rand.NewSource(42))
	samples := make([]time.Duration, 24)
	for i := range samples {
		// base 8µs round trip plus up to 40µs of synthetic noise
		samples[i] = 8*time.Microsecond + time.Duration(rng.Int63n(int64(40*time.Microsecond)))
	}

	prev := time.Duration(1<<63 - 1)
	for n := 1; n <= len(samples); n++ {
		clock := &scriptedClock{base: time.Unix(0, 0), batches: samples[:n]}
		p := mustProber(t, Config{
			Batches:  n,
			Protocol: LoadStore,
			Pinner:   &recordingPinner{},
			Clock:    clock.now,
		})
		got, err := p.Probe(0, 1)
		if err != nil {
			t.Fatalf("Probe(%d batches): %v", n, err)
		}
		if got > prev {
			t.Fatalf("%d batches gave %v, more than %v with fewer batches", n, got, prev)
		}
		if got < 0 {
			t.Fatalf("negative latency %v", got)
		}
		prev = got
	}
}

// ============================================================================
// PROTOCOLS UNDER REAL SCHEDULING
// ============================================================================

func TestProbeCompletesUnpinned(t *testing.T) {
	requireParallel(t)

	for _, proto := range protocols {
		t.Run(proto.String(), func(t *testing.T) {
			p := mustProber(t, Config{Batches: 20, Protocol: proto, Pinner: &recordingPinner{}})
			got, err := p.Probe(0, 1)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if got < 0 {
				t.Fatalf("negative latency %v", got)
			}
		})
	}
}

func TestProbeWarmupSpinsBeforeMeasuring(t *testing.T) {
	requireParallel(t)

	for _, proto := range protocols {
		t.Run(proto.String(), func(t *testing.T) {
			pinner := &recordingPinner{}
			p := mustProber(t, Config{Batches: 3, Protocol: proto, Warmup: true, Pinner: pinner})

			start := time.Now()
			got, err := p.Probe(0, 1)
			elapsed := time.Since(start)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if got < 0 {
				t.Fatalf("negative latency %v", got)
			}
			if elapsed < constants.WarmupWindow {
				t.Fatalf("probe with warm-up took %v, want >= %v", elapsed, constants.WarmupWindow)
			}
			if pins, releases := pinner.snapshot(); len(pins) != 2 || releases != 1 {
				t.Fatalf("pins %v, releases %d", pins, releases)
			}
		})
	}
}

func TestSpinForNeverReturnsEarly(t *testing.T) {
	for _, d := range []time.Duration{0, time.Microsecond, time.Millisecond, 15 * time.Millisecond} {
		start := time.Now()
		spinFor(d)
		if elapsed := time.Since(start); elapsed < d {
			t.Errorf("spinFor(%v) returned after %v", d, elapsed)
		}
	}
}

// Both participants pinned to the same core: the OS time-slices them, so
// every handoff costs a context switch, but the protocol must still finish.
func TestProbeSameCore(t *testing.T) {
	if testing.Short() {
		t.Skip("same-core handoff is slow")
	}
	if runtime.GOOS != "linux" {
		t.Skip("thread affinity only supported on linux")
	}
	requireParallel(t)

	cores, err := affinity.Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	core := cores[0]

	for _, proto := range protocols {
		t.Run(proto.String(), func(t *testing.T) {
			p := mustProber(t, Config{Batches: 1, Protocol: proto})
			got, err := p.Probe(core, core)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if got < 0 {
				t.Fatalf("negative latency %v", got)
			}
		})
	}
}

func TestProbeCrossCorePinned(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("thread affinity only supported on linux")
	}
	requireParallel(t)

	cores, err := affinity.Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(cores) < 2 {
		t.Skip("needs two usable cores")
	}

	p := mustProber(t, Config{Batches: 50, Protocol: LoadStore})
	got, err := p.Probe(cores[0], cores[1])
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if got <= 0 || got > time.Millisecond {
		t.Fatalf("implausible one-way latency %v", got)
	}
}

// ============================================================================
// CAS STEP PARITY
// ============================================================================

// Walks the CAS handoff single-threaded, alternating initiator and responder
// moves, and checks that each side's CAS only succeeds on its own turn.
func TestCASParityTrace(t *testing.T) {
	c := NewSyncCell()

	for n := int64(0); n < constants.StepsPerBatch; n++ {
		// responder cannot move before the initiator's step n
		if c.seq1.CompareAndSwap(2*n, 2*n+1) {
			t.Fatalf("step %d: responder moved out of turn", n)
		}
		if !c.seq1.CompareAndSwap(2*n-1, 2*n) {
			t.Fatalf("step %d: initiator CAS failed on %d", n, c.seq1.Load())
		}
		// initiator cannot run ahead to step n+1
		if c.seq1.CompareAndSwap(2*n+1, 2*n+2) {
			t.Fatalf("step %d: initiator ran ahead", n)
		}
		if !c.seq1.CompareAndSwap(2*n, 2*n+1) {
			t.Fatalf("step %d: responder CAS failed on %d", n, c.seq1.Load())
		}
	}
	if got := c.seq1.Load(); got != constants.FinalCASMarker {
		t.Fatalf("final marker = %d, want %d", got, constants.FinalCASMarker)
	}
}

// ============================================================================
// PINNING
// ============================================================================

func TestProbePinsBothParticipants(t *testing.T) {
	requireParallel(t)

	pinner := &recordingPinner{}
	p := mustProber(t, Config{Batches: 2, Pinner: pinner})
	if _, err := p.Probe(3, 7); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	pins, releases := pinner.snapshot()
	if len(pins) != 2 || pins[0] != 7 || pins[1] != 3 {
		t.Fatalf("pins = %v, want initiator 7 then responder 3", pins)
	}
	if releases != 1 {
		t.Fatalf("releases = %d, want 1 (initiator only)", releases)
	}
}

func TestProbeResponderPinFailure(t *testing.T) {
	cause := errors.New("invalid argument")
	pinner := &recordingPinner{fail: map[affinity.CoreID]error{4: cause}}
	p := mustProber(t, Config{Batches: 10, Pinner: pinner})

	got, err := p.Probe(4, 0)
	if !errors.Is(err, ErrAffinity) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrAffinity wrapping cause", err)
	}
	if got != 0 {
		t.Fatalf("latency %v returned alongside error", got)
	}
	if _, releases := pinner.snapshot(); releases != 1 {
		t.Fatalf("initiator not released after responder failure")
	}
}

func TestProbeInitiatorPinFailure(t *testing.T) {
	cause := errors.New("no such cpu")
	pinner := &recordingPinner{fail: map[affinity.CoreID]error{9: cause}}
	p := mustProber(t, Config{Batches: 10, Pinner: pinner})

	if _, err := p.Probe(0, 9); !errors.Is(err, ErrAffinity) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrAffinity wrapping cause", err)
	}
	pins, releases := pinner.snapshot()
	if len(pins) != 1 {
		t.Fatalf("responder spawned after initiator pin failure: %v", pins)
	}
	if releases != 0 {
		t.Fatalf("release called for a failed pin")
	}
}

// ============================================================================
// LAYOUT
// ============================================================================

func TestSyncCellLayout(t *testing.T) {
	var c SyncCell
	seq1 := unsafe.Offsetof(c.seq1)
	seq2 := unsafe.Offsetof(c.seq2)
	size := unsafe.Sizeof(c)

	if seq1 < constants.CacheLineSize {
		t.Errorf("seq1 at offset %d, want >= %d leading pad", seq1, constants.CacheLineSize)
	}
	if seq2-seq1 < constants.CacheLineSize {
		t.Errorf("seq1/seq2 %d bytes apart, want >= %d", seq2-seq1, constants.CacheLineSize)
	}
	if size-seq2 < constants.CacheLineSize {
		t.Errorf("only %d bytes from seq2 to end, want >= %d", size-seq2, constants.CacheLineSize)
	}
}

func TestPadCoversCacheLine(t *testing.T) {
	if padSize < constants.CacheLineSize {
		t.Fatalf("pad is %d bytes, want >= %d", padSize, constants.CacheLineSize)
	}
	if got := unsafe.Offsetof(SyncCell{}.seq2) - unsafe.Offsetof(SyncCell{}.seq1); got < padSize {
		t.Fatalf("slots %d bytes apart, want >= pad size %d", got, padSize)
	}
}

func TestNewSyncCellSentinels(t *testing.T) {
	c := NewSyncCell()
	if c.seq1.Load() != -1 || c.seq2.Load() != -1 {
		t.Fatalf("fresh cell = (%d, %d), want (-1, -1)", c.seq1.Load(), c.seq2.Load())
	}
}

// ============================================================================
// BENCHMARKS
// ============================================================================

func BenchmarkLoadStoreBatchUnpinned(b *testing.B) {
	if runtime.GOMAXPROCS(0) < 2 {
		b.Skip("needs GOMAXPROCS >= 2")
	}
	p, err := New(Config{Batches: b.N, Protocol: LoadStore, Pinner: &recordingPinner{}})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	if _, err := p.Probe(0, 1); err != nil {
		b.Fatal(err)
	}
}
