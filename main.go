// ════════════════════════════════════════════════════════════════════════════════════════════════
// Core-to-Core Latency Meter - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: c2clat
// Component: Command Line Orchestration
//
// Description:
//   Measures one-way cache-line handoff latency between every pair of usable CPU cores and
//   prints the matrix as a table, a gnuplot script or JSON.
//   Configure → Quiesce runtime → Sweep → Render → Persist
//
// Exit codes:
//   - 0:   success
//   - 1:   affinity, database or output failure
//   - 2:   invalid configuration
//   - 130: interrupted by SIGINT/SIGTERM
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	rtdebug "runtime/debug"
	"syscall"
	"time"

	"c2clat/affinity"
	"c2clat/config"
	"c2clat/constants"
	"c2clat/control"
	"c2clat/debug"
	"c2clat/probe"
	"c2clat/report"
	"c2clat/store"
	"c2clat/sweep"
	"c2clat/topology"
	"c2clat/utils"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COMMAND LINE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// options is the parsed command line.
type options struct {
	cfg     config.Config
	history bool
	show    int64
	verbose bool
}

// parseArgs layers defaults, the optional -config file and explicitly set
// flags, in that order.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("c2clat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: c2clat [-p | -json] [-s number_of_samples] [-cas] [-warmup] [-interleave] [-cpus list] [-db path]")
		fmt.Fprintln(stderr, "       c2clat -db path -history | -show id")
		fs.PrintDefaults()
	}

	var (
		opts       options
		cfgPath    = fs.String("config", "", "JSON configuration file")
		samples    = fs.Int("s", constants.DefaultBatches, "number of samples (batches) per core pair")
		plot       = fs.Bool("p", false, "print a gnuplot script instead of a table")
		asJSON     = fs.Bool("json", false, "print JSON instead of a table")
		cas        = fs.Bool("cas", false, "use the compare-and-swap (write) protocol")
		warmup     = fs.Bool("warmup", false, "busy-spin both threads before measuring")
		interleave = fs.Bool("interleave", false, "order output so hardware-thread siblings are adjacent")
		cpus       = fs.String("cpus", "", "cpu list to measure, e.g. 0-3,8 (default: affinity mask)")
		db         = fs.String("db", "", "sqlite database to save runs to")
	)
	fs.BoolVar(&opts.history, "history", false, "list runs stored in -db and exit")
	fs.Int64Var(&opts.show, "show", 0, "render stored run `id` from -db and exit")
	fs.BoolVar(&opts.verbose, "v", false, "log every probe")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected argument %q", probe.ErrInvalidConfig, fs.Arg(0))
	}
	if *plot && *asJSON {
		return opts, fmt.Errorf("%w: -p and -json are mutually exclusive", probe.ErrInvalidConfig)
	}

	opts.cfg = config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			return opts, err
		}
		opts.cfg = c
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "s":
			opts.cfg.Batches = *samples
		case "p":
			if *plot {
				opts.cfg.Format = report.FormatGnuplot.String()
			}
		case "json":
			if *asJSON {
				opts.cfg.Format = report.FormatJSON.String()
			}
		case "cas":
			if *cas {
				opts.cfg.Protocol = probe.CompareAndSwap.String()
			} else {
				opts.cfg.Protocol = probe.LoadStore.String()
			}
		case "warmup":
			opts.cfg.Warmup = *warmup
		case "interleave":
			opts.cfg.Interleave = *interleave
		case "cpus":
			opts.cfg.CPUs = *cpus
		case "db":
			opts.cfg.Database = *db
		}
	})
	return opts, nil
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, sweep.ErrInterrupted):
		return exitInterrupted
	case errors.Is(err, probe.ErrInvalidConfig):
		return exitUsage
	default:
		return exitFailure
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		debug.DropError("C2CLAT", err)
	}
	os.Exit(exitCode(err))
}

// run executes one invocation, writing results to stdout.
func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	debug.SetVerbose(opts.verbose)

	if opts.history || opts.show != 0 {
		return browse(opts, stdout)
	}

	available, err := affinity.Available()
	if err != nil {
		return err
	}
	res, err := opts.cfg.Resolve(available)
	if err != nil {
		return err
	}
	debug.DropMessage("INIT", utils.Itoa(len(res.CPUs))+" cpus ("+topology.FormatList(res.CPUs)+"), "+
		utils.Itoa(sweep.PairCount(len(res.CPUs)))+" pairs, "+res.Probe.Protocol.String())

	setupSignalHandling()

	// Collect now and keep the collector out of the timed loops.
	runtime.GC()
	rtdebug.FreeOSMemory()
	prevGC := rtdebug.SetGCPercent(-1)

	started := time.Now()
	m, err := sweep.Run(res.CPUs, res.Probe)
	elapsed := time.Since(started)
	rtdebug.SetGCPercent(prevGC)
	if err != nil {
		return err
	}

	if res.Interleave {
		m = interleaved(m)
	}

	meta := report.Meta{Protocol: res.Probe.Protocol, Batches: res.Probe.Batches, Warmup: res.Probe.Warmup}
	if err := report.Render(stdout, res.Format, m, meta); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if res.Database != "" {
		return save(res.Database, meta, m, started, elapsed)
	}
	return nil
}

// interleaved reorders m so hardware-thread siblings sit next to each other.
// Topology errors leave the measured order in place.
func interleaved(m *sweep.Matrix) *sweep.Matrix {
	order, err := topology.Interleave(m.Cores(), topology.SysFS{Root: constants.SysfsCPURoot})
	if err != nil {
		debug.DropError("TOPOLOGY", err)
		return m
	}
	r, err := m.Reorder(order)
	if err != nil {
		debug.DropError("TOPOLOGY", err)
		return m
	}
	return r
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RUN HISTORY
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func save(path string, meta report.Meta, m *sweep.Matrix, started time.Time, elapsed time.Duration) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	id, err := s.SaveRun(store.Run{
		Host:      host,
		Protocol:  meta.Protocol,
		Batches:   meta.Batches,
		Warmup:    meta.Warmup,
		StartedAt: started,
		Elapsed:   elapsed,
	}, m)
	if err != nil {
		return err
	}
	debug.DropMessage("STORE", "saved run "+utils.Itoa(int(id))+" to "+path)
	return nil
}

// browse serves -history and -show from the configured database.
func browse(opts options, stdout io.Writer) error {
	if opts.cfg.Database == "" {
		return fmt.Errorf("%w: -history and -show need -db", probe.ErrInvalidConfig)
	}
	format, err := report.ParseFormat(opts.cfg.Format)
	if err != nil {
		return err
	}
	s, err := store.Open(opts.cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.history {
		runs, err := s.Runs()
		if err != nil {
			return err
		}
		return writeHistory(stdout, runs)
	}

	r, m, err := s.LoadRun(opts.show)
	if err != nil {
		return err
	}
	return report.Render(stdout, format, m, report.Meta{Protocol: r.Protocol, Batches: r.Batches, Warmup: r.Warmup})
}

// writeHistory prints one line per stored run.
func writeHistory(w io.Writer, runs []store.Run) error {
	buf := make([]byte, 0, 128*(len(runs)+1))
	buf = append(buf, "    ID  STARTED              PROTOCOL    BATCHES  WARMUP  HOST / CPUS / FINGERPRINT\n"...)
	for _, r := range runs {
		buf = utils.AppendPaddedInt(buf, r.ID, 6)
		buf = append(buf, "  "...)
		buf = append(buf, r.StartedAt.Format("2006-01-02 15:04:05")...)
		buf = append(buf, "  "...)
		buf = append(buf, r.Protocol.String()...)
		for pad := 10 - len(r.Protocol.String()); pad > 0; pad-- {
			buf = append(buf, ' ')
		}
		buf = utils.AppendPaddedInt(buf, int64(r.Batches), 9)
		if r.Warmup {
			buf = append(buf, "     yes  "...)
		} else {
			buf = append(buf, "      no  "...)
		}
		buf = append(buf, r.Host...)
		buf = append(buf, ' ')
		buf = append(buf, topology.FormatList(r.CPUs)...)
		buf = append(buf, ' ')
		buf = append(buf, r.Fingerprint[:min(12, len(r.Fingerprint))]...)
		buf = append(buf, '\n')
	}
	_, err := w.Write(buf)
	return err
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SYSTEM LIFECYCLE MANAGEMENT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// setupSignalHandling asks the sweep to stop after the pair in flight on the
// first SIGINT/SIGTERM and exits immediately on the second.
func setupSignalHandling() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for range sigChan {
			done, total := control.Progress()
			if control.Interrupt() {
				debug.Log().Warn().
					Int("done", done).
					Int("total", total).
					Msg("interrupt received, stopping after the current pair")
				continue
			}
			debug.DropMessage("SIGNAL", "second interrupt, exiting with "+utils.Itoa(done)+"/"+utils.Itoa(total)+" pairs measured")
			os.Exit(exitInterrupted)
		}
	}()
}
