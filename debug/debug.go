// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Cold-path diagnostics for the measurement tool
//
// Purpose:
//   - Reports setup failures, configuration problems and sweep progress.
//   - Exposes a structured logger for per-probe detail in verbose mode.
//
// Notes:
//   - Backed by zerolog with a console writer on stderr, so stdout stays
//     reserved for the latency table / plot script / JSON document.
//   - Output and level are swappable for tests.
//
// ⚠️ Never invoke from a spin loop or a timed region — logging allocates and
//    may block on the writer, both of which distort measurements.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, zerolog.InfoLevel)
)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// SetOutput redirects all diagnostics to w, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, logger.GetLevel())
}

// SetVerbose toggles debug-level output (per-probe lines).
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = logger.Level(level)
}

// Log returns the current structured logger.
func Log() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// DropError logs a tagged failure. A nil err logs the prefix alone as a
// warning, which is used for cheap trace tags.
func DropError(prefix string, err error) {
	l := Log()
	if err != nil {
		l.Error().Err(err).Msg(prefix)
		return
	}
	l.Warn().Msg(prefix)
}

// DropMessage logs an informational message under a short tag.
func DropMessage(prefix, message string) {
	Log().Info().Str("tag", prefix).Msg(message)
}
