// ════════════════════════════════════════════════════════════════════════════════════════════════
// Latency Matrix Rendering
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Result Output
//
// Description:
//   Writes a completed latency matrix in one of three forms: the classic fixed-width table,
//   the same table wrapped in a self-contained gnuplot heat-map script, or a JSON document
//   for downstream tooling. All latencies are whole nanoseconds.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"c2clat/constants"
	"c2clat/probe"
	"c2clat/sweep"
	"c2clat/utils"

	"github.com/sugawarayuuta/sonnet"
)

// Format selects the output form.
type Format uint8

const (
	FormatTable Format = iota
	FormatGnuplot
	FormatJSON
)

// String returns the flag spelling of f.
func (f Format) String() string {
	switch f {
	case FormatTable:
		return "table"
	case FormatGnuplot:
		return "plot"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat accepts "table", "plot" (or "gnuplot") and "json". The empty
// string selects the table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "text":
		return FormatTable, nil
	case "plot", "gnuplot":
		return FormatGnuplot, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: unknown output format %q", probe.ErrInvalidConfig, s)
	}
}

// Meta carries the run parameters echoed in JSON output.
type Meta struct {
	Protocol probe.Protocol
	Batches  int
	Warmup   bool
}

// Render writes m to w in format f.
func Render(w io.Writer, f Format, m *sweep.Matrix, meta Meta) error {
	switch f {
	case FormatTable:
		return Table(w, m)
	case FormatGnuplot:
		return Gnuplot(w, m)
	case FormatJSON:
		return JSON(w, m, meta)
	default:
		return fmt.Errorf("report: unsupported format %v", f)
	}
}

// ───────────────────────────── Text Table ──────────────────────────────────

// cellNanos returns the cell value as printed: whole nanoseconds, 0 for the
// diagonal and for anything unmeasured.
func cellNanos(m *sweep.Matrix, i, j int) int64 {
	d, ok := m.At(i, j)
	if !ok {
		return 0
	}
	return int64(d / time.Nanosecond)
}

// appendTable renders the header row and one row per core.
func appendTable(dst []byte, m *sweep.Matrix) []byte {
	n := m.Len()
	dst = utils.AppendPadded(dst, []byte("CPU"), constants.CellWidth)
	for i := 0; i < n; i++ {
		dst = append(dst, ' ')
		dst = utils.AppendPaddedInt(dst, int64(m.Core(i)), constants.CellWidth)
	}
	dst = append(dst, '\n')

	for i := 0; i < n; i++ {
		dst = utils.AppendPaddedInt(dst, int64(m.Core(i)), constants.CellWidth)
		for j := 0; j < n; j++ {
			dst = append(dst, ' ')
			dst = utils.AppendPaddedInt(dst, cellNanos(m, i, j), constants.CellWidth)
		}
		dst = append(dst, '\n')
	}
	return dst
}

// Table writes the fixed-width latency table.
func Table(w io.Writer, m *sweep.Matrix) error {
	_, err := w.Write(appendTable(make([]byte, 0, tableSize(m.Len())), m))
	return err
}

func tableSize(n int) int {
	return (n + 1) * ((n+1)*(constants.CellWidth+1) + 1)
}

// ─────────────────────────── Gnuplot Script ────────────────────────────────

const gnuplotHeader = "set title \"Inter-core one-way data latency between CPU cores\"\n" +
	"set xlabel \"CPU\"\n" +
	"set ylabel \"CPU\"\n" +
	"set cblabel \"Latency (ns)\"\n" +
	"$data << EOD\n"

const gnuplotFooter = "EOD\n" +
	"plot '$data' matrix rowheaders columnheaders using 2:1:3 notitle with image, " +
	"'$data' matrix rowheaders columnheaders using 2:1:(sprintf(\"%g\",$3)) notitle with labels\n"

// Gnuplot writes a script that renders the table as a labelled heat map.
func Gnuplot(w io.Writer, m *sweep.Matrix) error {
	buf := make([]byte, 0, len(gnuplotHeader)+tableSize(m.Len())+len(gnuplotFooter))
	buf = append(buf, gnuplotHeader...)
	buf = appendTable(buf, m)
	buf = append(buf, gnuplotFooter...)
	_, err := w.Write(buf)
	return err
}

// ───────────────────────────── JSON Document ───────────────────────────────

// Document is the JSON form of a run. Diagonal cells are null.
type Document struct {
	CPUs      []int      `json:"cpus"`
	Protocol  string     `json:"protocol"`
	Batches   int        `json:"batches"`
	Warmup    bool       `json:"warmup"`
	LatencyNs [][]*int64 `json:"latency_ns"`
}

// NewDocument converts m and meta into their JSON form.
func NewDocument(m *sweep.Matrix, meta Meta) Document {
	n := m.Len()
	doc := Document{
		CPUs:      make([]int, n),
		Protocol:  meta.Protocol.String(),
		Batches:   meta.Batches,
		Warmup:    meta.Warmup,
		LatencyNs: make([][]*int64, n),
	}
	for i := 0; i < n; i++ {
		doc.CPUs[i] = int(m.Core(i))
		row := make([]*int64, n)
		for j := 0; j < n; j++ {
			if _, ok := m.At(i, j); ok {
				v := cellNanos(m, i, j)
				row[j] = &v
			}
		}
		doc.LatencyNs[i] = row
	}
	return doc
}

// JSON writes the run as a single JSON document followed by a newline.
func JSON(w io.Writer, m *sweep.Matrix, meta Meta) error {
	buf, err := sonnet.Marshal(NewDocument(m, meta))
	if err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	_, err = w.Write(append(buf, '\n'))
	return err
}
