// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: config.go — Run configuration
//
// Purpose:
//   - Holds every user-tunable knob of a run in one JSON-friendly struct.
//   - Resolves it against the process affinity mask into typed values.
//
// Notes:
//   - Precedence is defaults, then the optional JSON file, then flags the
//     user set explicitly. Layering happens in main; this package only knows
//     defaults and the file.
//   - Every rejection wraps probe.ErrInvalidConfig.
// ─────────────────────────────────────────────────────────────────────────────

package config

import (
	"fmt"
	"os"

	"c2clat/affinity"
	"c2clat/constants"
	"c2clat/probe"
	"c2clat/report"
	"c2clat/topology"

	"github.com/sugawarayuuta/sonnet"
)

// Config is the raw, unvalidated run configuration.
type Config struct {
	// CPUs is a kernel cpu list ("0-3,8"). Empty selects every cpu in the
	// affinity mask.
	CPUs       string `json:"cpus"`
	Batches    int    `json:"batches"`
	Protocol   string `json:"protocol"`
	Warmup     bool   `json:"warmup"`
	Interleave bool   `json:"interleave"`
	Format     string `json:"format"`
	// Database is the sqlite path runs are saved to. Empty disables saving.
	Database string `json:"database"`
}

// Default returns the configuration of a bare invocation.
func Default() Config {
	return Config{
		Batches:  constants.DefaultBatches,
		Protocol: probe.LoadStore.String(),
		Format:   report.FormatTable.String(),
	}
}

// Load overlays the JSON file at path on Default. Keys absent from the file
// keep their defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("%w: read config: %w", probe.ErrInvalidConfig, err)
	}
	if err := sonnet.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: parse config %s: %w", probe.ErrInvalidConfig, path, err)
	}
	return c, nil
}

// Resolved is a validated configuration.
type Resolved struct {
	CPUs       []affinity.CoreID
	Probe      probe.Config
	Format     report.Format
	Interleave bool
	Database   string
}

// Resolve validates c. Requested cpus must all lie in available; an empty
// request selects all of available.
func (c Config) Resolve(available []affinity.CoreID) (Resolved, error) {
	var r Resolved

	protocol, err := probe.ParseProtocol(c.Protocol)
	if err != nil {
		return r, err
	}
	format, err := report.ParseFormat(c.Format)
	if err != nil {
		return r, err
	}
	r.Probe = probe.Config{Batches: c.Batches, Protocol: protocol, Warmup: c.Warmup}
	if err := r.Probe.Validate(); err != nil {
		return r, err
	}

	if c.CPUs == "" {
		r.CPUs = append([]affinity.CoreID(nil), available...)
	} else {
		cpus, err := topology.ParseList(c.CPUs)
		if err != nil {
			return r, fmt.Errorf("%w: cpus: %w", probe.ErrInvalidConfig, err)
		}
		for _, id := range cpus {
			if !affinity.Contains(available, id) {
				return r, fmt.Errorf("%w: cpu %d is not in the affinity mask (%s)",
					probe.ErrInvalidConfig, id, topology.FormatList(available))
			}
		}
		r.CPUs = cpus
	}
	if len(r.CPUs) < 2 {
		return r, fmt.Errorf("%w: need at least 2 cpus, have %d", probe.ErrInvalidConfig, len(r.CPUs))
	}

	r.Format = format
	r.Interleave = c.Interleave
	r.Database = c.Database
	return r, nil
}
