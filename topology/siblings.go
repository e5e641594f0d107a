package topology

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"c2clat/affinity"
	"c2clat/constants"

	"github.com/thediveo/cpus"
)

// SiblingSource reports the hardware threads sharing a physical core with
// core, core itself included.
type SiblingSource interface {
	Siblings(core affinity.CoreID) ([]affinity.CoreID, error)
}

// SysFS reads thread siblings from a sysfs cpu tree.
type SysFS struct {
	// Root is the directory holding cpuN entries. Empty selects
	// constants.SysfsCPURoot.
	Root string
}

// Siblings parses <root>/cpuN/topology/thread_siblings_list.
func (s SysFS) Siblings(core affinity.CoreID) ([]affinity.CoreID, error) {
	root := s.Root
	if root == "" {
		root = constants.SysfsCPURoot
	}
	path := filepath.Join(root, "cpu"+strconv.Itoa(int(core)), "topology", "thread_siblings_list")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: siblings of cpu %d: %w", core, err)
	}
	parsed, err := cpus.NewList(bytes.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("topology: %s: %w", path, err)
	}
	list, err := expand(parsed)
	if err != nil {
		return nil, fmt.Errorf("topology: %s: %w", path, err)
	}
	if !affinity.Contains(list, core) {
		return nil, fmt.Errorf("topology: %s does not list cpu %d itself", path, core)
	}
	return list, nil
}
