package topology

import (
	"fmt"
	"sort"
	"strings"

	"c2clat/affinity"
	"c2clat/constants"

	"github.com/thediveo/cpus"
)

// ParseList parses the kernel cpu-list format ("0-3,8,10-11"). Order of
// first appearance is kept and repeats are dropped, so "-cpus 6,0-2"
// measures and prints cpu 6 first.
func ParseList(s string) ([]affinity.CoreID, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, nil
	}

	var out []affinity.CoreID
	seen := make(map[affinity.CoreID]bool)

	// Elements are handed to cpus one at a time: a whole-list parse is free
	// to normalize order, which would lose the user's ordering.
	for _, field := range strings.Split(s, ",") {
		if field == "" {
			return nil, fmt.Errorf("topology: empty element in cpu list %q", s)
		}
		list, err := cpus.NewList([]byte(field))
		if err != nil {
			return nil, fmt.Errorf("topology: cpu list %q: %w", s, err)
		}
		cores, err := expand(list)
		if err != nil {
			return nil, fmt.Errorf("topology: cpu list %q: %w", s, err)
		}
		for _, c := range cores {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// expand lists every cpu of l, range by range, rejecting ids an affinity
// mask cannot hold.
func expand(l cpus.List) ([]affinity.CoreID, error) {
	var out []affinity.CoreID
	for _, r := range l {
		lo, hi := r[0], r[1]
		if hi < lo {
			return nil, fmt.Errorf("descending range %d-%d", lo, hi)
		}
		if hi >= constants.CPUSetSize {
			return nil, fmt.Errorf("cpu %d out of range [0, %d)", hi, constants.CPUSetSize)
		}
		for c := lo; c <= hi; c++ {
			out = append(out, affinity.CoreID(c))
		}
	}
	return out, nil
}

// FormatList renders cores in the kernel cpu-list format, collapsing runs
// of consecutive ids into ranges. Input order is not preserved.
func FormatList(cores []affinity.CoreID) string {
	if len(cores) == 0 {
		return ""
	}
	sorted := make([]uint, 0, len(cores))
	for _, c := range cores {
		if c >= 0 {
			sorted = append(sorted, uint(c))
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var list cpus.List
	for _, c := range sorted {
		if n := len(list); n > 0 && c <= list[n-1][1]+1 {
			list[n-1][1] = max(list[n-1][1], c)
			continue
		}
		list = append(list, [2]uint{c, c})
	}
	return list.String()
}
