package sweep

import (
	"fmt"
	"time"

	"c2clat/affinity"
)

// Matrix holds one-way latencies between every pair of cores of a run,
// indexed by position in the core list. Cells are symmetric; the diagonal
// is never set.
type Matrix struct {
	cores []affinity.CoreID
	index map[affinity.CoreID]int
	cells []time.Duration
	set   []bool
}

// NewMatrix returns an empty matrix over cores. Core ids must be unique.
func NewMatrix(cores []affinity.CoreID) *Matrix {
	n := len(cores)
	m := &Matrix{
		cores: make([]affinity.CoreID, n),
		index: make(map[affinity.CoreID]int, n),
		cells: make([]time.Duration, n*n),
		set:   make([]bool, n*n),
	}
	copy(m.cores, cores)
	for i, c := range cores {
		if _, dup := m.index[c]; dup {
			panic(fmt.Sprintf("sweep: duplicate cpu %d in matrix", c))
		}
		m.index[c] = i
	}
	return m
}

// Len returns the number of cores.
func (m *Matrix) Len() int { return len(m.cores) }

// Cores returns the ordered core list indexing the matrix.
func (m *Matrix) Cores() []affinity.CoreID {
	out := make([]affinity.CoreID, len(m.cores))
	copy(out, m.cores)
	return out
}

// Core returns the core at position i.
func (m *Matrix) Core(i int) affinity.CoreID { return m.cores[i] }

// Set stores d for positions (i, j) and (j, i).
func (m *Matrix) Set(i, j int, d time.Duration) {
	if i == j {
		panic(fmt.Sprintf("sweep: diagonal cell (%d, %d) is never measured", i, j))
	}
	n := len(m.cores)
	m.cells[i*n+j], m.cells[j*n+i] = d, d
	m.set[i*n+j], m.set[j*n+i] = true, true
}

// At returns the latency at positions (i, j) and whether it was measured.
func (m *Matrix) At(i, j int) (time.Duration, bool) {
	n := len(m.cores)
	return m.cells[i*n+j], m.set[i*n+j]
}

// Lookup returns the latency between two cores by id.
func (m *Matrix) Lookup(a, b affinity.CoreID) (time.Duration, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.At(i, j)
}

// Complete reports whether every off-diagonal cell is populated and the
// diagonal is untouched.
func (m *Matrix) Complete() bool {
	n := len(m.cores)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.set[i*n+j] == (i == j) {
				return false
			}
		}
	}
	return true
}

// Reorder returns a copy of m indexed by order, which must be a permutation
// of m's cores. Used for presentation only.
func (m *Matrix) Reorder(order []affinity.CoreID) (*Matrix, error) {
	if len(order) != len(m.cores) {
		return nil, fmt.Errorf("sweep: reorder with %d cores, matrix has %d", len(order), len(m.cores))
	}
	pos := make([]int, len(order))
	seen := make(map[affinity.CoreID]bool, len(order))
	for k, c := range order {
		i, ok := m.index[c]
		if !ok || seen[c] {
			return nil, fmt.Errorf("sweep: reorder is not a permutation (cpu %d)", c)
		}
		seen[c] = true
		pos[k] = i
	}

	out := NewMatrix(order)
	for a := range order {
		for b := a + 1; b < len(order); b++ {
			if d, ok := m.At(pos[a], pos[b]); ok {
				out.Set(a, b, d)
			}
		}
	}
	return out, nil
}
