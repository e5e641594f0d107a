// ============================================================================
// SHARED HANDSHAKE STATE
// ============================================================================
//
// A SyncCell carries the two sequence slots the initiator and responder
// hand back and forth. Each slot sits on its own cache line so a write to
// one never invalidates the line holding the other.
//
// Memory layout (per slot):
//   - CacheLinePad before the slot isolates it from whatever precedes it
//   - the slot itself (8 bytes)
//   - trailing CacheLinePad isolates it from the next slot / next object
//
// cpu.CacheLinePad is sized per architecture (64 bytes on amd64, 128 on
// arm64 and others with wider lines), never below constants.CacheLineSize.

package probe

import (
	"sync/atomic"
	"unsafe"

	"c2clat/constants"

	"golang.org/x/sys/cpu"
)

// padSize is the isolation each slot gets on either side. The array below
// fails to compile on an architecture whose pad is narrower than
// constants.CacheLineSize.
const padSize = unsafe.Sizeof(cpu.CacheLinePad{})

var _ [padSize - constants.CacheLineSize]byte

// SyncCell is the shared state of one probed pair. A fresh cell is created
// for every pair and dropped once its probe returns.
type SyncCell struct {
	_    cpu.CacheLinePad
	seq1 atomic.Int64 // initiator → responder (load/store), CAS counter
	_    cpu.CacheLinePad
	seq2 atomic.Int64 // responder → initiator (load/store), CAS readiness
	_    cpu.CacheLinePad
}

// NewSyncCell returns a cell with both slots at the -1 sentinel.
func NewSyncCell() *SyncCell {
	c := new(SyncCell)
	c.reset()
	return c
}

func (c *SyncCell) reset() {
	c.seq1.Store(-1)
	c.seq2.Store(-1)
}
