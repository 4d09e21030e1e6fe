package heap

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/arena"
	"github.com/joshuapare/heapkit/internal/format"
)

// Heap is the shared facade over the free-block index variants.
//
// Implementations:
//   - ListHeap: sorted free-list index
//   - SplayHeap: augmented splay-tree index
//
// All methods are single-threaded; see the package documentation.
type Heap interface {
	// Allocate returns a handle to numBytes of 16-byte-aligned storage.
	// The handle is null when numBytes <= 0 or when no contiguous free
	// run is large enough. The heap state is unchanged on failure.
	Allocate(numBytes int) *Pointer

	// Free releases the block p refers to and detaches every handle
	// pointing into the freed (and merged) region, p included. Null,
	// foreign, misaligned, and out-of-arena handles are ignored.
	Free(p *Pointer)

	// IterateHeap performs one defragmentation step and reports whether
	// the heap is now fully defragmented. It is the caller's cooperative
	// yield point for amortizing defragmentation across frames.
	IterateHeap() bool

	// FullDefrag iterates defragmentation to convergence.
	FullDefrag()

	// FragmentationRatio is 0 for an unfragmented (or full) heap and
	// approaches 1 as free space shatters.
	FragmentationRatio() float64

	// IsFullyDefragmented reports whether all free space is one run.
	IsFullyDefragmented() bool

	// Stats returns a snapshot of heap counters.
	Stats() Stats

	// Close detaches every live handle and releases the arena.
	Close()
}

// Stats is a point-in-time snapshot of heap state and activity counters.
type Stats struct {
	TotalChunks       int32
	FreeChunks        int32
	MaxContiguousFree int32

	Allocs uint64 // successful allocations
	Frees  uint64 // successful frees
	Moves  uint64 // blocks relocated by defragmentation
	Merges uint64 // free-block coalesces
}

// counters aggregates heap activity for Stats.
type counters struct {
	allocs uint64
	frees  uint64
	moves  uint64
	merges uint64
}

// heapBase carries the state shared by both index variants.
type heapBase struct {
	arena      *arena.Arena
	data       []byte
	numChunks  int32
	freeChunks int32
	pointers   pointerList
	cfg        config
	stats      counters
}

// newBase rounds size up to whole chunks, validates it, and acquires the
// arena. Size and capacity violations are programmer errors and panic.
// The handle registry is not initialized here: its root links to its own
// address, so the constructors initialize it once the heap is in place.
func newBase(size int, metaWord int, opts []Option) heapBase {
	total := format.Align16(size)
	if total < format.MinArenaSize {
		panic(fmt.Sprintf("heap: arena of %d bytes is below the %d byte minimum", total, format.MinArenaSize))
	}
	chunks := total / format.ChunkSize
	if chunks > format.MaxChunks {
		panic(fmt.Sprintf("heap: %d chunks exceeds the 31-bit index space", chunks))
	}

	a, err := arena.Acquire(total)
	if err != nil {
		panic(fmt.Sprintf("heap: %v", err))
	}

	b := heapBase{
		arena:     a,
		data:      a.Bytes(),
		numChunks: int32(chunks),
		cfg:       buildConfig(opts),
	}
	return b
}

// requiredChunks converts a byte request into a chunk count including the
// header chunk, computed wide to survive absurd requests.
func requiredChunks(numBytes int) int64 {
	return int64(format.Align16(numBytes))/format.ChunkSize + 1
}

// validateFree maps a handle's byte offset to a block index, rejecting
// anything that cannot be an allocated block of this heap. Rejections are
// silent no-ops at the Free call sites.
func (b *heapBase) validateFree(p *Pointer, metaWord int) (int32, bool) {
	if p == nil || p.list != &b.pointers {
		return 0, false
	}
	off := p.data
	if off <= 0 || int(off) >= len(b.data) || !format.Aligned(off) {
		return 0, false
	}
	idx := format.ByteToChunk(off) - 1
	if idx <= 0 {
		return 0, false
	}
	m := format.Meta(b.data, idx, metaWord)
	n := format.MetaNumChunks(m)
	if !format.MetaAllocated(m) || n < 2 || idx+n > b.numChunks {
		return 0, false
	}
	return idx, true
}

// closeBase detaches all handles and releases the arena.
func (b *heapBase) closeBase() {
	b.pointers.removeAll()
	if b.arena != nil {
		_ = b.arena.Release()
		b.arena = nil
	}
	b.data = nil
}

func (b *heapBase) snapshot(maxContig int32) Stats {
	return Stats{
		TotalChunks:       b.numChunks,
		FreeChunks:        b.freeChunks,
		MaxContiguousFree: maxContig,
		Allocs:            b.stats.allocs,
		Frees:             b.stats.frees,
		Moves:             b.stats.moves,
		Merges:            b.stats.merges,
	}
}

// fragmentationRatio implements the shared (free - maxContig) / free rule.
// A heap with no free chunks reports 0.
func fragmentationRatio(freeChunks, maxContig int32) float64 {
	if freeChunks == 0 {
		return 0
	}
	return float64(freeChunks-maxContig) / float64(freeChunks)
}
