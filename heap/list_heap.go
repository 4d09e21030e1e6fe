package heap

import (
	"github.com/joshuapare/heapkit/internal/chunkmem"
	"github.com/joshuapare/heapkit/internal/format"
)

// ListHeap is the sorted-free-list variant of the defraggable heap.
//
// Free blocks form a doubly-linked list threaded through their headers,
// anchored at the sentinel block and kept strictly increasing by chunk
// index. Every block additionally records its physical predecessor so that
// merge-on-free can reach the left neighbor without a scan. Index
// operations are O(F) in the number of free blocks.
type ListHeap struct {
	heapBase
	maxContig int32
}

var _ Heap = (*ListHeap)(nil)

// NewListHeap constructs a list heap over a fresh arena of at least size
// bytes, rounded up to a whole number of chunks. It panics if the rounded
// size is below 64 bytes, the chunk count exceeds 2^31-1, or the arena
// cannot be acquired.
func NewListHeap(size int, opts ...Option) *ListHeap {
	h := &ListHeap{heapBase: newBase(size, format.ListWordMeta, opts)}
	h.pointers.init(h.data, format.ListWordMeta)

	// Sentinel: permanently allocated, anchors the free list.
	h.setMeta(format.NullIndex, format.PackMeta(true, 1))
	h.setPrevFree(format.NullIndex, 1)
	h.setNextFree(format.NullIndex, 1)
	h.setPrevPhys(format.NullIndex, format.NullIndex)

	// One free block covering the rest of the arena.
	first := int32(1)
	free := h.numChunks - 1
	h.setMeta(first, format.PackMeta(false, free))
	h.setPrevFree(first, format.NullIndex)
	h.setNextFree(first, format.NullIndex)
	h.setPrevPhys(first, format.NullIndex)

	h.freeChunks = free
	h.maxContig = free

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, first+1, free-1, format.FillInit)
	}
	return h
}

// Header accessors.

func (h *ListHeap) meta(i int32) uint32 { return format.Meta(h.data, i, format.ListWordMeta) }
func (h *ListHeap) setMeta(i int32, m uint32) { format.SetMeta(h.data, i, format.ListWordMeta, m) }
func (h *ListHeap) allocated(i int32) bool { return format.MetaAllocated(h.meta(i)) }
func (h *ListHeap) blockChunks(i int32) int32 { return format.MetaNumChunks(h.meta(i)) }

func (h *ListHeap) prevFree(i int32) int32 { return format.Field(h.data, i, format.ListWordPrevFree) }
func (h *ListHeap) nextFree(i int32) int32 { return format.Field(h.data, i, format.ListWordNextFree) }
func (h *ListHeap) prevPhys(i int32) int32 { return format.Field(h.data, i, format.ListWordPrevPhys) }

func (h *ListHeap) setPrevFree(i, v int32) { format.SetField(h.data, i, format.ListWordPrevFree, v) }
func (h *ListHeap) setNextFree(i, v int32) { format.SetField(h.data, i, format.ListWordNextFree, v) }
func (h *ListHeap) setPrevPhys(i, v int32) { format.SetField(h.data, i, format.ListWordPrevPhys, v) }

// Free-list maintenance. The list runs through the sentinel in both
// directions, so unlink and splice need no head/tail special cases.

// findFree returns the first free block of at least need chunks, walking
// the list in index order, or NullIndex.
func (h *ListHeap) findFree(need int32) int32 {
	if h.maxContig < need {
		return format.NullIndex
	}
	b := h.nextFree(format.NullIndex)
	for b != format.NullIndex && h.blockChunks(b) < need {
		b = h.nextFree(b)
	}
	return b
}

// nearestFreeBelow returns the free block with the largest index below i,
// or the sentinel when i precedes every free block.
func (h *ListHeap) nearestFreeBelow(i int32) int32 {
	cur := int32(format.NullIndex)
	for {
		next := h.nextFree(cur)
		if next == format.NullIndex || next > i {
			return cur
		}
		cur = next
	}
}

// insertFreeAfter splices block i into the free list after pred.
func (h *ListHeap) insertFreeAfter(pred, i int32) {
	next := h.nextFree(pred)
	assertf(pred == format.NullIndex || pred < i, "free list order violated inserting %d after %d", i, pred)
	assertf(next == format.NullIndex || next > i, "free list order violated inserting %d before %d", i, next)
	h.setNextFree(i, next)
	h.setPrevFree(i, pred)
	h.setNextFree(pred, i)
	h.setPrevFree(next, i)
}

// removeFree unlinks block i from the free list.
func (h *ListHeap) removeFree(i int32) {
	prev, next := h.prevFree(i), h.nextFree(i)
	h.setNextFree(prev, next)
	h.setPrevFree(next, prev)
}

// replaceFree substitutes block j for block i at the same list position.
// Valid only when j occupies i's index interval, as in a split.
func (h *ListHeap) replaceFree(i, j int32) {
	prev, next := h.prevFree(i), h.nextFree(i)
	h.setPrevFree(j, prev)
	h.setNextFree(j, next)
	h.setNextFree(prev, j)
	h.setPrevFree(next, j)
}

// recomputeMaxContig rescans the free list for the largest block.
func (h *ListHeap) recomputeMaxContig() {
	var m int32
	for b := h.nextFree(format.NullIndex); b != format.NullIndex; b = h.nextFree(b) {
		if n := h.blockChunks(b); n > m {
			m = n
		}
	}
	h.maxContig = m
}

// Allocate implements Heap.
func (h *ListHeap) Allocate(numBytes int) *Pointer {
	if numBytes <= 0 {
		return &Pointer{}
	}
	need := requiredChunks(numBytes)
	if need > int64(h.maxContig) {
		return &Pointer{}
	}
	required := int32(need)

	f := h.findFree(required)
	assertf(f != format.NullIndex, "max contiguous %d admits %d chunks but no block found", h.maxContig, required)

	s := h.blockChunks(f)
	rest := s - required
	after := f + s

	h.setMeta(f, format.PackMeta(true, required))

	if rest > 0 {
		r := f + required
		h.setMeta(r, format.PackMeta(false, rest))
		h.setPrevPhys(r, f)
		h.replaceFree(f, r)
		if after < h.numChunks {
			h.setPrevPhys(after, r)
		}
		if h.cfg.debugFill {
			chunkmem.Fill(h.data, r+1, rest-1, format.FillSplit)
		}
	} else {
		h.removeFree(f)
	}

	h.freeChunks -= required
	h.recomputeMaxContig()
	h.stats.allocs++

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, f+1, required-1, format.FillAlloc)
	}
	tracef("list alloc %d bytes -> block %d (%d chunks)", numBytes, f, required)

	return h.pointers.create(format.ChunkToByte(f + 1))
}

// Free implements Heap.
func (h *ListHeap) Free(p *Pointer) {
	i, ok := h.validateFree(p, format.ListWordMeta)
	if !ok {
		return
	}
	n := h.blockChunks(i)

	h.setMeta(i, format.PackMeta(false, n))
	h.freeChunks += n
	h.stats.frees++
	tracef("list free block %d (%d chunks)", i, n)

	// Detach handles into the block before its contents become garbage.
	h.pointers.removeRange(format.ChunkToByte(i), format.ChunkToByte(i+n))

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, i+1, n-1, format.FillFree)
	}

	cur, size := i, n

	// Absorb a free right neighbor.
	if r := i + n; r < h.numChunks && !h.allocated(r) {
		rs := h.blockChunks(r)
		h.removeFree(r)
		size += rs
		h.setMeta(cur, format.PackMeta(false, size))
		if after := r + rs; after < h.numChunks {
			h.setPrevPhys(after, cur)
		}
		h.stats.merges++
		if h.cfg.debugFill {
			chunkmem.Fill(h.data, cur+1, size-1, format.FillMerge)
		}
	}

	// Absorb into a free left neighbor, which is already on the list.
	merged := false
	if l := h.prevPhys(i); !h.allocated(l) {
		ls := h.blockChunks(l)
		end := cur + size
		size += ls
		h.setMeta(l, format.PackMeta(false, size))
		if end < h.numChunks {
			h.setPrevPhys(end, l)
		}
		cur = l
		merged = true
		h.stats.merges++
		if h.cfg.debugFill {
			chunkmem.Fill(h.data, cur+1, size-1, format.FillMerge)
		}
	}

	if !merged {
		h.insertFreeAfter(h.nearestFreeBelow(cur), cur)
	}
	h.recomputeMaxContig()
}

// IterateHeap implements Heap. One step either moves the first allocated
// block after the lowest free block downward into it, or reports
// completion.
func (h *ListHeap) IterateHeap() bool {
	if h.IsFullyDefragmented() {
		return true
	}

	f := h.nextFree(format.NullIndex)
	if f == format.NullIndex {
		return true
	}
	fn := h.blockChunks(f)

	a := f + fn
	if a == h.numChunks {
		// Free block is the arena suffix; nothing left to move.
		return true
	}
	assertf(h.allocated(a), "block %d after free block %d must be allocated", a, f)
	an := h.blockChunks(a)

	// Re-aim handles at where the block is about to live.
	h.pointers.offsetRange(format.ChunkToByte(a), format.ChunkToByte(a+an), format.ChunkToByte(f-a))

	// Capture the free block's links before its header is overwritten by
	// the moved block. The new free header may land inside the source
	// region (when the moved block outgrows the gap), so it is written
	// only after the user chunks are copied out.
	prevPhysF := h.prevPhys(f)
	fPrevFree, fNextFree := h.prevFree(f), h.nextFree(f)
	g := f + an // the free space shifts up by the moved block's size

	h.setMeta(f, format.PackMeta(true, an))
	h.setPrevPhys(f, prevPhysF)
	chunkmem.Copy(h.data, f+1, a+1, an-1)

	h.setMeta(g, format.PackMeta(false, fn))
	h.setPrevPhys(g, f)
	h.setPrevFree(g, fPrevFree)
	h.setNextFree(g, fNextFree)
	h.setNextFree(fPrevFree, g)
	h.setPrevFree(fNextFree, g)

	after := a + an
	if after < h.numChunks {
		h.setPrevPhys(after, g)
	}

	h.stats.moves++
	if h.cfg.debugFill {
		chunkmem.Fill(h.data, g+1, fn-1, format.FillMove)
	}

	// The moved block's old right neighbor now borders the free space.
	if after < h.numChunks && !h.allocated(after) {
		as := h.blockChunks(after)
		h.removeFree(after)
		h.setMeta(g, format.PackMeta(false, fn+as))
		if beyond := after + as; beyond < h.numChunks {
			h.setPrevPhys(beyond, g)
		}
		h.stats.merges++
		if h.cfg.debugFill {
			chunkmem.Fill(h.data, g+1, fn+as-1, format.FillMerge)
		}
	}

	h.recomputeMaxContig()
	return h.IsFullyDefragmented()
}

// FullDefrag implements Heap.
func (h *ListHeap) FullDefrag() {
	for !h.IterateHeap() {
	}
}

// FragmentationRatio implements Heap.
func (h *ListHeap) FragmentationRatio() float64 {
	return fragmentationRatio(h.freeChunks, h.maxContig)
}

// IsFullyDefragmented implements Heap.
func (h *ListHeap) IsFullyDefragmented() bool {
	return h.maxContig == h.freeChunks
}

// Stats implements Heap.
func (h *ListHeap) Stats() Stats {
	return h.snapshot(h.maxContig)
}

// Close implements Heap.
func (h *ListHeap) Close() {
	h.closeBase()
}
