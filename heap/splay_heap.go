package heap

import (
	"github.com/joshuapare/heapkit/internal/chunkmem"
	"github.com/joshuapare/heapkit/internal/format"
)

// SplayHeap is the splay-tree variant of the defraggable heap.
//
// Every block, allocated or free, is a node of a top-down splay tree keyed
// by its own chunk index, so an in-order traversal walks the arena in
// physical order. Each node caches the maximum contiguous free chunk count
// of its subtree; first-fit allocation descends on that statistic and finds
// the lowest-index fit in amortized O(log B).
//
// Chunk 1 is reserved as the splay scratch block: its link words anchor the
// left and right spines during a top-down splay.
type SplayHeap struct {
	heapBase
	root int32
}

var _ Heap = (*SplayHeap)(nil)

// NewSplayHeap constructs a splay heap over a fresh arena of at least size
// bytes, rounded up to a whole number of chunks. It panics if the rounded
// size is below 64 bytes, the chunk count exceeds 2^31-1, or the arena
// cannot be acquired.
func NewSplayHeap(size int, opts ...Option) *SplayHeap {
	h := &SplayHeap{heapBase: newBase(size, format.SplayWordMeta, opts)}
	h.pointers.init(h.data, format.SplayWordMeta)

	// Sentinel: the null node. Its cached statistic must read zero so
	// descents treat nil children as empty.
	h.setLeft(format.NullIndex, format.NullIndex)
	h.setRight(format.NullIndex, format.NullIndex)
	h.setMeta(format.NullIndex, format.PackMeta(true, 1))
	h.setMaxFree(format.NullIndex, 0)

	// Scratch: spine anchor for top-down splays. Its link words and cached
	// statistic are scribbled during a splay; the metadata word stays intact.
	h.setLeft(format.ScratchIndex, format.NullIndex)
	h.setRight(format.ScratchIndex, format.NullIndex)
	h.setMeta(format.ScratchIndex, format.PackMeta(true, 1))
	h.setMaxFree(format.ScratchIndex, 0)

	// One free block covering the rest of the arena.
	h.root = 2
	free := h.numChunks - 2
	h.setLeft(h.root, format.NullIndex)
	h.setRight(h.root, format.NullIndex)
	h.setMeta(h.root, format.PackMeta(false, free))
	h.setMaxFree(h.root, free)

	h.freeChunks = free

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, h.root+1, free-1, format.FillInit)
	}
	return h
}

// Header accessors.

func (h *SplayHeap) meta(i int32) uint32 { return format.Meta(h.data, i, format.SplayWordMeta) }
func (h *SplayHeap) setMeta(i int32, m uint32) { format.SetMeta(h.data, i, format.SplayWordMeta, m) }
func (h *SplayHeap) allocated(i int32) bool { return format.MetaAllocated(h.meta(i)) }
func (h *SplayHeap) blockChunks(i int32) int32 { return format.MetaNumChunks(h.meta(i)) }

func (h *SplayHeap) left(i int32) int32 { return format.Field(h.data, i, format.SplayWordLeft) }
func (h *SplayHeap) right(i int32) int32 { return format.Field(h.data, i, format.SplayWordRight) }
func (h *SplayHeap) maxFree(i int32) int32 { return format.Field(h.data, i, format.SplayWordMaxFree) }

func (h *SplayHeap) setLeft(i, v int32) { format.SetField(h.data, i, format.SplayWordLeft, v) }
func (h *SplayHeap) setRight(i, v int32) { format.SetField(h.data, i, format.SplayWordRight, v) }
func (h *SplayHeap) setMaxFree(i, v int32) { format.SetField(h.data, i, format.SplayWordMaxFree, v) }

// updateNodeStats restores the augment rule at node i: the cached statistic
// is the three-way max of both children and, for a free node, its own size.
// Every rotation and every link into a splay spine must call this.
func (h *SplayHeap) updateNodeStats(i int32) {
	m := h.maxFree(h.left(i))
	if r := h.maxFree(h.right(i)); r > m {
		m = r
	}
	if !h.allocated(i) {
		if n := h.blockChunks(i); n > m {
			m = n
		}
	}
	h.setMaxFree(i, m)
}

// rotateLeftChild promotes the left child of k2 and returns it.
func (h *SplayHeap) rotateLeftChild(k2 int32) int32 {
	k1 := h.left(k2)
	h.setLeft(k2, h.right(k1))
	h.setRight(k1, k2)
	h.updateNodeStats(k2)
	h.updateNodeStats(k1)
	return k1
}

// rotateRightChild promotes the right child of k1 and returns it.
func (h *SplayHeap) rotateRightChild(k1 int32) int32 {
	k2 := h.right(k1)
	h.setRight(k1, h.left(k2))
	h.setLeft(k2, k1)
	h.updateNodeStats(k1)
	h.updateNodeStats(k2)
	return k2
}

// findFreeBlock descends from t to the lowest-index free block of at least
// need chunks, or NullIndex if the subtree has no fit. The augment rule
// makes the leftward bias find the first fit in arena order.
func (h *SplayHeap) findFreeBlock(t, need int32) int32 {
	if h.maxFree(t) < need {
		return format.NullIndex
	}
	for t != format.NullIndex {
		switch {
		case h.maxFree(h.left(t)) >= need:
			t = h.left(t)
		case !h.allocated(t) && h.blockChunks(t) >= need:
			return t
		default:
			t = h.right(t)
		}
	}
	return t
}

// splay performs a top-down splay of value within the subtree rooted at t
// and returns the new root. The scratch block anchors the left and right
// spines. Comparisons against the null node are forced equal so the loop
// breaks when a descent runs off the tree; the returned root is then the
// closest node on the descent path.
func (h *SplayHeap) splay(value, t int32) int32 {
	h.setLeft(format.ScratchIndex, format.NullIndex)
	h.setRight(format.ScratchIndex, format.NullIndex)
	h.setMaxFree(format.ScratchIndex, 0)
	leftMax, rightMin := int32(format.ScratchIndex), int32(format.ScratchIndex)
	var leftSpine, rightSpine []int32

	// Null nodes compare equal to the splayed value.
	key := func(i int32) int32 {
		if i == format.NullIndex {
			return value
		}
		return i
	}

loop:
	for {
		switch {
		case value < key(t):
			if value < key(h.left(t)) {
				t = h.rotateLeftChild(t)
			}
			if h.left(t) == format.NullIndex {
				break loop
			}
			// t is now a minimum; link it into the right spine.
			h.setLeft(rightMin, t)
			h.updateNodeStats(rightMin)
			rightMin = t
			rightSpine = append(rightSpine, t)
			t = h.left(t)

		case value > key(t):
			if value > key(h.right(t)) {
				t = h.rotateRightChild(t)
			}
			if h.right(t) == format.NullIndex {
				break loop
			}
			// t is now a maximum; link it into the left spine.
			h.setRight(leftMax, t)
			h.updateNodeStats(leftMax)
			leftMax = t
			leftSpine = append(leftSpine, t)
			t = h.right(t)

		default:
			break loop
		}
	}

	// Stitch the spines back under the new root.
	h.setRight(leftMax, h.left(t))
	h.updateNodeStats(leftMax)
	h.setLeft(rightMin, h.right(t))
	h.updateNodeStats(rightMin)

	// Spine nodes were linked before their final children were known, so
	// restore the augment rule along both spines from the bottom up.
	for i := len(leftSpine) - 1; i >= 0; i-- {
		h.updateNodeStats(leftSpine[i])
	}
	for i := len(rightSpine) - 1; i >= 0; i-- {
		h.updateNodeStats(rightSpine[i])
	}

	h.setLeft(t, h.right(format.ScratchIndex))
	h.setRight(t, h.left(format.ScratchIndex))
	h.updateNodeStats(t)
	return t
}

// Allocate implements Heap.
func (h *SplayHeap) Allocate(numBytes int) *Pointer {
	if numBytes <= 0 {
		return &Pointer{}
	}
	need := requiredChunks(numBytes)
	if need > int64(h.maxFree(h.root)) {
		return &Pointer{}
	}
	required := int32(need)

	f := h.findFreeBlock(h.root, required)
	assertf(f != format.NullIndex, "subtree statistic admits %d chunks but no block found", required)
	h.root = h.splay(f, h.root)

	// Split the root free block into an allocated block and a remainder.
	rest := h.blockChunks(h.root) - required
	old := h.root
	h.setMeta(old, format.PackMeta(true, required))
	h.freeChunks -= required

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, old+1, required-1, format.FillAlloc)
	}

	if rest > 0 {
		// The remainder becomes the new root: old root as its left
		// child, old root's right subtree carried over.
		nf := old + required
		h.setLeft(nf, old)
		h.setRight(nf, h.right(old))
		h.setMeta(nf, format.PackMeta(false, rest))
		h.setRight(old, format.NullIndex)
		h.updateNodeStats(old)
		h.root = nf

		if h.cfg.debugFill {
			chunkmem.Fill(h.data, nf+1, rest-1, format.FillSplit)
		}
	}

	h.updateNodeStats(h.root)
	h.stats.allocs++
	tracef("splay alloc %d bytes -> block %d (%d chunks)", numBytes, old, required)

	return h.pointers.create(format.ChunkToByte(old + 1))
}

// Free implements Heap.
func (h *SplayHeap) Free(p *Pointer) {
	i, ok := h.validateFree(p, format.SplayWordMeta)
	if !ok || i < 2 {
		return
	}

	h.root = h.splay(i, h.root)
	assertf(h.root == i, "block %d not at root after splay (got %d)", i, h.root)

	n := h.blockChunks(h.root)
	h.setMeta(h.root, format.PackMeta(false, n))
	h.freeChunks += n
	h.stats.frees++
	tracef("splay free block %d (%d chunks)", i, n)

	// Detach handles into the block before its contents become garbage.
	h.pointers.removeRange(format.ChunkToByte(h.root), format.ChunkToByte(h.root+n))

	if h.cfg.debugFill {
		chunkmem.Fill(h.data, h.root+1, n-1, format.FillFree)
	}

	// Restore the no-two-adjacent-free invariant.

	// The physical predecessor is the maximum of the left subtree.
	if h.maxFree(h.left(h.root)) > 0 {
		l := h.splay(h.root, h.left(h.root))
		if !h.allocated(l) {
			h.setRight(l, h.right(h.root))
			h.setMeta(l, format.PackMeta(false, h.blockChunks(l)+h.blockChunks(h.root)))
			h.root = l
			h.stats.merges++
			if h.cfg.debugFill {
				chunkmem.Fill(h.data, h.root+1, h.blockChunks(h.root)-1, format.FillMerge)
			}
		} else {
			h.setLeft(h.root, l)
		}
	}

	// The physical successor is the minimum of the right subtree.
	if h.maxFree(h.right(h.root)) > 0 {
		r := h.splay(h.root, h.right(h.root))
		if !h.allocated(r) {
			h.setRight(h.root, h.right(r))
			h.setMeta(h.root, format.PackMeta(false, h.blockChunks(h.root)+h.blockChunks(r)))
			h.stats.merges++
			if h.cfg.debugFill {
				chunkmem.Fill(h.data, h.root+1, h.blockChunks(h.root)-1, format.FillMerge)
			}
		} else {
			h.setRight(h.root, r)
		}
	}

	h.updateNodeStats(h.root)
}

// IterateHeap implements Heap. One step splays the lowest free block to the
// root, moves the allocated block after it downward into it, and restores
// the adjacency invariant on the far side of the move.
func (h *SplayHeap) IterateHeap() bool {
	if h.IsFullyDefragmented() {
		return true
	}

	// The fully defragmented prefix ends up in the left subtree.
	fb := h.findFreeBlock(h.root, 1)
	h.root = h.splay(fb, h.root)
	fn := h.blockChunks(h.root)

	if h.root+fn == h.numChunks {
		// Free block is the arena suffix; nothing left to move.
		return true
	}

	// The next physical block is the minimum of the right subtree, and by
	// the adjacency invariant it must be allocated.
	a := h.splay(h.root+1, h.right(h.root))
	assertf(h.left(a) == format.NullIndex, "successor %d retains a left subtree", a)
	assertf(h.allocated(a), "adjacent blocks %d and %d both free", h.root, a)
	an := h.blockChunks(a)

	// Re-aim handles at where the block is about to live.
	h.pointers.offsetRange(format.ChunkToByte(a), format.ChunkToByte(a+an), format.ChunkToByte(h.root-a))

	f := h.root
	g := f + an // the free space shifts up by the moved block's size
	aRight := h.right(a)

	// Move the block: allocated header, user chunks, then the new free
	// header. The free header may land inside the source region, so it is
	// written only after the copy.
	h.setRight(f, g)
	h.setMeta(f, format.PackMeta(true, an))
	chunkmem.Copy(h.data, f+1, a+1, an-1)

	h.setLeft(g, format.NullIndex)
	h.setRight(g, aRight)
	h.setMeta(g, format.PackMeta(false, fn))

	h.updateNodeStats(g)
	h.updateNodeStats(f)

	// Promote the new free block over the moved one.
	h.root = h.rotateRightChild(f)

	h.stats.moves++
	if h.cfg.debugFill {
		chunkmem.Fill(h.data, h.root+1, fn-1, format.FillMove)
	}

	// The moved block's old right neighbor now borders the free space.
	if h.maxFree(h.right(h.root)) > 0 {
		r := h.splay(h.root, h.right(h.root))
		if !h.allocated(r) {
			h.setRight(h.root, h.right(r))
			h.setMeta(h.root, format.PackMeta(false, h.blockChunks(h.root)+h.blockChunks(r)))
			h.stats.merges++
			if h.cfg.debugFill {
				chunkmem.Fill(h.data, h.root+1, h.blockChunks(h.root)-1, format.FillMerge)
			}
		} else {
			h.setRight(h.root, r)
		}
		h.updateNodeStats(h.root)
	}

	return h.IsFullyDefragmented()
}

// FullDefrag implements Heap.
func (h *SplayHeap) FullDefrag() {
	for !h.IterateHeap() {
	}
}

// FragmentationRatio implements Heap.
func (h *SplayHeap) FragmentationRatio() float64 {
	return fragmentationRatio(h.freeChunks, h.maxFree(h.root))
}

// IsFullyDefragmented implements Heap.
func (h *SplayHeap) IsFullyDefragmented() bool {
	return h.maxFree(h.root) == h.freeChunks
}

// Stats implements Heap.
func (h *SplayHeap) Stats() Stats {
	return h.snapshot(h.maxFree(h.root))
}

// Close implements Heap.
func (h *SplayHeap) Close() {
	h.closeBase()
}
