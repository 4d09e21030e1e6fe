package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

// ============================================================================
// Heap construction helpers
// ============================================================================

// variant pairs a heap constructor with its name for table-driven tests
// that must hold on both free-block indexes.
type variant struct {
	name     string
	newHeap  func(size int, opts ...Option) Heap
	reserved int32 // chunks reserved by sentinels
}

func variants() []variant {
	return []variant{
		{"list", func(size int, opts ...Option) Heap { return NewListHeap(size, opts...) }, 1},
		{"splay", func(size int, opts ...Option) Heap { return NewSplayHeap(size, opts...) }, 2},
	}
}

func newTestHeap(t testing.TB, v variant, size int, opts ...Option) Heap {
	t.Helper()
	h := v.newHeap(size, opts...)
	t.Cleanup(h.Close)
	return h
}

// fillPayload stamps a deterministic byte pattern, seeded by tag, over a
// handle's user region.
func fillPayload(t testing.TB, p *Pointer, tag byte) {
	t.Helper()
	b := p.Get()
	require.NotNil(t, b)
	for i := range b {
		b[i] = tag ^ byte(i)
	}
}

func checkPayload(t testing.TB, p *Pointer, tag byte) {
	t.Helper()
	b := p.Get()
	require.NotNil(t, b)
	for i := range b {
		require.Equal(t, tag^byte(i), b[i], "payload byte %d diverged", i)
	}
}

// ============================================================================
// Block scanning
// ============================================================================

// blockInfo describes one block seen in a physical arena scan.
type blockInfo struct {
	idx  int32
	size int32
	free bool
}

func (h *ListHeap) scanBlocks() []blockInfo {
	return scanBlocks(h.data, h.numChunks, format.ListWordMeta)
}

func (h *SplayHeap) scanBlocks() []blockInfo {
	return scanBlocks(h.data, h.numChunks, format.SplayWordMeta)
}

func scanBlocks(data []byte, numChunks int32, metaWord int) []blockInfo {
	var blocks []blockInfo
	for i := int32(0); i < numChunks; {
		m := format.Meta(data, i, metaWord)
		n := format.MetaNumChunks(m)
		if n <= 0 {
			// Corrupt size; bail so the caller's assertions fail loudly.
			break
		}
		blocks = append(blocks, blockInfo{idx: i, size: n, free: !format.MetaAllocated(m)})
		i += n
	}
	return blocks
}

// ============================================================================
// Invariant checking (run after every mutation in tests)
// ============================================================================

func assertInvariants(t testing.TB, h Heap) {
	t.Helper()
	switch v := h.(type) {
	case *ListHeap:
		assertListInvariants(t, v)
	case *SplayHeap:
		assertSplayInvariants(t, v)
	default:
		t.Fatalf("unknown heap variant %T", h)
	}
}

// assertCommonInvariants checks the variant-independent block structure and
// returns the scan for index-specific checks.
func assertCommonInvariants(t testing.TB, blocks []blockInfo, numChunks, freeChunks int32, reserved int32) []blockInfo {
	t.Helper()

	// Blocks tile the arena.
	var total int32
	for _, b := range blocks {
		total += b.size
	}
	require.Equal(t, numChunks, total, "blocks must tile the arena")

	// Sentinel blocks are allocated with size 1.
	require.GreaterOrEqual(t, len(blocks), int(reserved))
	for i := int32(0); i < reserved; i++ {
		require.Equal(t, i, blocks[i].idx)
		require.Equal(t, int32(1), blocks[i].size, "sentinel %d size", i)
		require.False(t, blocks[i].free, "sentinel %d must be allocated", i)
	}

	// No two adjacent free blocks, and the free total matches.
	var freeTotal int32
	for i, b := range blocks {
		if b.free {
			freeTotal += b.size
			if i+1 < len(blocks) {
				require.False(t, blocks[i+1].free,
					"adjacent free blocks at %d and %d", b.idx, blocks[i+1].idx)
			}
		}
	}
	require.Equal(t, freeChunks, freeTotal, "free chunk accounting diverged")

	return blocks
}

func assertListInvariants(t testing.TB, h *ListHeap) {
	t.Helper()
	blocks := assertCommonInvariants(t, h.scanBlocks(), h.numChunks, h.freeChunks, 1)

	// Physical back-links: every block after the first names its
	// predecessor.
	prev := int32(format.NullIndex)
	for _, b := range blocks[1:] {
		require.Equal(t, prev, h.prevPhys(b.idx), "back-link of block %d", b.idx)
		prev = b.idx
	}

	// Free list: strictly increasing, mutually inverse links, and exact
	// agreement with the free blocks of the scan.
	free := map[int32]int32{}
	var maxFree int32
	for _, b := range blocks {
		if b.free {
			free[b.idx] = b.size
			if b.size > maxFree {
				maxFree = b.size
			}
		}
	}

	seen := map[int32]bool{}
	last := int32(format.NullIndex)
	for i := h.nextFree(format.NullIndex); i != format.NullIndex; i = h.nextFree(i) {
		require.Greater(t, i, last, "free list must be strictly increasing")
		require.Equal(t, last, h.prevFree(i), "prev_free/next_free must be inverse at %d", i)
		require.Contains(t, free, i, "free list contains non-free block %d", i)
		require.False(t, seen[i], "free list visits block %d twice", i)
		seen[i] = true
		last = i
	}
	require.Equal(t, last, h.prevFree(format.NullIndex), "sentinel tail link")
	require.Len(t, seen, len(free), "free list misses free blocks")

	require.Equal(t, maxFree, h.maxContig, "cached max contiguous free diverged")
}

func assertSplayInvariants(t testing.TB, h *SplayHeap) {
	t.Helper()
	blocks := assertCommonInvariants(t, h.scanBlocks(), h.numChunks, h.freeChunks, 2)

	// In-order traversal must emit the physical scan order (minus the
	// sentinel and scratch blocks, which are not tree nodes).
	var inorder []int32
	var walk func(i int32)
	walk = func(i int32) {
		if i == format.NullIndex {
			return
		}
		walk(h.left(i))
		inorder = append(inorder, i)
		walk(h.right(i))
	}
	walk(h.root)

	var physical []int32
	for _, b := range blocks[2:] {
		physical = append(physical, b.idx)
	}
	require.Equal(t, physical, inorder, "in-order traversal must match arena order")

	// Cached subtree statistics match a bottom-up recompute.
	var verify func(i int32) int32
	verify = func(i int32) int32 {
		if i == format.NullIndex {
			return 0
		}
		m := max(verify(h.left(i)), verify(h.right(i)))
		if !h.allocated(i) {
			m = max(m, h.blockChunks(i))
		}
		require.Equal(t, m, h.maxFree(i), "cached max contiguous free at block %d", i)
		return m
	}
	verify(h.root)

	// The null node's cached statistic stays zero through splay scribbling.
	require.Equal(t, int32(0), h.maxFree(format.NullIndex), "null node statistic must stay zero")
}

// assertRegistry checks the handle cycle: doubly linked, symmetric, and
// every target inside the arena or null.
func assertRegistry(t testing.TB, h Heap) {
	t.Helper()
	var l *pointerList
	var arenaLen int
	switch v := h.(type) {
	case *ListHeap:
		l, arenaLen = &v.pointers, len(v.data)
	case *SplayHeap:
		l, arenaLen = &v.pointers, len(v.data)
	}
	for n := l.root.next; n != &l.root; n = n.next {
		require.Equal(t, n, n.next.prev, "registry cycle asymmetric")
		require.Equal(t, n, n.prev.next, "registry cycle asymmetric")
		require.GreaterOrEqual(t, n.data, int32(0))
		require.Less(t, int(n.data), arenaLen, "handle target outside arena")
	}
}
