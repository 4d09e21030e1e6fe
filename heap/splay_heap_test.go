package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

func TestNewSplayHeapLayout(t *testing.T) {
	h := NewSplayHeap(1024)
	defer h.Close()

	require.Equal(t, int32(64), h.numChunks)
	assert.Equal(t, int32(62), h.freeChunks, "sentinel and scratch are reserved")
	assert.Equal(t, int32(62), h.maxFree(h.root))
	assert.True(t, h.IsFullyDefragmented())
	assert.Zero(t, h.FragmentationRatio())
	assertInvariants(t, h)
}

func TestNewSplayHeapPanicsOnTinyArena(t *testing.T) {
	assert.Panics(t, func() { NewSplayHeap(32) })
	assert.Panics(t, func() { NewSplayHeap(0) })
}

func TestSplayAllocateSplitBoundary(t *testing.T) {
	// 128-byte arena: sentinel + scratch + 6 usable chunks.
	h := NewSplayHeap(128)
	defer h.Close()

	p := h.Allocate(16)
	require.False(t, p.IsNil())
	assert.Equal(t, int32(3*format.ChunkSize), p.Offset(), "first allocation starts at chunk 3")
	assertInvariants(t, h)

	q := h.Allocate(1)
	require.False(t, q.IsNil())
	assert.Equal(t, int32(5*format.ChunkSize), q.Offset())
	assert.Equal(t, int32(2), h.freeChunks)
	assertInvariants(t, h)
}

func TestSplayAllocateZeroIsNull(t *testing.T) {
	h := NewSplayHeap(1024)
	defer h.Close()

	before := h.Stats()
	p := h.Allocate(0)
	assert.True(t, p.IsNil())
	assert.Equal(t, before, h.Stats(), "failed allocation must not mutate the heap")
	assertInvariants(t, h)
}

func TestSplayAllocateExhaustionIsNull(t *testing.T) {
	h := NewSplayHeap(256) // 16 chunks, 14 usable
	defer h.Close()

	p := h.Allocate(16 * 13)
	require.False(t, p.IsNil())

	q := h.Allocate(1)
	assert.True(t, q.IsNil())
	assert.Zero(t, h.freeChunks)
	assert.Zero(t, h.FragmentationRatio())
	assertInvariants(t, h)
}

func TestSplayAllocateFirstFit(t *testing.T) {
	// The augmented descent must return the lowest-index fit, not just
	// any fit.
	h := NewSplayHeap(8192)
	defer h.Close()

	var handles []*Pointer
	for i := 0; i < 8; i++ {
		p := h.Allocate(64)
		require.False(t, p.IsNil())
		handles = append(handles, p)
	}

	// Open two holes; a new allocation of hole size must land in the
	// lower one. Blocks are 5 chunks wide starting at chunk 2, so the
	// lower hole's user region begins at chunk 8.
	h.Free(handles[1])
	h.Free(handles[5])
	assertInvariants(t, h)

	p := h.Allocate(64)
	require.False(t, p.IsNil())
	assert.Equal(t, int32(8*format.ChunkSize), p.Offset(),
		"allocation must reuse the lowest hole")
	assertInvariants(t, h)
}

func TestSplayFreeRoundTrip(t *testing.T) {
	h := NewSplayHeap(4096)
	defer h.Close()

	freeBefore := h.freeChunks
	maxBefore := h.maxFree(h.root)

	p := h.Allocate(100)
	require.False(t, p.IsNil())
	assertInvariants(t, h)

	h.Free(p)
	assert.True(t, p.IsNil())
	assert.Equal(t, freeBefore, h.freeChunks)
	h.FullDefrag()
	assert.Equal(t, maxBefore, h.maxFree(h.root))
	assertInvariants(t, h)
}

func TestSplayFreeMergesBothNeighbors(t *testing.T) {
	h := NewSplayHeap(4096)
	defer h.Close()

	a := h.Allocate(64)
	b := h.Allocate(64)
	c := h.Allocate(64)
	d := h.Allocate(64)
	require.False(t, d.IsNil())

	h.Free(b)
	assertInvariants(t, h)
	h.Free(d)
	assertInvariants(t, h)

	h.Free(c)
	assertInvariants(t, h)
	assert.True(t, h.IsFullyDefragmented())
	assert.False(t, a.IsNil())
}

func TestSplayFreeForeignAndMalformed(t *testing.T) {
	h := NewSplayHeap(1024)
	other := NewSplayHeap(1024)
	defer h.Close()
	defer other.Close()

	p := h.Allocate(32)
	bad := h.Allocate(32)
	before := h.Stats()

	h.Free(nil)
	h.Free(&Pointer{})
	q := other.Allocate(32)
	h.Free(q)
	assert.False(t, q.IsNil())

	bad.Set(bad.Offset() + 4)
	h.Free(bad)
	bad.Set(int32(len(h.data)) + 16)
	h.Free(bad)
	bad.Set(format.ChunkToByte(2)) // scratch user region is not a block start
	h.Free(bad)
	bad.Release()

	assert.Equal(t, before.FreeChunks, h.Stats().FreeChunks)
	assert.False(t, p.IsNil())
	assertInvariants(t, h)
}

func TestSplayScratchSurvivesSplays(t *testing.T) {
	// The scratch block's link words anchor every splay; its metadata
	// must nevertheless stay an allocated single chunk.
	h := NewSplayHeap(8192)
	defer h.Close()

	var handles []*Pointer
	for i := 0; i < 16; i++ {
		handles = append(handles, h.Allocate(48))
	}
	for i := 0; i < len(handles); i += 2 {
		h.Free(handles[i])
	}
	h.FullDefrag()

	m := h.meta(format.ScratchIndex)
	assert.True(t, format.MetaAllocated(m))
	assert.Equal(t, int32(1), format.MetaNumChunks(m))
	assertInvariants(t, h)
}

func TestSplayStatsCounters(t *testing.T) {
	h := NewSplayHeap(4096)
	defer h.Close()

	a := h.Allocate(64)
	b := h.Allocate(64)
	_ = h.Allocate(64)
	h.Free(a)
	h.Free(b)

	s := h.Stats()
	assert.Equal(t, uint64(3), s.Allocs)
	assert.Equal(t, uint64(2), s.Frees)
	assert.Equal(t, uint64(1), s.Merges)
	assert.Equal(t, h.numChunks, s.TotalChunks)
	assert.Equal(t, h.freeChunks, s.FreeChunks)
}

func TestSplayDebugFillKeepsInvariants(t *testing.T) {
	h := NewSplayHeap(2048, WithDebugFill())
	defer h.Close()

	p := h.Allocate(100)
	q := h.Allocate(200)
	h.Free(p)
	h.Free(q)
	h.FullDefrag()
	assert.True(t, h.IsFullyDefragmented())
	assertInvariants(t, h)
}
