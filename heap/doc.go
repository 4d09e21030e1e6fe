// Package heap implements defragmentable in-process memory allocators over
// fixed-size 16-byte-aligned arenas.
//
// # Overview
//
// A heap owns one contiguous arena addressed in 16-byte chunks. Every
// allocation carries an inline one-chunk header and is referred to through a
// relocatable handle (Pointer) rather than a raw address: when the heap
// defragments itself it physically moves live blocks downward and rewrites
// the handles that reference them. Raw slices obtained from a handle are
// therefore invalidated by any Allocate, Free, or defragmentation step.
//
// # Variants
//
// Two interchangeable free-block indexes implement the Heap interface:
//
//   - ListHeap: free blocks on a sorted doubly-linked free list threaded
//     through the block headers. All index operations are O(F) in the number
//     of free blocks, simple and cache-friendly.
//   - SplayHeap: every block is a node of a top-down splay tree keyed by
//     chunk index and augmented with the max contiguous free chunk count of
//     its subtree. First-fit lookup and merging are amortized O(log B).
//
// # Usage
//
//	h := heap.NewListHeap(16 << 20)
//	defer h.Close()
//
//	p := h.Allocate(1024)
//	if p.IsNil() {
//	    // arena has no contiguous run large enough
//	}
//	copy(p.Get(), payload)
//
//	// Amortize defragmentation across frames.
//	for !h.IterateHeap() {
//	    break // one step per frame
//	}
//
// # Concurrency
//
// A heap and its handles are confined to a single goroutine. No operation
// is safe for concurrent use without external synchronization.
package heap
