// Package arena acquires and releases the raw memory region managed by a
// defraggable heap.
//
// On Unix the region comes from an anonymous private mapping; on Windows
// from VirtualAlloc. Both are page-aligned, which satisfies the heap's
// 16-byte alignment contract. Elsewhere a Go slice is over-allocated and
// trimmed to alignment.
package arena

import "fmt"

// Alignment is the alignment guaranteed for the start of every arena.
const Alignment = 16

// Arena is a fixed-size contiguous byte region. It is not growable; the
// owning heap frees it exactly once with Release.
type Arena struct {
	data    []byte
	release func() error
}

// Bytes returns the managed region. The slice aliases the mapping; it is
// invalid after Release.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Size returns the region length in bytes.
func (a *Arena) Size() int {
	return len(a.data)
}

// Release returns the region to the operating system. The arena and every
// slice derived from Bytes are invalid afterwards.
func (a *Arena) Release() error {
	if a.release == nil {
		return nil
	}
	rel := a.release
	a.release = nil
	a.data = nil
	return rel()
}

// Acquire obtains a zeroed region of exactly size bytes, aligned to
// Alignment. size must be a positive multiple of Alignment.
func Acquire(size int) (*Arena, error) {
	if size <= 0 || size%Alignment != 0 {
		return nil, fmt.Errorf("arena: size %d is not a positive multiple of %d", size, Alignment)
	}
	return acquire(size)
}
