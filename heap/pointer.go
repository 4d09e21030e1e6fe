package heap

import "github.com/joshuapare/heapkit/internal/format"

// Pointer is a relocatable handle into a heap's arena.
//
// A live handle is a node on its heap's registry, a circular doubly-linked
// list rooted in the heap. The heap walks that list to detach handles whose
// target is freed and to re-aim handles whose target is moved by
// defragmentation, so a Pointer stays valid across relocation while any raw
// slice taken from Get does not.
//
// A Pointer is either null (no target, off the registry) or attached. The
// zero value is null. Pointers must not be copied by assignment: duplicating
// one splices a new node next to the source, which mutates the source's
// neighbors, so duplication goes through CopyFrom or MoveFrom on a distinct
// Pointer. They are not safe for concurrent use.
type Pointer struct {
	noCopy noCopy

	list *pointerList
	data int32 // arena byte offset of the user region; 0 when null
	prev *Pointer
	next *Pointer
}

// IsNil reports whether the handle is null. Handles become null on Free of
// their block, on Release, and on heap Close.
func (p *Pointer) IsNil() bool {
	return p == nil || p.data == 0 || p.prev == nil || p.next == nil
}

// Offset returns the arena byte offset of the user region, or 0 for a null
// handle. Offsets are stable only until the next Free, Allocate, or
// defragmentation step.
func (p *Pointer) Offset() int32 {
	if p.IsNil() {
		return 0
	}
	return p.data
}

// Get returns the user region of the referenced block, or nil for a null
// handle. The slice aliases the arena and is invalidated by any heap
// mutation; re-fetch it after every Allocate, Free, or defrag step.
func (p *Pointer) Get() []byte {
	if p.IsNil() {
		return nil
	}
	return p.list.userBytes(p.data)
}

// Set re-aims the handle at the given arena byte offset. The offset must be
// the start of a user region in the owning heap's arena. Registry
// membership is unchanged.
func (p *Pointer) Set(off int32) {
	if p == nil || p.prev == nil || p.next == nil {
		return
	}
	p.data = off
}

// CopyFrom makes p a duplicate of other: same target, spliced into the
// registry immediately before other. Any previous attachment of p is
// released first. Copying from a null handle nulls p. Self-copy is a no-op.
func (p *Pointer) CopyFrom(other *Pointer) {
	if p == other {
		return
	}
	p.Release()
	if other == nil || other.prev == nil || other.next == nil {
		return
	}
	p.list = other.list
	p.data = other.data
	p.prev = other.prev
	p.next = other
	p.prev.next = p
	p.next.prev = p
}

// MoveFrom transfers other's attachment to p and nulls other. Self-move is
// a no-op.
func (p *Pointer) MoveFrom(other *Pointer) {
	if p == other {
		return
	}
	p.CopyFrom(other)
	other.Release()
}

// Release detaches the handle from its registry and nulls it. Releasing a
// null handle is a no-op. The referenced block is not freed.
func (p *Pointer) Release() {
	if p == nil {
		return
	}
	if p.prev != nil && p.next != nil {
		p.next.prev = p.prev
		p.prev.next = p.next
	}
	p.list = nil
	p.data = 0
	p.prev = nil
	p.next = nil
}

// pointerList is a heap's registry of live handles: a circular doubly-linked
// list whose root node is owned by the heap and never handed to users.
type pointerList struct {
	arena    []byte
	metaWord int // header slot of the metadata word in the owning variant
	root     Pointer
}

func (l *pointerList) init(arena []byte, metaWord int) {
	l.arena = arena
	l.metaWord = metaWord
	l.root.list = l
	l.root.prev = &l.root
	l.root.next = &l.root
}

// create attaches a new handle for the user region at byte offset off,
// splicing it immediately after the root.
func (l *pointerList) create(off int32) *Pointer {
	p := &Pointer{
		list: l,
		data: off,
		prev: &l.root,
		next: l.root.next,
	}
	p.prev.next = p
	p.next.prev = p
	return p
}

// userBytes resolves a user-region byte offset against the block header
// that precedes it.
func (l *pointerList) userBytes(off int32) []byte {
	if l.arena == nil {
		return nil
	}
	idx := format.ByteToChunk(off) - 1
	n := format.MetaNumChunks(format.Meta(l.arena, idx, l.metaWord))
	return l.arena[off : off+format.ChunkToByte(n-1)]
}

// removeRange detaches every handle whose target lies in [lo, hi).
func (l *pointerList) removeRange(lo, hi int32) {
	for n := &l.root; n.next != &l.root; {
		next := n.next
		if next.data >= lo && next.data < hi {
			next.Release()
		} else {
			n = next
		}
	}
}

// offsetRange adds delta to every handle whose target lies in [lo, hi).
// delta may be negative. This is how relocation preserves handles.
func (l *pointerList) offsetRange(lo, hi, delta int32) {
	for n := l.root.next; n != &l.root; n = n.next {
		if n.data >= lo && n.data < hi {
			n.data += delta
		}
	}
}

// removeAll detaches every handle. Used on heap close.
func (l *pointerList) removeAll() {
	for l.root.next != &l.root {
		l.root.next.Release()
	}
	l.arena = nil
}

// noCopy trips go vet's copylocks check when a Pointer is copied by value.
type noCopy struct{}

func (*noCopy) Lock() {}
func (*noCopy) Unlock() {}
