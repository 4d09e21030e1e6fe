// Package chunkmem moves and fills whole 16-byte chunks inside an arena.
//
// These are the only bulk memory operations a defraggable heap performs:
// shifting a live block downward during defragmentation and stamping debug
// fill patterns over regions touched by heap events. Both operate on chunk indices, so
// every access is 16-byte aligned by construction.
package chunkmem

import "encoding/binary"

const chunkSize = 16

// Copy copies n chunks from chunk index src to chunk index dst within b.
// A copy of zero chunks is a no-op. Ranges may overlap; defragmentation
// only ever moves blocks downward (dst < src).
func Copy(b []byte, dst, src, n int32) {
	if n == 0 {
		return
	}
	d := int(dst) * chunkSize
	s := int(src) * chunkSize
	copy(b[d:d+int(n)*chunkSize], b[s:s+int(n)*chunkSize])
}

// Fill stamps n chunks starting at chunk index dst with a repeating 32-bit
// pattern. A fill of zero chunks is a no-op.
func Fill(b []byte, dst, n int32, pattern uint32) {
	if n == 0 {
		return
	}
	off := int(dst) * chunkSize
	end := off + int(n)*chunkSize
	for ; off < end; off += 4 {
		binary.LittleEndian.PutUint32(b[off:off+4], pattern)
	}
}
