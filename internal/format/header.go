package format

// Block header accessors. A header is four little-endian 32-bit words in
// the first chunk of a block. Word meanings differ between the list and
// splay variants (see consts.go); the metadata word is shared:
//
//	bit  31     allocated flag
//	bits 0..30  block size in chunks, including the header chunk
const (
	metaAllocBit  = 1 << 31
	metaSizeMask  = metaAllocBit - 1
	metaWordBytes = WordSize
)

// Field reads header word slot w of the block at chunk idx.
func Field(b []byte, idx int32, w int) int32 {
	return ReadI32(b, int(idx)<<ChunkShift+w*metaWordBytes)
}

// SetField writes header word slot w of the block at chunk idx.
func SetField(b []byte, idx int32, w int, v int32) {
	PutI32(b, int(idx)<<ChunkShift+w*metaWordBytes, v)
}

// PackMeta packs an allocation state and chunk count into a metadata word.
// numChunks must fit in 31 bits; the heap enforces this at construction.
func PackMeta(allocated bool, numChunks int32) uint32 {
	m := uint32(numChunks) & metaSizeMask
	if allocated {
		m |= metaAllocBit
	}
	return m
}

// MetaAllocated reports the allocation flag of a metadata word.
func MetaAllocated(m uint32) bool {
	return m&metaAllocBit != 0
}

// MetaNumChunks extracts the chunk count of a metadata word.
func MetaNumChunks(m uint32) int32 {
	return int32(m & metaSizeMask)
}

// Meta reads the metadata word of the block at chunk idx from slot w.
func Meta(b []byte, idx int32, w int) uint32 {
	return ReadU32(b, int(idx)<<ChunkShift+w*metaWordBytes)
}

// SetMeta writes the metadata word of the block at chunk idx into slot w.
func SetMeta(b []byte, idx int32, w int, m uint32) {
	PutU32(b, int(idx)<<ChunkShift+w*metaWordBytes, m)
}
