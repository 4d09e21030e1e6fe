package format

// Debug fill patterns written over user chunks when a heap is constructed
// with fill diagnostics enabled. The patterns identify, in a post-mortem
// dump, which heap event last touched a region. They are diagnostics only;
// nothing may depend on their values.
const (
	FillInit  uint32 = 0x12345678 // initial free space at construction
	FillAlloc uint32 = 0xACACACAC // user region handed out by Allocate
	FillSplit uint32 = 0xFEEFEEFE // remainder free block created by a split
	FillFree  uint32 = 0xDDDDDDDD // user region reclaimed by Free
	FillMerge uint32 = 0xDEADB0B1 // free region grown by coalescing
	FillMove  uint32 = 0x51775177 // free region exposed by a defrag move
)
