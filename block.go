package sstblock

import "math"

// Block is a decoded view of a single immutable block. It validates the
// restart array geometry on construction; entries are only decoded, and
// checked, lazily by iterators.
//
// A Block is safe for concurrent use by multiple iterators. It must not be
// released while any of its iterators are still in use.
type Block struct {
	data  []byte
	owned bool

	size        int    // 0 if the block is malformed
	restarts    uint32 // offset of the restart array
	numRestarts uint32
}

// NewBlock wraps data. If owned is true, data was fetched from the shared
// buffer pool and is returned to it on Release.
func NewBlock(data []byte, owned bool) *Block {
	b := &Block{data: data, owned: owned}
	if len(data) < 4 {
		return b
	}

	n := decodeFixed32(data[len(data)-4:])
	restarts, ok := restartGeometry(len(data), n)
	if !ok {
		return b
	}

	b.size = len(data)
	b.restarts = restarts
	b.numRestarts = n
	return b
}

// restartGeometry returns the offset of the restart array of a block of
// size bytes holding n restart points. Blocks must fit uint32 offsets.
func restartGeometry(size int, n uint32) (restarts uint32, ok bool) {
	if size < 4 || uint64(size) > math.MaxUint32 {
		return 0, false
	}
	if n > uint32((size-4)/4) {
		return 0, false
	}
	return uint32(size) - 4*(n+1), true
}

// Len returns the byte size of the block, or 0 if the block is malformed.
func (b *Block) Len() int { return b.size }

// NumRestarts returns the number of restart points.
func (b *Block) NumRestarts() int {
	if b.size == 0 {
		return 0
	}
	return int(b.numRestarts)
}

// NewIterator returns an iterator over the block entries, ordered by cmp.
// A nil cmp defaults to DefaultCompare.
func (b *Block) NewIterator(cmp Compare) Iterator {
	if b.size < 4 {
		return &emptyIter{err: errBadBlock}
	}
	if b.numRestarts == 0 {
		return &emptyIter{}
	}
	if cmp == nil {
		cmp = DefaultCompare
	}
	return newBlockIter(cmp, b.data[:b.size], b.restarts, b.numRestarts)
}

// Release releases the block and returns owned buffers to the pool. The
// block must not be used after this method is called.
func (b *Block) Release() {
	if b.owned {
		releaseBuffer(b.data)
	}
	b.data = nil
	b.owned = false
	b.size = 0
}
