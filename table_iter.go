package sstblock

// TableIterator is a convenience wrapper around the index and data block
// iterators which can iterate over keys across block boundaries, in both
// directions.
type TableIterator struct {
	r     *Reader
	index Iterator

	handle blockHandle // handle of the current data block
	block  *Block
	data   Iterator

	err error
}

var _ Iterator = (*TableIterator)(nil)

// Valid implements Iterator.
func (it *TableIterator) Valid() bool {
	return it.data != nil && it.data.Valid()
}

// Key implements Iterator.
func (it *TableIterator) Key() []byte {
	if !it.Valid() {
		panic(errInvalidIter("Key"))
	}
	return it.data.Key()
}

// Value implements Iterator. Please note that values are temporary buffers
// and must be copied if used beyond the next cursor move.
func (it *TableIterator) Value() []byte {
	if !it.Valid() {
		panic(errInvalidIter("Value"))
	}
	return it.data.Value()
}

// Err implements Iterator.
func (it *TableIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.index.Err(); err != nil {
		return err
	}
	if it.data != nil {
		return it.data.Err()
	}
	return nil
}

// Seek implements Iterator.
func (it *TableIterator) Seek(target []byte) bool {
	if it.err != nil {
		return false
	}

	it.index.Seek(target)
	it.loadBlock()
	if it.data != nil {
		it.data.Seek(target)
	}
	return it.skipForward()
}

// SeekToFirst implements Iterator.
func (it *TableIterator) SeekToFirst() bool {
	if it.err != nil {
		return false
	}

	it.index.SeekToFirst()
	it.loadBlock()
	if it.data != nil {
		it.data.SeekToFirst()
	}
	return it.skipForward()
}

// SeekToLast implements Iterator.
func (it *TableIterator) SeekToLast() bool {
	if it.err != nil {
		return false
	}

	it.index.SeekToLast()
	it.loadBlock()
	if it.data != nil {
		it.data.SeekToLast()
	}
	return it.skipBackward()
}

// Next implements Iterator.
func (it *TableIterator) Next() bool {
	if !it.Valid() {
		panic(errInvalidIter("Next"))
	}

	it.data.Next()
	return it.skipForward()
}

// Prev implements Iterator.
func (it *TableIterator) Prev() bool {
	if !it.Valid() {
		panic(errInvalidIter("Prev"))
	}

	it.data.Prev()
	return it.skipBackward()
}

// Release releases the iterator and frees up resources. The iterator must
// not be used after this method is called.
func (it *TableIterator) Release() {
	it.releaseBlock()
	it.err = errReleased
}

// skipForward moves on to the first entry of the following blocks while the
// current block is exhausted.
func (it *TableIterator) skipForward() bool {
	for !it.Valid() {
		if !it.canSkip() {
			return false
		}

		it.index.Next()
		it.loadBlock()
		if it.data != nil {
			it.data.SeekToFirst()
		}
	}
	return true
}

// skipBackward moves on to the last entry of the preceding blocks while the
// current block is exhausted.
func (it *TableIterator) skipBackward() bool {
	for !it.Valid() {
		if !it.canSkip() {
			return false
		}

		it.index.Prev()
		it.loadBlock()
		if it.data != nil {
			it.data.SeekToLast()
		}
	}
	return true
}

// canSkip returns true if the current data block ended cleanly and the
// index still points at a block.
func (it *TableIterator) canSkip() bool {
	if it.err == nil && it.data != nil {
		it.err = it.data.Err()
	}
	if it.err != nil || !it.index.Valid() {
		it.releaseBlock()
		return false
	}
	return true
}

// loadBlock makes the block the index is positioned at current.
func (it *TableIterator) loadBlock() {
	if !it.index.Valid() {
		it.releaseBlock()
		return
	}

	h, err := decodeBlockHandle(it.index.Value())
	if err == nil && it.block != nil && h == it.handle {
		return
	}

	it.releaseBlock()
	if err != nil {
		it.err = err
		return
	}

	block, err := it.r.readBlock(h, it.r.maxOffset)
	if err != nil {
		it.err = err
		return
	}
	it.handle = h
	it.block = block
	it.data = block.NewIterator(it.r.o.Compare)
}

func (it *TableIterator) releaseBlock() {
	if it.block != nil {
		it.block.Release()
	}
	it.block = nil
	it.data = nil
}
