package sstblock

// blockIter is a cursor over the entries of a block with at least one
// restart point.
type blockIter struct {
	cmp         Compare
	data        []byte
	restarts    uint32 // offset of the restart array, data ends here
	numRestarts uint32

	current      uint32 // offset of the current entry, >= restarts if invalid
	restartIndex uint32 // index of the restart run containing current
	key          []byte
	valOff       uint32
	valLen       uint32
	err          error
}

func newBlockIter(cmp Compare, data []byte, restarts, numRestarts uint32) *blockIter {
	return &blockIter{
		cmp:          cmp,
		data:         data,
		restarts:     restarts,
		numRestarts:  numRestarts,
		current:      restarts,
		restartIndex: numRestarts,
		valOff:       restarts,
	}
}

// Valid implements Iterator.
func (i *blockIter) Valid() bool { return i.current < i.restarts }

// Err implements Iterator.
func (i *blockIter) Err() error { return i.err }

// Key implements Iterator.
func (i *blockIter) Key() []byte {
	if !i.Valid() {
		panic(errInvalidIter("Key"))
	}
	return i.key
}

// Value implements Iterator.
func (i *blockIter) Value() []byte {
	if !i.Valid() {
		panic(errInvalidIter("Value"))
	}
	end := i.valOff + i.valLen
	return i.data[i.valOff:end:end]
}

// Next implements Iterator.
func (i *blockIter) Next() bool {
	if !i.Valid() {
		panic(errInvalidIter("Next"))
	}
	return i.parseNextKey()
}

// Prev implements Iterator.
//
// Entries have no backward links, so Prev walks back to the closest restart
// point before the current entry and replays the run forward.
func (i *blockIter) Prev() bool {
	if !i.Valid() {
		panic(errInvalidIter("Prev"))
	}

	original := i.current
	for i.restartPoint(i.restartIndex) >= original {
		if i.restartIndex == 0 {
			i.current = i.restarts
			i.restartIndex = i.numRestarts
			return false
		}
		i.restartIndex--
	}

	i.seekToRestartPoint(i.restartIndex)
	for i.parseNextKey() && i.nextEntryOffset() < original {
		// stop at the entry ending where the original one starts
	}
	return i.Valid()
}

// Seek implements Iterator. It positions the iterator at the first entry
// with a key >= target.
func (i *blockIter) Seek(target []byte) bool {
	if i.err != nil {
		return false
	}

	// binary search for the last restart point with a key < target
	left, right := uint32(0), i.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		shared, nonShared, _, p, ok := decodeEntry(i.data, i.restartPoint(mid), i.restarts)
		if !ok || shared != 0 {
			i.corruptionError()
			return false
		}

		if i.cmp(i.data[p:p+nonShared], target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	i.seekToRestartPoint(left)
	for i.parseNextKey() {
		if i.cmp(i.key, target) >= 0 {
			return true
		}
	}
	return false
}

// SeekToFirst implements Iterator.
func (i *blockIter) SeekToFirst() bool {
	if i.err != nil {
		return false
	}

	i.seekToRestartPoint(0)
	return i.parseNextKey()
}

// SeekToLast implements Iterator.
func (i *blockIter) SeekToLast() bool {
	if i.err != nil {
		return false
	}

	i.seekToRestartPoint(i.numRestarts - 1)
	for i.parseNextKey() && i.nextEntryOffset() < i.restarts {
		// keep skipping
	}
	return i.Valid()
}

func (i *blockIter) restartPoint(index uint32) uint32 {
	return decodeFixed32(i.data[i.restarts+4*index:])
}

// nextEntryOffset returns the offset just past the current entry.
func (i *blockIter) nextEntryOffset() uint32 {
	return i.valOff + i.valLen
}

func (i *blockIter) seekToRestartPoint(index uint32) {
	i.key = i.key[:0]
	i.restartIndex = index

	// parseNextKey starts at the end of the value, current is fixed there
	i.valOff = i.restartPoint(index)
	i.valLen = 0
}

func (i *blockIter) parseNextKey() bool {
	i.current = i.nextEntryOffset()
	if i.current >= i.restarts {
		i.current = i.restarts
		i.restartIndex = i.numRestarts
		return false
	}

	shared, nonShared, valueLen, p, ok := decodeEntry(i.data, i.current, i.restarts)
	if !ok || uint32(len(i.key)) < shared {
		i.corruptionError()
		return false
	}

	i.key = append(i.key[:shared], i.data[p:p+nonShared]...)
	i.valOff = p + nonShared
	i.valLen = valueLen
	for i.restartIndex+1 < i.numRestarts && i.restartPoint(i.restartIndex+1) < i.current {
		i.restartIndex++
	}
	return true
}

func (i *blockIter) corruptionError() {
	i.current = i.restarts
	i.restartIndex = i.numRestarts
	if i.err == nil {
		i.err = errBadEntry
	}
	i.key = i.key[:0]
	i.valOff = i.restarts
	i.valLen = 0
}

// decodeEntry decodes the entry header at data[p:limit]. It returns the
// shared key length, the non-shared key length, the value length and the
// offset of the key delta. ok is false if the header is malformed or the
// entry does not fit before limit.
func decodeEntry(data []byte, p, limit uint32) (shared, nonShared, valueLen, next uint32, ok bool) {
	if p > limit || limit-p < 3 {
		return 0, 0, 0, 0, false
	}

	if a, b, c := data[p], data[p+1], data[p+2]; a|b|c < 128 {
		shared, nonShared, valueLen = uint32(a), uint32(b), uint32(c)
		p += 3
	} else {
		var n int
		if shared, n = decodeVarint32(data[p:limit]); n == 0 {
			return 0, 0, 0, 0, false
		}
		p += uint32(n)
		if nonShared, n = decodeVarint32(data[p:limit]); n == 0 {
			return 0, 0, 0, 0, false
		}
		p += uint32(n)
		if valueLen, n = decodeVarint32(data[p:limit]); n == 0 {
			return 0, 0, 0, 0, false
		}
		p += uint32(n)
	}

	if uint64(nonShared)+uint64(valueLen) > uint64(limit-p) {
		return 0, 0, 0, 0, false
	}
	return shared, nonShared, valueLen, p, true
}
