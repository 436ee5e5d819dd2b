package sstblock

import "encoding/binary"

// BlockWriter buffers sorted key/value pairs and serializes them into a
// block. Keys are prefix-compressed against their predecessor, except at
// restart points which store full keys.
type BlockWriter struct {
	// RestartInterval is the number of entries between restart points.
	// Values < 1 are treated as 1.
	RestartInterval int

	nEntries int
	buf      []byte
	restarts []uint32
	prevKey  []byte
	tmp      [3 * binary.MaxVarintLen32]byte
}

// Add appends an entry. Keys must be added in strictly increasing order;
// the writer does not check.
func (w *BlockWriter) Add(key, value []byte) {
	shared := 0
	if interval := w.RestartInterval; interval < 2 || w.nEntries%interval == 0 {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = sharedPrefixLen(w.prevKey, key)
	}

	n := binary.PutUvarint(w.tmp[0:], uint64(shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(key)-shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(value)))
	w.buf = append(w.buf, w.tmp[:n]...)
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)

	w.prevKey = append(w.prevKey[:0], key...)
	w.nEntries++
}

// EntryCount returns the number of entries added since the last reset.
func (w *BlockWriter) EntryCount() int { return w.nEntries }

// Empty returns true if no entries were added since the last reset.
func (w *BlockWriter) Empty() bool { return w.nEntries == 0 }

// EstimatedSize returns the size of the block Finish would produce.
func (w *BlockWriter) EstimatedSize() int {
	return len(w.buf) + 4*len(w.restarts) + 4
}

// Finish appends the restart array and returns the serialized block. The
// returned slice is only valid until the next Reset.
func (w *BlockWriter) Finish() []byte {
	var tmp [4]byte
	for _, o := range w.restarts {
		binary.LittleEndian.PutUint32(tmp[:], o)
		w.buf = append(w.buf, tmp[:]...)
	}
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(w.restarts)))
	w.buf = append(w.buf, tmp[:]...)
	return w.buf
}

// Reset resets the writer, preserving buffers for reuse.
func (w *BlockWriter) Reset() {
	w.nEntries = 0
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.prevKey = w.prevKey[:0]
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
