package sstblock

import (
	"bytes"

	"github.com/cockroachdb/errors"
)

var magic = []byte{71, 39, 134, 190, 31, 122, 101, 220}

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
	blockZstdCompression   = 2
)

// blockTrailerLen is the length of the trailer following each block on
// disk: a compression type byte and an xxhash64 checksum.
const blockTrailerLen = 1 + 8

// footerLen is the length of the table footer.
const footerLen = 16

// ErrNotFound is returned by the reader when a key cannot be found.
var ErrNotFound = errors.New("sstblock: not found")

// ErrCorruption marks all errors caused by malformed block or table data.
// Test with errors.Is(err, ErrCorruption).
var ErrCorruption = errors.New("sstblock: corruption")

var (
	errBadBlock       = corruptionf("bad block contents")
	errBadEntry       = corruptionf("bad entry in block")
	errBadMagic       = corruptionf("bad magic byte sequence")
	errBadHandle      = corruptionf("bad block handle")
	errBadCompression = corruptionf("bad compression codec")
	errBadChecksum    = corruptionf("block checksum mismatch")
)

var (
	errClosed   = errors.New("sstblock: is closed")
	errReleased = errors.New("sstblock: iterator was released")
)

func corruptionf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("sstblock: corruption: "+format, args...), ErrCorruption)
}

// Compare is a total order over keys returning a negative number, zero or a
// positive number.
type Compare func(a, b []byte) int

// DefaultCompare orders keys lexicographically.
var DefaultCompare Compare = bytes.Compare

// --------------------------------------------------------------------

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	ZstdCompression
	unknownCompression
)
