package sstblock

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// Compare defines the key order. It must match the order the table was
	// written with.
	// Default: DefaultCompare.
	Compare Compare

	// SkipChecksums disables block checksum verification.
	// Default: false.
	SkipChecksums bool

	// Logger receives block verification failures.
	// Default: DefaultLogger.
	Logger Logger
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.Compare == nil {
		oo.Compare = DefaultCompare
	}
	if oo.Logger == nil {
		oo.Logger = DefaultLogger{}
	}

	return &oo
}

// Reader instances can seek and iterate across data in tables.
type Reader struct {
	r   io.ReaderAt
	mem []byte // set if the table is held in memory
	o   *ReaderOptions

	index     *Block
	maxOffset int64 // index offset, data blocks end here
}

// NewReader opens a reader.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	return newReader(r, nil, size, o)
}

// NewBytesReader opens a reader over a table held in memory. Uncompressed
// blocks are not copied but reference b directly, which must therefore not
// be modified while the reader is in use.
func NewBytesReader(b []byte, o *ReaderOptions) (*Reader, error) {
	return newReader(bytes.NewReader(b), b, int64(len(b)), o)
}

func newReader(r io.ReaderAt, mem []byte, size int64, o *ReaderOptions) (*Reader, error) {
	if size < footerLen {
		return nil, errBadMagic
	}

	// read footer
	var footer [footerLen]byte
	footerOffset := size - footerLen
	if _, err := r.ReadAt(footer[:], footerOffset); err != nil {
		return nil, errors.Wrap(err, "sstblock: read footer")
	}

	// parse footer
	if !bytes.Equal(footer[8:], magic) {
		return nil, errBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[:8]))
	if indexOffset < 0 || indexOffset > footerOffset {
		return nil, errBadHandle
	}

	rd := &Reader{
		r:         r,
		mem:       mem,
		o:         o.norm(),
		maxOffset: indexOffset,
	}

	// read index
	index, err := rd.readBlock(blockHandle{Offset: indexOffset, Length: footerOffset - indexOffset}, footerOffset)
	if err != nil {
		return nil, err
	}
	rd.index = index
	return rd, nil
}

// NumBlocks returns the number of stored data blocks.
func (r *Reader) NumBlocks() int {
	n := 0
	iter := r.index.NewIterator(r.o.Compare)
	for ok := iter.SeekToFirst(); ok; ok = iter.Next() {
		n++
	}
	return n
}

// Append retrieves a single value for a key. Unlike Get it appends the
// value to dst instead of allocating a new byte slice.
// It may return an ErrNotFound error.
func (r *Reader) Append(dst []byte, key []byte) ([]byte, error) {
	iter := r.NewIterator()
	defer iter.Release()

	if !iter.Seek(key) {
		if err := iter.Err(); err != nil {
			return dst, err
		}
		return dst, ErrNotFound
	}
	if r.o.Compare(iter.Key(), key) != 0 {
		return dst, ErrNotFound
	}
	return append(dst, iter.Value()...), nil
}

// Get is a shortcut for Append(nil, key).
// It may return an ErrNotFound error.
func (r *Reader) Get(key []byte) ([]byte, error) {
	return r.Append(nil, key)
}

// NewIterator returns an iterator over all entries in the table. The
// iterator is initially invalid; position it with one of the Seek methods.
func (r *Reader) NewIterator() *TableIterator {
	return &TableIterator{
		r:     r,
		index: r.index.NewIterator(r.o.Compare),
	}
}

// Close releases the reader. It does not close the underlying io.ReaderAt.
func (r *Reader) Close() error {
	if r.index == nil {
		return errClosed
	}
	r.index.Release()
	r.index = nil
	return nil
}

// readBlock reads, verifies and decompresses the block at h, which must end
// before limit.
func (r *Reader) readBlock(h blockHandle, limit int64) (*Block, error) {
	if h.Offset < 0 || h.Length < blockTrailerLen || h.Length > limit-h.Offset {
		return nil, errBadHandle
	}

	var raw []byte
	owned := r.mem == nil
	if owned {
		raw = fetchBuffer(int(h.Length))
		if _, err := r.r.ReadAt(raw, h.Offset); err != nil {
			releaseBuffer(raw)
			return nil, errors.Wrapf(err, "sstblock: read block at %d", h.Offset)
		}
	} else {
		raw = r.mem[h.Offset : h.Offset+h.Length : h.Offset+h.Length]
	}

	n := len(raw) - blockTrailerLen
	if !r.o.SkipChecksums {
		if want, got := binary.LittleEndian.Uint64(raw[n+1:]), xxhash.Sum64(raw[:n+1]); want != got {
			r.o.Logger.Errorf("sstblock: block at %d: checksum %x, expected %x", h.Offset, got, want)
			if owned {
				releaseBuffer(raw)
			}
			return nil, errBadChecksum
		}
	}

	switch raw[n] {
	case blockNoCompression:
		return NewBlock(raw[:n], owned), nil
	case blockSnappyCompression:
		if owned {
			defer releaseBuffer(raw)
		}

		sz, err := snappy.DecodedLen(raw[:n])
		if err != nil {
			r.o.Logger.Errorf("sstblock: block at %d: %v", h.Offset, err)
			return nil, errors.Mark(errors.Wrap(err, "sstblock: snappy"), ErrCorruption)
		}

		plain := fetchBuffer(sz)
		block, err := snappy.Decode(plain, raw[:n])
		if err != nil {
			releaseBuffer(plain)
			r.o.Logger.Errorf("sstblock: block at %d: %v", h.Offset, err)
			return nil, errors.Mark(errors.Wrap(err, "sstblock: snappy"), ErrCorruption)
		}
		return NewBlock(block, true), nil
	case blockZstdCompression:
		if owned {
			defer releaseBuffer(raw)
		}

		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}

		block, err := dec.DecodeAll(raw[:n], fetchBuffer(0))
		if err != nil {
			r.o.Logger.Errorf("sstblock: block at %d: %v", h.Offset, err)
			return nil, errors.Mark(errors.Wrap(err, "sstblock: zstd"), ErrCorruption)
		}
		return NewBlock(block, true), nil
	default:
		if owned {
			releaseBuffer(raw)
		}
		r.o.Logger.Errorf("sstblock: block at %d: unknown compression type %d", h.Offset, raw[n])
		return nil, errBadCompression
	}
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}

var zstdDecoderOnce struct {
	sync.Once
	dec *zstd.Decoder
	err error
}

// zstdDecoder returns a shared decoder, DecodeAll is safe for concurrent use.
func zstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			zstdDecoderOnce.err = errors.Wrap(err, "sstblock: init zstd")
			return
		}
		zstdDecoderOnce.dec = dec
	})
	return zstdDecoderOnce.dec, zstdDecoderOnce.err
}
