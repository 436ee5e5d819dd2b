package sstblock

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each table block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// for delta encoding of keys.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// Compare defines the key order.
	// Default: DefaultCompare.
	Compare Compare
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	if oo.Compare == nil {
		oo.Compare = DefaultCompare
	}

	return &oo
}

// Writer instances can write a table.
type Writer struct {
	w io.Writer
	o *WriterOptions

	offset  int64       // bytes written so far
	block   BlockWriter // the current data block
	index   BlockWriter
	lastKey []byte
	zstd    *zstd.Encoder

	cmp []byte // compression buffer
	tmp []byte // scratch buffer

	closed bool
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	o = o.norm()
	return &Writer{
		w:     w,
		o:     o,
		block: BlockWriter{RestartInterval: o.BlockRestartInterval},
		index: BlockWriter{RestartInterval: 1},
		tmp:   make([]byte, blockTrailerLen),
	}
}

// Append appends a key/value pair to the table. Keys must be appended in
// strictly increasing order.
func (w *Writer) Append(key, value []byte) error {
	if w.closed {
		return errClosed
	}

	if (!w.block.Empty() || !w.index.Empty()) && w.o.Compare(key, w.lastKey) <= 0 {
		return errors.Newf("sstblock: attempted an out-of-order append, %q must be > %q", key, w.lastKey)
	}

	if !w.block.Empty() && w.block.EstimatedSize()+len(key)+len(value)+3*binary.MaxVarintLen32 > w.o.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	w.block.Add(key, value)
	w.lastKey = append(w.lastKey[:0], key...)
	return nil
}

// Close flushes the last block and writes the index and the footer. It does
// not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return errClosed
	}
	w.closed = true

	if w.zstd != nil {
		defer w.zstd.Close()
	}

	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.offset
	if err := w.writeBlock(w.index.Finish(), NoCompression); err != nil {
		return err
	}
	return w.writeFooter(indexOffset)
}

func (w *Writer) writeFooter(indexOffset int64) error {
	binary.LittleEndian.PutUint64(w.tmp[0:], uint64(indexOffset))
	if err := w.writeRaw(w.tmp[:8]); err != nil {
		return err
	}
	return w.writeRaw(magic)
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}

// writeBlock writes a serialized block followed by its trailer.
func (w *Writer) writeBlock(plain []byte, c Compression) error {
	block, ctype, err := w.compress(plain, c)
	if err != nil {
		return err
	}

	w.tmp[0] = ctype
	sum := xxhash.New()
	_, _ = sum.Write(block)
	_, _ = sum.Write(w.tmp[:1])
	binary.LittleEndian.PutUint64(w.tmp[1:], sum.Sum64())

	if err := w.writeRaw(block); err != nil {
		return err
	}
	return w.writeRaw(w.tmp[:blockTrailerLen])
}

// compress returns the compressed block if that saves at least a quarter of
// the plain size.
func (w *Writer) compress(plain []byte, c Compression) ([]byte, byte, error) {
	switch c {
	case SnappyCompression:
		w.cmp = snappy.Encode(w.cmp[:cap(w.cmp)], plain)
		if len(w.cmp) < len(plain)-len(plain)/4 {
			return w.cmp, blockSnappyCompression, nil
		}
	case ZstdCompression:
		if w.zstd == nil {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil, 0, errors.Wrap(err, "sstblock: init zstd")
			}
			w.zstd = enc
		}
		w.cmp = w.zstd.EncodeAll(plain, w.cmp[:0])
		if len(w.cmp) < len(plain)-len(plain)/4 {
			return w.cmp, blockZstdCompression, nil
		}
	}
	return plain, blockNoCompression, nil
}

func (w *Writer) flush() error {
	if w.block.Empty() {
		return nil
	}

	handle := blockHandle{Offset: w.offset}
	if err := w.writeBlock(w.block.Finish(), w.o.Compression); err != nil {
		return err
	}
	handle.Length = w.offset - handle.Offset

	w.index.Add(w.lastKey, handle.appendTo(w.tmp[:0]))
	w.block.Reset()
	return nil
}
