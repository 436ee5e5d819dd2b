package sstblock

import "encoding/binary"

// decodeVarint32 decodes a base-128 varint of at most 5 bytes from src.
// It returns the value and the number of bytes read, or n == 0 if src ends
// before the varint does.
func decodeVarint32(src []byte) (v uint32, n int) {
	for shift := uint(0); shift <= 28 && n < len(src); shift += 7 {
		b := src[n]
		n++
		if b < 0x80 {
			return v | uint32(b)<<shift, n
		}
		v |= uint32(b&0x7f) << shift
	}
	return 0, 0
}

func decodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// blockHandle locates a block (trailer included) within a table.
type blockHandle struct {
	Offset int64
	Length int64
}

func (h blockHandle) appendTo(dst []byte) []byte {
	var tmp [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[0:], uint64(h.Offset))
	n += binary.PutUvarint(tmp[n:], uint64(h.Length))
	return append(dst, tmp[:n]...)
}

func decodeBlockHandle(src []byte) (blockHandle, error) {
	off, n := binary.Uvarint(src)
	if n <= 0 {
		return blockHandle{}, errBadHandle
	}
	length, m := binary.Uvarint(src[n:])
	if m <= 0 || n+m != len(src) {
		return blockHandle{}, errBadHandle
	}
	return blockHandle{Offset: int64(off), Length: int64(length)}, nil
}
