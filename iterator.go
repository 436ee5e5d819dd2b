package sstblock

import "github.com/cockroachdb/errors"

// Iterator iterates over sorted key/value pairs.
//
// Positioning methods return true if the iterator is positioned at an entry
// afterwards. Once an iterator becomes invalid, Err distinguishes clean
// exhaustion (nil) from corrupted input. Key, Value, Next and Prev must only
// be called on a valid iterator.
type Iterator interface {
	// Valid returns true if the iterator is positioned at an entry.
	Valid() bool
	// Key returns the key of the current entry. The returned slice is only
	// valid until the next positioning call.
	Key() []byte
	// Value returns the value of the current entry. Please note that values
	// point into the underlying block and must be copied if used beyond the
	// lifetime of the block.
	Value() []byte
	// Err returns the first error encountered, if any.
	Err() error

	// Next moves to the following entry.
	Next() bool
	// Prev moves to the preceding entry.
	Prev() bool
	// Seek moves to the first entry with a key >= target.
	Seek(target []byte) bool
	// SeekToFirst moves to the first entry.
	SeekToFirst() bool
	// SeekToLast moves to the last entry.
	SeekToLast() bool
}

// emptyIter never yields entries. With a non-nil err it serves as an error
// iterator for malformed blocks.
type emptyIter struct{ err error }

func (i *emptyIter) Valid() bool { return false }
func (i *emptyIter) Key() []byte { panic(errInvalidIter("Key")) }
func (i *emptyIter) Value() []byte { panic(errInvalidIter("Value")) }
func (i *emptyIter) Err() error { return i.err }
func (i *emptyIter) Next() bool { panic(errInvalidIter("Next")) }
func (i *emptyIter) Prev() bool { panic(errInvalidIter("Prev")) }
func (i *emptyIter) Seek(_ []byte) bool { return false }
func (i *emptyIter) SeekToFirst() bool { return false }
func (i *emptyIter) SeekToLast() bool { return false }

func errInvalidIter(method string) error {
	return errors.AssertionFailedf("sstblock: %s called on an invalid iterator", errors.Safe(method))
}
