/*
Package sstblock decodes and encodes the immutable, prefix-compressed,
sorted key/value blocks of an SSTable, using the leveldb block format, and
contains a small table implementation built on top of them.

Data Structure Documentation

Block

A block is a series of entries, followed by a restart index. Keys are
front-coded: each entry stores only the suffix that differs from the
previous key. Every few entries a restart point stores the full key, which
bounds how far backward scans and binary searches must walk.

    Block layout:
    +---------+-------+-----------+---------------------+-------+-----------------------+-------------------------------+
    | entry 1 |  ...  |  entry n  | restart 1 (4 bytes) |  ...  | restart m (4 bytes)   | number of restarts (4 bytes)  |
    +---------+-------+-----------+---------------------+-------+-----------------------+-------------------------------+

    Entry:
    +-----------------+---------------------+--------------------+-------------------------+------------------+
    | shared (varint) | non-shared (varint) | value len (varint) | key delta (non-shared)  | value (varlen)   |
    +-----------------+---------------------+--------------------+-------------------------+------------------+

Restart offsets and the restart count are little-endian uint32s. A restart
entry always has a shared length of 0. When all three lengths are below 128
each of them occupies a single byte.

Table

A table contains a series of data blocks followed by an index block and a
table footer. Each block on disk is followed by a trailer.

    Table layout:
    +---------+---------+---------+-------------+--------------+
    | block 1 |   ...   | block n | index block | table footer |
    +---------+---------+---------+-------------+--------------+

    Block trailer:
    +---------------------------+----------------------+
    | compression type (1-byte) | xxhash64 (8 bytes)   |
    +---------------------------+----------------------+

    Table footer:
    +------------------------+------------------+
    | index offset (8 bytes) |  magic (8 bytes) |
    +------------------------+------------------+

The checksum covers the (compressed) block contents and the compression
type. The index block is a regular, uncompressed block with a restart
interval of 1, mapping the last key of each data block to the varint
encoded offset and length of that block.
*/
package sstblock
