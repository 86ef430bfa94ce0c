/*
Package revdb implements the storage core of a document database's
revision-tracking layer: a compact binary value encoding (Writer,
Encoder, Decode) for document bodies, and an in-memory, index-addressed
revision tree (RevTree) that tracks every version of a document ever
seen, including conflicting branches.

DocStore persists one RevTree per document id on top of a pluggable
key-value storage abstraction (revisionStorage, revisionTx,
revisionBucket); the production backend is Bolt, and an in-memory
backend exists for tests.
Each save of a document writes its whole tree as one record, tagged with
a database-wide sequence number; a document's body may instead live in
an older save of the same document; CompressRevision delta-compresses a
revision's body against another revision's, using the package's
DeltaCodec.

# Raw revision-tree format

Each tree encodes as a sequence of size-prefixed records, one per
revision, terminated by a 32-bit big-endian zero. A record is:

	size(4) parentIndex(2) deltaRefIndex(2) flags(1) revIDLen(1) revID(n) sequence(varint) [body|bodyOffset]

All multi-byte integers are big-endian; sequence is a LEB128 varint.

# Value encoding

Encoder writes a stream of tagged values: scalars, strings (plain,
intra-document shared, or cross-document extern), arrays, and dicts with
a 16-bit hash index per key. See tag.go for the tag set and values.go for
the decoded representations.
*/
package revdb
