package revdb

// revisionStorage is the key-value backend DocStore persists document
// revision trees on top of. The only two implementations are bbolt (on
// disk, storage_bolt.go) and an in-memory map (tests, storage_mem.go).
//
// DocStore never nests buckets or range-scans by key prefix, so the
// interface stays to exactly what it needs: named top-level buckets,
// get/put by doc id or sequence, and a forward cursor for Dump.
type revisionStorage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (revisionTx, error)
	// Close closes the storage.
	Close() error
}

// revisionTx is a transaction against revisionStorage. DocStore.Update and
// DocStore.View each run exactly one of these to completion; there is no
// retry or batching layer above it.
type revisionTx interface {
	// Writable reports whether this transaction may mutate buckets.
	Writable() bool

	// Bucket returns a named bucket, or nil if it hasn't been created.
	Bucket(name string) revisionBucket

	// CreateBucket creates a bucket if it doesn't already exist.
	CreateBucket(name string) (revisionBucket, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. Safe to call more than once.
	Rollback() error

	// Size returns the storage size in bytes, or 0 if the backend
	// doesn't track one.
	Size() int64
}

// revisionBucket holds one kind of record: doc id -> encoded tree,
// doc id -> last-save sequence, or sequence -> archived tree.
type revisionBucket interface {
	// Get retrieves a value by key, or nil if it isn't present.
	Get(key []byte) []byte

	// Put stores a key-value pair, overwriting any existing value.
	Put(key, value []byte) error

	// Cursor returns a forward-only cursor over the bucket.
	Cursor() revisionCursor
}

// revisionCursor walks a bucket's entries in key order, for Dump.
type revisionCursor interface {
	// First moves to the first key-value pair, or returns nil, nil if
	// the bucket is empty.
	First() (key, value []byte)

	// Next moves to the next key-value pair, or returns nil, nil once
	// the cursor has passed the last entry.
	Next() (key, value []byte)
}
