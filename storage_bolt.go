package revdb

import (
	"unsafe"

	"go.etcd.io/bbolt"
)

// boltStorage is the on-disk revisionStorage backend, a single bbolt file
// with one top-level bucket per record kind (docsBucket, docSeqsBucket,
// historyBucket, metaBucket).
type boltStorage struct {
	bdb *bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) revisionStorage {
	return &boltStorage{bdb: bdb}
}

func (s *boltStorage) BeginTx(writable bool) (revisionTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltRevisionTx{btx: btx}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltRevisionTx struct {
	btx *bbolt.Tx
}

func (tx *boltRevisionTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltRevisionTx) Bucket(name string) revisionBucket {
	b := tx.btx.Bucket(unsafeBytesFromString(name))
	if b == nil {
		return nil
	}
	return boltRevisionBucket{b: b}
}

func (tx *boltRevisionTx) CreateBucket(name string) (revisionBucket, error) {
	b, err := tx.btx.CreateBucketIfNotExists(unsafeBytesFromString(name))
	if err != nil {
		return nil, err
	}
	return boltRevisionBucket{b: b}, nil
}

func (tx *boltRevisionTx) Commit() error { return tx.btx.Commit() }

func (tx *boltRevisionTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func (tx *boltRevisionTx) Size() int64 { return tx.btx.Size() }

type boltRevisionBucket struct {
	b *bbolt.Bucket
}

func (b boltRevisionBucket) Get(key []byte) []byte { return b.b.Get(key) }

func (b boltRevisionBucket) Put(key, value []byte) error { return b.b.Put(key, value) }

func (b boltRevisionBucket) Cursor() revisionCursor { return boltRevisionCursor{c: b.b.Cursor()} }

type boltRevisionCursor struct {
	c *bbolt.Cursor
}

func (c boltRevisionCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltRevisionCursor) Next() ([]byte, []byte) { return c.c.Next() }

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
