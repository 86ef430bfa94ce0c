package revdb

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// memStorage is a transient in-memory revisionStorage, used by tests via
// openMem. One writer at a time; readers see a snapshot taken at BeginTx.
type memStorage struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[string]*memBucket
	closed  bool
	writer  bool
}

func newMemStorage() revisionStorage {
	s := &memStorage{buckets: make(map[string]*memBucket)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (revisionTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("store closed")
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, fmt.Errorf("store closed")
		}
		s.writer = true
	}

	snap := make(map[string]*memBucket, len(s.buckets))
	for k, b := range s.buckets {
		snap[k] = b.clone()
	}

	return &memRevisionTx{
		isWritable: writable,
		base:       s,
		buckets:    snap,
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memRevisionTx struct {
	base       *memStorage
	isWritable bool
	buckets    map[string]*memBucket
	closed     bool
}

func (tx *memRevisionTx) Writable() bool { return tx.isWritable }

func (tx *memRevisionTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.isWritable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memRevisionTx) Bucket(name string) revisionBucket {
	if tx.closed {
		panic("tx is closed")
	}
	b := tx.buckets[name]
	if b == nil {
		return nil
	}
	return memRevisionBucket{tx: tx, b: b}
}

func (tx *memRevisionTx) CreateBucket(name string) (revisionBucket, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if !tx.isWritable {
		return nil, fmt.Errorf("tx not writable")
	}
	b := tx.buckets[name]
	if b == nil {
		b = &memBucket{}
		tx.buckets[name] = b
	}
	return memRevisionBucket{tx: tx, b: b}, nil
}

func (tx *memRevisionTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.isWritable {
		return fmt.Errorf("tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return fmt.Errorf("store closed")
	}
	tx.base.buckets = tx.buckets
	tx.closeLocked()
	return nil
}

func (tx *memRevisionTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

func (tx *memRevisionTx) Size() int64 { return 0 }

// memBucket holds one record kind's entries, sorted by key so Cursor can
// walk them in the same order bbolt would.
type memBucket struct {
	items []memKV
}

func (b *memBucket) clone() *memBucket {
	if b == nil {
		return nil
	}
	out := &memBucket{items: make([]memKV, len(b.items))}
	for i, kv := range b.items {
		out.items[i] = memKV{
			key:   slices.Clone(kv.key),
			value: slices.Clone(kv.value),
		}
	}
	return out
}

type memKV struct {
	key   []byte
	value []byte
}

type memRevisionBucket struct {
	tx *memRevisionTx
	b  *memBucket
}

func (b memRevisionBucket) Get(key []byte) []byte {
	i, ok := b.find(key)
	if !ok {
		return nil
	}
	return b.b.items[i].value
}

func (b memRevisionBucket) Put(key, value []byte) error {
	if !b.tx.isWritable {
		return fmt.Errorf("tx not writable")
	}
	key = slices.Clone(key)
	value = slices.Clone(value)

	i, ok := b.find(key)
	if ok {
		b.b.items[i].value = value
		return nil
	}
	b.b.items = slices.Insert(b.b.items, i, memKV{key: key, value: value})
	return nil
}

func (b memRevisionBucket) Cursor() revisionCursor {
	return &memRevisionCursor{b: b.b, pos: -1}
}

func (b memRevisionBucket) find(key []byte) (idx int, ok bool) {
	items := b.b.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

type memRevisionCursor struct {
	b   *memBucket
	pos int
}

func (c *memRevisionCursor) First() ([]byte, []byte) {
	if len(c.b.items) == 0 {
		c.pos = 0
		return nil, nil
	}
	c.pos = 0
	kv := c.b.items[c.pos]
	return kv.key, kv.value
}

func (c *memRevisionCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	c.pos++
	if c.pos >= len(c.b.items) {
		return nil, nil
	}
	kv := c.b.items[c.pos]
	return kv.key, kv.value
}
