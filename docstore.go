package revdb

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

const trackTxns = true

const (
	docsBucket    = "docs"    // docID -> raw RevTree bytes (Encode output)
	docSeqsBucket = "docseqs" // docID -> 8-byte big-endian sequence, the doc's last save
	historyBucket = "history" // 8-byte big-endian sequence -> archived raw RevTree bytes
	metaBucket    = "meta"    // singleton keys, msgpack-encoded
	metaKeySeq    = "seq"
)

// DocStore holds every document's revision tree in a key-value store,
// one tree per document id. It is the thing PutRevision/OnChange/etc
// operate on; RevTree itself knows nothing about persistence.
type DocStore struct {
	storage revisionStorage
	logf    func(format string, args ...any)
	verbose bool

	writeLock sync.Mutex
	seq       atomic.Uint64

	changeLock    sync.Mutex
	changeHandler func(*Change)

	lastSize atomic.Int64

	txns     []*Tx
	txnsLock sync.Mutex
}

// Options configures Open.
type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// storeMeta is the DocStore's own singleton record, holding state that
// must survive a restart but doesn't belong to any one document.
type storeMeta struct {
	LastSeq uint64 `msgpack:"last_seq"`
}

// Open opens (creating if necessary) a document store backed by a Bolt
// file at path.
func Open(path string, opt Options) (*DocStore, error) {
	bopt := &bbolt.Options{Timeout: 10 * time.Second}
	*bopt = *bbolt.DefaultOptions
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("revdb: opening %s: %w", path, err)
	}
	return openWith(newBoltStorage(bdb), opt)
}

// openMem opens a transient, in-memory store. Used by tests that don't
// want to touch disk.
func openMem(opt Options) (*DocStore, error) {
	return openWith(newMemStorage(), opt)
}

func openWith(s revisionStorage, opt Options) (*DocStore, error) {
	store := &DocStore{
		storage: s,
		logf:    opt.Logf,
		verbose: opt.Verbose,
	}

	err := store.Update(func(tx *Tx) error {
		for _, name := range [...]string{docsBucket, docSeqsBucket, historyBucket, metaBucket} {
			if _, err := tx.stx.CreateBucket(name); err != nil {
				return stateErrf("Open", err)
			}
		}
		metaB := tx.stx.Bucket(metaBucket)
		if raw := metaB.Get([]byte(metaKeySeq)); raw != nil {
			var m storeMeta
			if err := msgpack.Unmarshal(raw, &m); err != nil {
				return stateErrf("Open", err)
			}
			store.seq.Store(m.LastSeq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Close releases the store's underlying storage.
func (store *DocStore) Close() error {
	return store.storage.Close()
}

// Size returns the last-observed size in bytes of the backing file, or 0
// for an in-memory store.
func (store *DocStore) Size() int64 {
	return store.lastSize.Load()
}

// OnChange installs a callback invoked, after each successful commit,
// once per Change the transaction produced. Only one handler may be
// installed at a time; a later call replaces the previous handler.
func (store *DocStore) OnChange(f func(*Change)) {
	store.changeLock.Lock()
	store.changeHandler = f
	store.changeLock.Unlock()
}

func (store *DocStore) dispatch(chg *Change) {
	store.changeLock.Lock()
	h := store.changeHandler
	store.changeLock.Unlock()
	if h != nil {
		h(chg)
	}
}

// Update runs f inside a writable transaction, committing if f returns
// nil and rolling back otherwise. Writers are serialized: the revision
// tree model is synchronous by design (see Tx's doc comment), so
// there's no point admitting more than one writer at a time.
func (store *DocStore) Update(f func(tx *Tx) error) error {
	store.writeLock.Lock()
	defer store.writeLock.Unlock()

	stx, err := store.storage.BeginTx(true)
	if err != nil {
		return err
	}
	tx := store.newTx(stx)
	store.addTx(tx)
	defer store.removeTx(tx)

	if store.verbose {
		slog.Debug("revdb: tx begin", "writable", true)
	}

	if err := safelyCall(f, tx); err != nil {
		stx.Rollback()
		if store.verbose {
			slog.Debug("revdb: tx rollback", "err", err)
		}
		return err
	}
	if err := stx.Commit(); err != nil {
		return err
	}
	store.lastSize.Store(stx.Size())
	if store.verbose {
		slog.Debug("revdb: tx commit", "size", stx.Size())
	}

	for _, chg := range tx.pending {
		store.dispatch(chg)
	}
	return nil
}

// View runs f inside a read-only transaction.
func (store *DocStore) View(f func(tx *Tx) error) error {
	stx, err := store.storage.BeginTx(false)
	if err != nil {
		return err
	}
	tx := store.newTx(stx)
	store.addTx(tx)
	defer store.removeTx(tx)
	defer stx.Rollback()

	if store.verbose {
		slog.Debug("revdb: tx begin", "writable", false)
	}
	err = f(tx)
	if store.verbose {
		slog.Debug("revdb: tx rollback", "readonly", true, "err", err)
	}
	return err
}

func (store *DocStore) addTx(tx *Tx) {
	if !trackTxns {
		return
	}
	store.txnsLock.Lock()
	defer store.txnsLock.Unlock()
	store.txns = append(store.txns, tx)
}

func (store *DocStore) removeTx(tx *Tx) {
	if !trackTxns {
		return
	}
	store.txnsLock.Lock()
	defer store.txnsLock.Unlock()

	found := -1
	for i, t := range store.txns {
		if t == tx {
			found = i
			break
		}
	}
	if found < 0 {
		return
	}
	n := len(store.txns)
	store.txns[found] = store.txns[n-1]
	store.txns[n-1] = nil
	store.txns = store.txns[:n-1]
}

// DescribeOpenTxns renders every transaction currently open, along with
// how long it's been open and (for anything open more than 100ms) the
// stack it was started from. It's meant to be logged by a watchdog when
// a write appears stuck.
func (store *DocStore) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	store.txnsLock.Lock()
	txns := slices.Clone(store.txns)
	store.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, tx.stack)
		}
	}

	return buf.String()
}

func seqKey(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func (tx *Tx) docSeq(docID []byte) uint64 {
	raw := tx.stx.Bucket(docSeqsBucket).Get(docID)
	if raw == nil {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func (tx *Tx) setDocSeq(docID []byte, seq uint64) error {
	return tx.stx.Bucket(docSeqsBucket).Put(docID, seqKey(seq))
}

// loadTree decodes docID's revision tree as of this transaction's
// snapshot, returning an empty tree if the document doesn't exist yet.
// The returned tree's BodyLoader resolves bodies archived by
// RemoveRevisionBody from earlier saves of this same transaction's
// storage.
func (tx *Tx) loadTree(docID []byte) (*RevTree, []byte, uint64, error) {
	raw := tx.stx.Bucket(docsBucket).Get(docID)
	seq := tx.docSeq(docID)

	tree := NewRevTree()
	tree.SetBodyLoader(tx.loadHistoricalBody)
	if raw == nil {
		return tree, nil, seq, nil
	}
	if err := tree.Decode(raw, seq, seq); err != nil {
		return nil, nil, 0, docErrf(docID, nil, err, "loading revision tree")
	}
	return tree, raw, seq, nil
}

func (tx *Tx) loadHistoricalBody(rev *Revision, atOffset uint64) ([]byte, bool) {
	raw := tx.stx.Bucket(historyBucket).Get(seqKey(atOffset))
	if raw == nil {
		return nil, false
	}
	old := NewRevTree()
	if err := old.Decode(raw, atOffset, atOffset); err != nil {
		return nil, false
	}
	idx, ok := old.GetByID(rev.RevID())
	if !ok {
		return nil, false
	}
	return old.loadInline(old.Get(idx), atOffset), true
}

func (tx *Tx) saveTree(docID []byte, tree *RevTree) (uint64, error) {
	newSeq := tx.store.seq.Load() + 1
	raw := tree.Encode()
	if err := tx.stx.Bucket(docsBucket).Put(docID, raw); err != nil {
		return 0, err
	}
	if err := tx.setDocSeq(docID, newSeq); err != nil {
		return 0, err
	}
	tx.store.seq.Store(newSeq)

	if tx.store.verbose {
		slog.Debug("revdb: saved revision tree", hexAttr("docID", docID), "seq", newSeq, "revisions", tree.Len())
	}

	metaB := tx.stx.Bucket(metaBucket)
	metaRaw, err := msgpack.Marshal(&storeMeta{LastSeq: newSeq})
	if err != nil {
		return 0, stateErrf("saveTree", err)
	}
	if err := metaB.Put([]byte(metaKeySeq), metaRaw); err != nil {
		return 0, err
	}
	return newSeq, nil
}
