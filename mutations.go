package revdb

// PutOptions controls a single PutRevision call.
type PutOptions struct {
	// Body is the revision's raw encoded content (e.g. Encoder output).
	// A nil or empty Body is legal: a tombstone has no content, and a
	// body-less placeholder revision may be filled in later.
	Body           []byte
	Deleted        bool
	HasAttachments bool
	AllowConflict  bool
}

// PutRevision inserts revID as a child of parentRevID (nil for a root
// revision) into docID's revision tree, creating the tree if this is the
// document's first revision. The returned Change carries the HTTP-style
// status RevTree.Insert produced; a non-2xx status is a protocol outcome; it
// is returned alongside a nil error, not as one (see the package's error
// handling notes).
func (store *DocStore) PutRevision(docID, revID, parentRevID []byte, opts PutOptions) (*Change, error) {
	var chg *Change
	err := store.Update(func(tx *Tx) error {
		var err error
		chg, err = tx.putRevision(docID, revID, parentRevID, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chg, nil
}

func (tx *Tx) putRevision(docID, revID, parentRevID []byte, opts PutOptions) (*Change, error) {
	tree, _, _, err := tx.loadTree(docID)
	if err != nil {
		return nil, err
	}

	var status int
	if parentRevID == nil {
		status, _ = tree.Insert(revID, opts.Body, opts.Deleted, opts.HasAttachments, NoParent, opts.AllowConflict)
	} else {
		status, _ = tree.InsertByParentID(revID, opts.Body, opts.Deleted, opts.HasAttachments, parentRevID, opts.AllowConflict)
	}

	op := OpPut
	if opts.Deleted {
		op = OpDelete
	}
	chg := &Change{
		docID:  append([]byte(nil), docID...),
		op:     op,
		revID:  append([]byte(nil), revID...),
		status: status,
	}

	if !tree.Changed() {
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: PUT.NOOP %x/%s => status=%d", docID, revID, status)
		}
		return chg, nil
	}

	if _, err := tx.saveTree(docID, tree); err != nil {
		return nil, err
	}
	if tx.store.verbose && tx.store.logf != nil {
		tx.store.logf("revdb: PUT %x/%s => status=%d", docID, revID, status)
	}
	tx.recordChange(chg)
	return chg, nil
}

// PutHistory inserts an ancestor chain (history[0] newest, history[len-1]
// oldest) into docID's tree, the way a replicator pulling a document's
// full history from a peer would. Only history[0] carries body, deleted,
// and hasAttachments.
func (store *DocStore) PutHistory(docID []byte, history [][]byte, body []byte, deleted, hasAttachments bool) error {
	return store.Update(func(tx *Tx) error {
		tree, _, _, err := tx.loadTree(docID)
		if err != nil {
			return err
		}
		common := tree.InsertHistory(history, body, deleted, hasAttachments)
		if common < 0 {
			return docErrf(docID, history[0], nil, "history generations are not consecutive")
		}
		if !tree.Changed() {
			return nil
		}
		if _, err := tx.saveTree(docID, tree); err != nil {
			return err
		}
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: PUT_HISTORY %x/%s common=%d", docID, history[0], common)
		}
		op := OpPut
		if deleted {
			op = OpDelete
		}
		tx.recordChange(&Change{
			docID:  append([]byte(nil), docID...),
			op:     op,
			revID:  append([]byte(nil), history[0]...),
			status: 201,
		})
		return nil
	})
}

// GetRevisionTree returns a read-only snapshot of docID's revision tree.
// The snapshot's BodyLoader reads archived bodies in a fresh read-only
// transaction of its own.
func (store *DocStore) GetRevisionTree(docID []byte) (*RevTree, error) {
	var tree *RevTree
	err := store.View(func(tx *Tx) error {
		t, _, _, err := tx.loadTree(docID)
		tree = t
		return err
	})
	if err != nil {
		return nil, err
	}
	tree.SetBodyLoader(func(rev *Revision, atOffset uint64) (body []byte, ok bool) {
		store.View(func(tx *Tx) error {
			body, ok = tx.loadHistoricalBody(rev, atOffset)
			return nil
		})
		return body, ok
	})
	return tree, nil
}

// CompressRevision delta-compresses targetRevID's body against
// referenceRevID's body, using the package's DeltaCodec, and persists the
// result.
func (store *DocStore) CompressRevision(docID, targetRevID, referenceRevID []byte) error {
	return store.Update(func(tx *Tx) error {
		tree, _, _, err := tx.loadTree(docID)
		if err != nil {
			return err
		}
		target, ok := tree.GetByID(targetRevID)
		if !ok {
			return docErrf(docID, targetRevID, nil, "revision not found")
		}
		reference, ok := tree.GetByID(referenceRevID)
		if !ok {
			return docErrf(docID, referenceRevID, nil, "revision not found")
		}
		if err := tree.Compress(target, reference); err != nil {
			return docErrf(docID, targetRevID, err, "compress")
		}
		if _, err := tx.saveTree(docID, tree); err != nil {
			return err
		}
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: COMPRESS %x/%s against %s", docID, targetRevID, referenceRevID)
		}
		return nil
	})
}

// RemoveRevisionBody drops revID's inline body, remembering that it can
// still be recovered from the document's current (about-to-be-archived)
// save. It fails without changing anything if another revision is
// delta-compressed against revID and allowExpansion is false.
func (store *DocStore) RemoveRevisionBody(docID, revID []byte, allowExpansion bool) (bool, error) {
	var removed bool
	err := store.Update(func(tx *Tx) error {
		tree, raw, seq, err := tx.loadTree(docID)
		if err != nil {
			return err
		}
		idx, ok := tree.GetByID(revID)
		if !ok {
			return docErrf(docID, revID, nil, "revision not found")
		}

		removed = tree.RemoveBody(idx, allowExpansion)
		if !removed || !tree.Changed() {
			return nil
		}

		if raw != nil {
			if err := tx.stx.Bucket(historyBucket).Put(seqKey(seq), raw); err != nil {
				return err
			}
		}
		if _, err := tx.saveTree(docID, tree); err != nil {
			return err
		}
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: REMOVE_BODY %x/%s allowExpansion=%v", docID, revID, allowExpansion)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Prune removes every revision whose depth (its longest parent-chain
// distance from a leaf) exceeds maxDepth and persists the result. It returns the number of revisions
// removed.
func (store *DocStore) Prune(docID []byte, maxDepth int) (int, error) {
	var pruned int
	err := store.Update(func(tx *Tx) error {
		tree, _, _, err := tx.loadTree(docID)
		if err != nil {
			return err
		}
		pruned = tree.Prune(maxDepth)
		if pruned == 0 {
			return nil
		}
		if _, err := tx.saveTree(docID, tree); err != nil {
			return err
		}
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: PRUNE %x maxDepth=%d removed=%d", docID, maxDepth, pruned)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

// Purge removes leafRevID and every ancestor left with no other
// descendant, persisting the result. It returns the number of revisions
// removed.
func (store *DocStore) Purge(docID, leafRevID []byte) (int, error) {
	var purged int
	err := store.Update(func(tx *Tx) error {
		tree, _, _, err := tx.loadTree(docID)
		if err != nil {
			return err
		}
		purged = tree.Purge(leafRevID)
		if purged == 0 {
			return nil
		}
		if _, err := tx.saveTree(docID, tree); err != nil {
			return err
		}
		if tx.store.verbose && tx.store.logf != nil {
			tx.store.logf("revdb: PURGE %x/%s removed=%d", docID, leafRevID, purged)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
