package bptree

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/btree-query-bench/bptreeidx/dbms/pager"
)

// Entry is one key/payload pair produced by a range scan.
type Entry struct {
	Key   int32
	Value payload
}

// Tree is a disk-backed B+ tree index. A Tree is not safe for concurrent
// use by multiple goroutines without external synchronization; the pager
// beneath it makes the same requirement.
type Tree struct {
	pager   *pager.Pager
	meta    *meta
	metrics *Metrics
}

// Open opens the index file at path, creating it if necessary.
func Open(path string) (*Tree, error) {
	return open(path, noopMetrics())
}

// OpenWithMetrics opens the index file at path and registers its counters
// against reg under namespace, so they can be served on a /metrics endpoint
// alongside the rest of a process's instrumentation.
func OpenWithMetrics(path string, reg prometheus.Registerer, namespace string) (*Tree, error) {
	return open(path, NewMetrics(reg, namespace))
}

func open(path string, metrics *Metrics) (*Tree, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := loadMeta(p)
	if err != nil {
		if !errors.Is(err, ErrCorruptPage) {
			p.Close()
			return nil, err
		}
		page, pageErr := p.Page(0)
		if pageErr != nil {
			p.Close()
			return nil, pageErr
		}
		if !isZero(page) {
			p.Close()
			return nil, ErrCorruptPage
		}
		m, err = initMeta(p)
		if err != nil {
			p.Close()
			return nil, err
		}
		metrics.PagesAllocated.Inc()
	}

	return &Tree{pager: p, meta: m, metrics: metrics}, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Flush persists the metadata page and the whole mapping to disk.
func (t *Tree) Flush() error {
	if err := storeMeta(t.pager, t.meta); err != nil {
		return err
	}
	if err := t.pager.Flush(); err != nil {
		return err
	}
	t.metrics.Flushes.Inc()
	return nil
}

// Close flushes the index and releases the underlying file.
func (t *Tree) Close() error {
	if err := t.Flush(); err != nil {
		_ = t.pager.Close()
		return err
	}
	return t.pager.Close()
}

func (t *Tree) allocLeaf() (pager.PageID, *leafNode, error) {
	id, err := t.pager.Allocate()
	if err != nil {
		return pager.InvalidPage, nil, err
	}
	t.metrics.PagesAllocated.Inc()
	return id, newLeaf(), nil
}

func (t *Tree) allocInternal() (pager.PageID, *internalNode, error) {
	id, err := t.pager.Allocate()
	if err != nil {
		return pager.InvalidPage, nil, err
	}
	t.metrics.PagesAllocated.Inc()
	return id, newInternal(), nil
}

func (t *Tree) readLeaf(id pager.PageID) (*leafNode, error) {
	page, err := t.pager.Page(id)
	if err != nil {
		return nil, err
	}
	return decodeLeaf(page)
}

func (t *Tree) readInternal(id pager.PageID) (*internalNode, error) {
	page, err := t.pager.Page(id)
	if err != nil {
		return nil, err
	}
	return decodeInternal(page)
}

func (t *Tree) writeLeaf(id pager.PageID, n *leafNode) error {
	page, err := t.pager.Page(id)
	if err != nil {
		return err
	}
	encodeLeaf(n, page)
	return nil
}

func (t *Tree) writeInternal(id pager.PageID, n *internalNode) error {
	page, err := t.pager.Page(id)
	if err != nil {
		return err
	}
	encodeInternal(n, page)
	return nil
}

// Get looks up key. found is false, with no error, when the key is simply
// absent; an error only ever signals IO failure or page corruption.
func (t *Tree) Get(key int32) (value payload, found bool, err error) {
	if t.meta.root == pager.InvalidPage {
		return payload{}, false, nil
	}

	id := t.meta.root
	for {
		page, err := t.pager.Page(id)
		if err != nil {
			return payload{}, false, err
		}
		switch pageKind(page) {
		case kindLeaf:
			leaf, err := decodeLeaf(page)
			if err != nil {
				return payload{}, false, err
			}
			idx := findKeyIndexGE(leaf.keys[:], leaf.numKeys, key)
			if idx < leaf.numKeys && leaf.keys[idx] == key {
				return leaf.data[idx], true, nil
			}
			return payload{}, false, nil
		case kindInternal:
			internal, err := decodeInternal(page)
			if err != nil {
				return payload{}, false, err
			}
			idx := findKeyIndexGreater(internal.keys[:], internal.numKeys, key)
			id = internal.children[idx]
		default:
			return payload{}, false, ErrCorruptPage
		}
	}
}

// insertResult communicates a split back up the recursive insert descent.
type insertResult struct {
	split    bool
	promoted int32
	newPage  pager.PageID
}

// Put inserts key with value, or overwrites the value of an existing key.
func (t *Tree) Put(key int32, value payload) error {
	if t.meta.root == pager.InvalidPage {
		id, leaf, err := t.allocLeaf()
		if err != nil {
			return err
		}
		leaf.numKeys = 1
		leaf.keys[0] = key
		leaf.data[0] = value
		if err := t.writeLeaf(id, leaf); err != nil {
			return err
		}
		t.meta.root = id
		return storeMeta(t.pager, t.meta)
	}

	res, err := t.insert(t.meta.root, key, value)
	if err != nil {
		return err
	}
	if !res.split {
		return nil
	}

	id, root, err := t.allocInternal()
	if err != nil {
		return err
	}
	root.numKeys = 1
	root.keys[0] = res.promoted
	root.children[0] = t.meta.root
	root.children[1] = res.newPage
	if err := t.writeInternal(id, root); err != nil {
		return err
	}
	t.meta.root = id
	return storeMeta(t.pager, t.meta)
}

func (t *Tree) insert(id pager.PageID, key int32, value payload) (insertResult, error) {
	page, err := t.pager.Page(id)
	if err != nil {
		return insertResult{}, err
	}

	switch pageKind(page) {
	case kindLeaf:
		return t.insertLeaf(id, key, value)
	case kindInternal:
		return t.insertInternal(id, key, value)
	default:
		return insertResult{}, ErrCorruptPage
	}
}

func (t *Tree) insertLeaf(id pager.PageID, key int32, value payload) (insertResult, error) {
	leaf, err := t.readLeaf(id)
	if err != nil {
		return insertResult{}, err
	}

	idx := findKeyIndexGE(leaf.keys[:], leaf.numKeys, key)
	if idx < leaf.numKeys && leaf.keys[idx] == key {
		leaf.data[idx] = value
		return insertResult{}, t.writeLeaf(id, leaf)
	}

	newKeys := make([]int32, leaf.numKeys+1)
	newData := make([]payload, leaf.numKeys+1)
	copy(newKeys[:idx], leaf.keys[:idx])
	copy(newData[:idx], leaf.data[:idx])
	newKeys[idx] = key
	newData[idx] = value
	copy(newKeys[idx+1:], leaf.keys[idx:leaf.numKeys])
	copy(newData[idx+1:], leaf.data[idx:leaf.numKeys])
	n := len(newKeys)

	if n <= leafOrder {
		leaf.numKeys = n
		copy(leaf.keys[:n], newKeys)
		copy(leaf.data[:n], newData)
		return insertResult{}, t.writeLeaf(id, leaf)
	}

	// Overflow: split into a left half kept at id and a new right leaf,
	// splicing the right leaf into the sibling list and, critically,
	// repointing the old successor's prev pointer at the new leaf.
	left := newLeaf()
	left.numKeys = leafSplitLeft
	copy(left.keys[:leafSplitLeft], newKeys[:leafSplitLeft])
	copy(left.data[:leafSplitLeft], newData[:leafSplitLeft])

	rightID, right, err := t.allocLeaf()
	if err != nil {
		return insertResult{}, err
	}
	right.numKeys = leafSplitRight
	copy(right.keys[:leafSplitRight], newKeys[leafSplitLeft:])
	copy(right.data[:leafSplitRight], newData[leafSplitLeft:])

	right.next = leaf.next
	right.prev = id
	left.next = rightID
	left.prev = leaf.prev

	if leaf.next != pager.InvalidPage {
		succ, err := t.readLeaf(leaf.next)
		if err != nil {
			return insertResult{}, err
		}
		succ.prev = rightID
		if err := t.writeLeaf(leaf.next, succ); err != nil {
			return insertResult{}, err
		}
	}

	if err := t.writeLeaf(id, left); err != nil {
		return insertResult{}, err
	}
	if err := t.writeLeaf(rightID, right); err != nil {
		return insertResult{}, err
	}
	t.metrics.LeafSplits.Inc()

	return insertResult{split: true, promoted: right.keys[0], newPage: rightID}, nil
}

func (t *Tree) insertInternal(id pager.PageID, key int32, value payload) (insertResult, error) {
	internal, err := t.readInternal(id)
	if err != nil {
		return insertResult{}, err
	}

	idx := findKeyIndexGreater(internal.keys[:], internal.numKeys, key)
	childRes, err := t.insert(internal.children[idx], key, value)
	if err != nil {
		return insertResult{}, err
	}
	if !childRes.split {
		return insertResult{}, nil
	}

	newKeys := make([]int32, internal.numKeys+1)
	newChildren := make([]pager.PageID, internal.numKeys+2)
	copy(newKeys[:idx], internal.keys[:idx])
	newKeys[idx] = childRes.promoted
	copy(newKeys[idx+1:], internal.keys[idx:internal.numKeys])
	copy(newChildren[:idx+1], internal.children[:idx+1])
	newChildren[idx+1] = childRes.newPage
	copy(newChildren[idx+2:], internal.children[idx+1:internal.numKeys+1])
	n := len(newKeys)

	if n <= internalOrder {
		internal.numKeys = n
		copy(internal.keys[:n], newKeys)
		copy(internal.children[:n+1], newChildren)
		return insertResult{}, t.writeInternal(id, internal)
	}

	// Overflow: promote the middle key to the parent. It appears in
	// neither half.
	mid := internalSplitMid
	left := newInternal()
	left.numKeys = mid
	copy(left.keys[:mid], newKeys[:mid])
	copy(left.children[:mid+1], newChildren[:mid+1])

	promoted := newKeys[mid]

	rightID, right, err := t.allocInternal()
	if err != nil {
		return insertResult{}, err
	}
	rightCount := n - mid - 1
	right.numKeys = rightCount
	copy(right.keys[:rightCount], newKeys[mid+1:])
	copy(right.children[:rightCount+1], newChildren[mid+1:])

	if err := t.writeInternal(id, left); err != nil {
		return insertResult{}, err
	}
	if err := t.writeInternal(rightID, right); err != nil {
		return insertResult{}, err
	}
	t.metrics.InternalSplits.Inc()

	return insertResult{split: true, promoted: promoted, newPage: rightID}, nil
}

// Erase removes key, reporting whether it was present. A missing key is a
// normal outcome (removed == false, err == nil), never an error.
func (t *Tree) Erase(key int32) (removed bool, err error) {
	if t.meta.root == pager.InvalidPage {
		return false, nil
	}

	removed, _, err = t.delete(t.meta.root, key, true)
	if err != nil || !removed {
		return removed, err
	}

	page, err := t.pager.Page(t.meta.root)
	if err != nil {
		return true, err
	}
	switch pageKind(page) {
	case kindInternal:
		root, err := decodeInternal(page)
		if err != nil {
			return true, err
		}
		if root.numKeys == 0 {
			t.meta.root = root.children[0]
			t.metrics.RootCollapses.Inc()
		}
	case kindLeaf:
		leaf, err := decodeLeaf(page)
		if err != nil {
			return true, err
		}
		if leaf.numKeys == 0 {
			t.meta.root = pager.InvalidPage
		}
	default:
		return true, ErrCorruptPage
	}

	return true, storeMeta(t.pager, t.meta)
}

// delete removes key from the subtree rooted at id. underflow reports
// whether id itself now holds fewer than the minimum keys for a non-root
// node; the caller ignores it when id is the tree root.
func (t *Tree) delete(id pager.PageID, key int32, isRoot bool) (removed, underflow bool, err error) {
	page, err := t.pager.Page(id)
	if err != nil {
		return false, false, err
	}

	switch pageKind(page) {
	case kindLeaf:
		leaf, err := decodeLeaf(page)
		if err != nil {
			return false, false, err
		}
		idx := findKeyIndexGE(leaf.keys[:], leaf.numKeys, key)
		if idx >= leaf.numKeys || leaf.keys[idx] != key {
			return false, false, nil
		}
		copy(leaf.keys[idx:leaf.numKeys-1], leaf.keys[idx+1:leaf.numKeys])
		copy(leaf.data[idx:leaf.numKeys-1], leaf.data[idx+1:leaf.numKeys])
		leaf.numKeys--
		if err := t.writeLeaf(id, leaf); err != nil {
			return false, false, err
		}
		return true, !isRoot && leaf.numKeys < leafMinKeys, nil

	case kindInternal:
		internal, err := decodeInternal(page)
		if err != nil {
			return false, false, err
		}
		idx := findKeyIndexGreater(internal.keys[:], internal.numKeys, key)
		removed, childUnderflow, err := t.delete(internal.children[idx], key, false)
		if err != nil || !removed {
			return removed, false, err
		}
		if !childUnderflow {
			return true, false, nil
		}
		childWentUnderflow, err := t.rebalanceChild(internal, idx)
		if err != nil {
			return true, false, err
		}
		if err := t.writeInternal(id, internal); err != nil {
			return true, false, err
		}
		return true, !isRoot && childWentUnderflow, nil

	default:
		return false, false, ErrCorruptPage
	}
}

// rebalanceChild cures an underflow in parent.children[idx] by borrowing a
// key from a sibling with spare capacity, or merging with one (left sibling
// preferred) when neither has any to spare. It mutates parent in place and
// reports whether parent itself now underflows.
func (t *Tree) rebalanceChild(parent *internalNode, idx int) (bool, error) {
	childID := parent.children[idx]
	page, err := t.pager.Page(childID)
	if err != nil {
		return false, err
	}

	if pageKind(page) == kindLeaf {
		return t.rebalanceLeafChild(parent, idx)
	}
	return t.rebalanceInternalChild(parent, idx)
}

func (t *Tree) rebalanceLeafChild(parent *internalNode, idx int) (bool, error) {
	childID := parent.children[idx]
	child, err := t.readLeaf(childID)
	if err != nil {
		return false, err
	}

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, err := t.readLeaf(leftID)
		if err != nil {
			return false, err
		}
		if left.numKeys > leafMinKeys {
			copy(child.keys[1:child.numKeys+1], child.keys[:child.numKeys])
			copy(child.data[1:child.numKeys+1], child.data[:child.numKeys])
			child.keys[0] = left.keys[left.numKeys-1]
			child.data[0] = left.data[left.numKeys-1]
			child.numKeys++
			left.numKeys--
			parent.keys[idx-1] = child.keys[0]
			t.metrics.Borrows.Inc()
			if err := t.writeLeaf(leftID, left); err != nil {
				return false, err
			}
			return false, t.writeLeaf(childID, child)
		}
	}

	if idx < parent.numKeys {
		rightID := parent.children[idx+1]
		right, err := t.readLeaf(rightID)
		if err != nil {
			return false, err
		}
		if right.numKeys > leafMinKeys {
			child.keys[child.numKeys] = right.keys[0]
			child.data[child.numKeys] = right.data[0]
			child.numKeys++
			copy(right.keys[:right.numKeys-1], right.keys[1:right.numKeys])
			copy(right.data[:right.numKeys-1], right.data[1:right.numKeys])
			right.numKeys--
			parent.keys[idx] = right.keys[0]
			t.metrics.Borrows.Inc()
			if err := t.writeLeaf(childID, child); err != nil {
				return false, err
			}
			return false, t.writeLeaf(rightID, right)
		}
	}

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, err := t.readLeaf(leftID)
		if err != nil {
			return false, err
		}
		copy(left.keys[left.numKeys:left.numKeys+child.numKeys], child.keys[:child.numKeys])
		copy(left.data[left.numKeys:left.numKeys+child.numKeys], child.data[:child.numKeys])
		left.numKeys += child.numKeys
		left.next = child.next
		if child.next != pager.InvalidPage {
			succ, err := t.readLeaf(child.next)
			if err != nil {
				return false, err
			}
			succ.prev = leftID
			if err := t.writeLeaf(child.next, succ); err != nil {
				return false, err
			}
		}
		if err := t.writeLeaf(leftID, left); err != nil {
			return false, err
		}
		copy(parent.keys[idx-1:parent.numKeys-1], parent.keys[idx:parent.numKeys])
		copy(parent.children[idx:parent.numKeys], parent.children[idx+1:parent.numKeys+1])
		parent.numKeys--
		t.metrics.Merges.Inc()
		return parent.numKeys < internalMinKeys, nil
	}

	rightID := parent.children[idx+1]
	right, err := t.readLeaf(rightID)
	if err != nil {
		return false, err
	}
	copy(child.keys[child.numKeys:child.numKeys+right.numKeys], right.keys[:right.numKeys])
	copy(child.data[child.numKeys:child.numKeys+right.numKeys], right.data[:right.numKeys])
	child.numKeys += right.numKeys
	child.next = right.next
	if right.next != pager.InvalidPage {
		succ, err := t.readLeaf(right.next)
		if err != nil {
			return false, err
		}
		succ.prev = childID
		if err := t.writeLeaf(right.next, succ); err != nil {
			return false, err
		}
	}
	if err := t.writeLeaf(childID, child); err != nil {
		return false, err
	}
	copy(parent.keys[idx:parent.numKeys-1], parent.keys[idx+1:parent.numKeys])
	copy(parent.children[idx+1:parent.numKeys], parent.children[idx+2:parent.numKeys+1])
	parent.numKeys--
	t.metrics.Merges.Inc()
	return parent.numKeys < internalMinKeys, nil
}

func (t *Tree) rebalanceInternalChild(parent *internalNode, idx int) (bool, error) {
	childID := parent.children[idx]
	child, err := t.readInternal(childID)
	if err != nil {
		return false, err
	}

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, err := t.readInternal(leftID)
		if err != nil {
			return false, err
		}
		if left.numKeys > internalMinKeys {
			copy(child.keys[1:child.numKeys+1], child.keys[:child.numKeys])
			copy(child.children[1:child.numKeys+2], child.children[:child.numKeys+1])
			child.keys[0] = parent.keys[idx-1]
			child.children[0] = left.children[left.numKeys]
			child.numKeys++
			parent.keys[idx-1] = left.keys[left.numKeys-1]
			left.numKeys--
			t.metrics.Borrows.Inc()
			if err := t.writeInternal(leftID, left); err != nil {
				return false, err
			}
			return false, t.writeInternal(childID, child)
		}
	}

	if idx < parent.numKeys {
		rightID := parent.children[idx+1]
		right, err := t.readInternal(rightID)
		if err != nil {
			return false, err
		}
		if right.numKeys > internalMinKeys {
			child.keys[child.numKeys] = parent.keys[idx]
			child.children[child.numKeys+1] = right.children[0]
			child.numKeys++
			parent.keys[idx] = right.keys[0]
			copy(right.keys[:right.numKeys-1], right.keys[1:right.numKeys])
			copy(right.children[:right.numKeys], right.children[1:right.numKeys+1])
			right.numKeys--
			t.metrics.Borrows.Inc()
			if err := t.writeInternal(childID, child); err != nil {
				return false, err
			}
			return false, t.writeInternal(rightID, right)
		}
	}

	if idx > 0 {
		leftID := parent.children[idx-1]
		left, err := t.readInternal(leftID)
		if err != nil {
			return false, err
		}
		left.keys[left.numKeys] = parent.keys[idx-1]
		copy(left.keys[left.numKeys+1:left.numKeys+1+child.numKeys], child.keys[:child.numKeys])
		copy(left.children[left.numKeys+1:left.numKeys+2+child.numKeys], child.children[:child.numKeys+1])
		left.numKeys += child.numKeys + 1
		if err := t.writeInternal(leftID, left); err != nil {
			return false, err
		}
		copy(parent.keys[idx-1:parent.numKeys-1], parent.keys[idx:parent.numKeys])
		copy(parent.children[idx:parent.numKeys], parent.children[idx+1:parent.numKeys+1])
		parent.numKeys--
		t.metrics.Merges.Inc()
		return parent.numKeys < internalMinKeys, nil
	}

	rightID := parent.children[idx+1]
	right, err := t.readInternal(rightID)
	if err != nil {
		return false, err
	}
	child.keys[child.numKeys] = parent.keys[idx]
	copy(child.keys[child.numKeys+1:child.numKeys+1+right.numKeys], right.keys[:right.numKeys])
	copy(child.children[child.numKeys+1:child.numKeys+2+right.numKeys], right.children[:right.numKeys+1])
	child.numKeys += right.numKeys + 1
	if err := t.writeInternal(childID, child); err != nil {
		return false, err
	}
	copy(parent.keys[idx:parent.numKeys-1], parent.keys[idx+1:parent.numKeys])
	copy(parent.children[idx+1:parent.numKeys], parent.children[idx+2:parent.numKeys+1])
	parent.numKeys--
	t.metrics.Merges.Inc()
	return parent.numKeys < internalMinKeys, nil
}

// Range returns a Cursor over keys in [lo, hi], walking the leaf sibling
// list from the first qualifying leaf rather than revisiting internal
// nodes.
func (t *Tree) Range(lo, hi int32) (*Cursor, error) {
	if t.meta.root == pager.InvalidPage {
		return &Cursor{}, nil
	}

	id := t.meta.root
	for {
		page, err := t.pager.Page(id)
		if err != nil {
			return nil, err
		}
		if pageKind(page) == kindLeaf {
			break
		}
		internal, err := decodeInternal(page)
		if err != nil {
			return nil, err
		}
		idx := findKeyIndexGreater(internal.keys[:], internal.numKeys, lo)
		id = internal.children[idx]
	}

	leaf, err := t.readLeaf(id)
	if err != nil {
		return nil, err
	}
	idx := findKeyIndexGE(leaf.keys[:], leaf.numKeys, lo)

	return &Cursor{tree: t, leaf: leaf, idx: idx, hi: hi}, nil
}

// Cursor walks an ascending key range one entry at a time.
type Cursor struct {
	tree *Tree
	leaf *leafNode
	idx  int
	hi   int32
}

// Next advances the cursor, returning false once the range is exhausted.
func (c *Cursor) Next() (Entry, bool, error) {
	for {
		if c.leaf == nil {
			return Entry{}, false, nil
		}
		if c.idx >= c.leaf.numKeys {
			if c.leaf.next == pager.InvalidPage {
				c.leaf = nil
				return Entry{}, false, nil
			}
			next, err := c.tree.readLeaf(c.leaf.next)
			if err != nil {
				return Entry{}, false, err
			}
			c.leaf = next
			c.idx = 0
			continue
		}
		key := c.leaf.keys[c.idx]
		if key > c.hi {
			c.leaf = nil
			return Entry{}, false, nil
		}
		value := c.leaf.data[c.idx]
		c.idx++
		return Entry{Key: key, Value: value}, true, nil
	}
}
