package bptree

import (
	"encoding/binary"

	"github.com/btree-query-bench/bptreeidx/dbms/pager"
)

// metaMagic identifies page 0 as a bptree metadata page.
const metaMagic = "BPTREEv1"

const (
	metaOffMagic = 0                          // 8 bytes
	metaOffRoot  = metaOffMagic + 8           // 8 bytes, little-endian uint64
	metaOffPages = metaOffRoot + 8            // 8 bytes, little-endian uint64
)

// noRoot is the on-disk sentinel meaning the tree is empty: no root page
// has been allocated yet.
const noRoot = ^uint64(0)

// meta is the decoded form of page 0.
type meta struct {
	root pager.PageID // InvalidPage when the tree is empty
}

// loadMeta reads and validates page 0. A page whose first 8 bytes don't
// match metaMagic is corrupt: it is either uninitialized garbage or a file
// that was never a bptree index.
func loadMeta(p *pager.Pager) (*meta, error) {
	page, err := p.Page(0)
	if err != nil {
		return nil, err
	}
	if string(page[metaOffMagic:metaOffMagic+8]) != metaMagic {
		return nil, ErrCorruptPage
	}
	root := binary.LittleEndian.Uint64(page[metaOffRoot : metaOffRoot+8])
	m := &meta{root: pager.InvalidPage}
	if root != noRoot {
		m.root = pager.PageID(root)
	}
	return m, nil
}

// initMeta stamps a fresh page 0 with the magic tag and allocates page 1
// as an empty leaf to serve as the initial root: a freshly created index
// is never rootless, it starts as one empty leaf.
func initMeta(p *pager.Pager) (*meta, error) {
	rootID, _, err := allocLeafOn(p)
	if err != nil {
		return nil, err
	}

	// Allocate may have remapped the file, so page 0's window is only
	// fetched now, not before the call above.
	page, err := p.Page(0)
	if err != nil {
		return nil, err
	}
	for i := range page {
		page[i] = 0
	}
	copy(page[metaOffMagic:metaOffMagic+8], metaMagic)
	binary.LittleEndian.PutUint64(page[metaOffRoot:metaOffRoot+8], uint64(rootID))
	binary.LittleEndian.PutUint64(page[metaOffPages:metaOffPages+8], uint64(p.PageCount()))
	return &meta{root: rootID}, nil
}

// allocLeafOn allocates a page on p and stamps it as an empty leaf. It is
// used here, ahead of Tree existing, purely to seed a fresh index's root.
func allocLeafOn(p *pager.Pager) (pager.PageID, []byte, error) {
	id, err := p.Allocate()
	if err != nil {
		return pager.InvalidPage, nil, err
	}
	page, err := p.Page(id)
	if err != nil {
		return pager.InvalidPage, nil, err
	}
	encodeLeaf(newLeaf(), page)
	return id, page, nil
}

// storeMeta writes m's root back to page 0.
func storeMeta(p *pager.Pager, m *meta) error {
	page, err := p.Page(0)
	if err != nil {
		return err
	}
	root := noRoot
	if m.root != pager.InvalidPage {
		root = uint64(m.root)
	}
	binary.LittleEndian.PutUint64(page[metaOffRoot:metaOffRoot+8], root)
	binary.LittleEndian.PutUint64(page[metaOffPages:metaOffPages+8], uint64(p.PageCount()))
	return nil
}
