package bptree

import (
	"path/filepath"
	"testing"

	"github.com/btree-query-bench/bptreeidx/dbms/pager"
)

func TestInitMetaAllocatesEmptyLeafRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.dat")
	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	m, err := initMeta(p)
	if err != nil {
		t.Fatalf("initMeta: %v", err)
	}
	if m.root != pager.PageID(1) {
		t.Fatalf("root = %d, want page 1", m.root)
	}
	if got := p.PageCount(); got != 2 {
		t.Fatalf("PageCount() = %d, want 2 (metadata page + root leaf)", got)
	}

	rootPage, err := p.Page(m.root)
	if err != nil {
		t.Fatalf("Page(root): %v", err)
	}
	leaf, err := decodeLeaf(rootPage)
	if err != nil {
		t.Fatalf("decodeLeaf(root): %v", err)
	}
	if leaf.numKeys != 0 {
		t.Fatalf("root leaf numKeys = %d, want 0", leaf.numKeys)
	}

	loaded, err := loadMeta(p)
	if err != nil {
		t.Fatalf("loadMeta: %v", err)
	}
	if loaded.root != pager.PageID(1) {
		t.Fatalf("loaded root = %d, want page 1", loaded.root)
	}
}

func TestStoreMetaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.dat")
	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	m, err := initMeta(p)
	if err != nil {
		t.Fatalf("initMeta: %v", err)
	}
	m.root = pager.PageID(5)
	if err := storeMeta(p, m); err != nil {
		t.Fatalf("storeMeta: %v", err)
	}

	loaded, err := loadMeta(p)
	if err != nil {
		t.Fatalf("loadMeta: %v", err)
	}
	if loaded.root != pager.PageID(5) {
		t.Fatalf("loaded root = %d, want 5", loaded.root)
	}
}

func TestLoadMetaRejectsMissingMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.dat")
	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	defer p.Close()

	if _, err := loadMeta(p); err == nil {
		t.Fatalf("loadMeta accepted a zeroed page with no magic tag")
	}
}
