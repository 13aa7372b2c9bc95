package bptree

import (
	"testing"

	"github.com/btree-query-bench/bptreeidx/dbms/pager"
)

func TestLeafEncodeDecodeRoundTrip(t *testing.T) {
	n := newLeaf()
	n.numKeys = 3
	n.keys[0], n.keys[1], n.keys[2] = -100, 0, 100
	n.data[0] = makePayload(1)
	n.data[1] = makePayload(2)
	n.data[2] = makePayload(3)
	n.next = pager.PageID(7)
	n.prev = pager.PageID(3)

	var page [pager.PageSize]byte
	encodeLeaf(n, page[:])

	if pageKind(page[:]) != kindLeaf {
		t.Fatalf("pageKind = %d, want kindLeaf", pageKind(page[:]))
	}

	got, err := decodeLeaf(page[:])
	if err != nil {
		t.Fatalf("decodeLeaf: %v", err)
	}
	if got.numKeys != n.numKeys {
		t.Fatalf("numKeys = %d, want %d", got.numKeys, n.numKeys)
	}
	for i := 0; i < n.numKeys; i++ {
		if got.keys[i] != n.keys[i] {
			t.Fatalf("keys[%d] = %d, want %d", i, got.keys[i], n.keys[i])
		}
		if got.data[i] != n.data[i] {
			t.Fatalf("data[%d] mismatch", i)
		}
	}
	if got.next != n.next || got.prev != n.prev {
		t.Fatalf("sibling pointers = (%d,%d), want (%d,%d)", got.next, got.prev, n.next, n.prev)
	}
}

func TestInternalEncodeDecodeRoundTrip(t *testing.T) {
	n := newInternal()
	n.numKeys = 2
	n.keys[0], n.keys[1] = 10, 20
	n.children[0] = pager.PageID(1)
	n.children[1] = pager.PageID(2)
	n.children[2] = pager.PageID(3)

	var page [pager.PageSize]byte
	encodeInternal(n, page[:])

	if pageKind(page[:]) != kindInternal {
		t.Fatalf("pageKind = %d, want kindInternal", pageKind(page[:]))
	}

	got, err := decodeInternal(page[:])
	if err != nil {
		t.Fatalf("decodeInternal: %v", err)
	}
	if got.numKeys != n.numKeys {
		t.Fatalf("numKeys = %d, want %d", got.numKeys, n.numKeys)
	}
	for i := 0; i < n.numKeys; i++ {
		if got.keys[i] != n.keys[i] {
			t.Fatalf("keys[%d] = %d, want %d", i, got.keys[i], n.keys[i])
		}
	}
	for i := 0; i <= n.numKeys; i++ {
		if got.children[i] != n.children[i] {
			t.Fatalf("children[%d] = %d, want %d", i, got.children[i], n.children[i])
		}
	}
}

func TestDecodeLeafRejectsWrongKind(t *testing.T) {
	var page [pager.PageSize]byte
	page[offKind] = kindInternal
	if _, err := decodeLeaf(page[:]); err == nil {
		t.Fatalf("decodeLeaf accepted a page stamped as internal")
	}
}

func TestDecodeInternalRejectsWrongKind(t *testing.T) {
	var page [pager.PageSize]byte
	page[offKind] = kindLeaf
	if _, err := decodeInternal(page[:]); err == nil {
		t.Fatalf("decodeInternal accepted a page stamped as leaf")
	}
}

func TestFindKeyIndexGreaterAndGE(t *testing.T) {
	keys := []int32{10, 20, 20, 30}
	if got := findKeyIndexGreater(keys, len(keys), 20); got != 3 {
		t.Fatalf("findKeyIndexGreater(20) = %d, want 3", got)
	}
	if got := findKeyIndexGreater(keys, len(keys), 5); got != 0 {
		t.Fatalf("findKeyIndexGreater(5) = %d, want 0", got)
	}
	if got := findKeyIndexGE(keys, len(keys), 20); got != 1 {
		t.Fatalf("findKeyIndexGE(20) = %d, want 1", got)
	}
	if got := findKeyIndexGE(keys, len(keys), 25); got != 3 {
		t.Fatalf("findKeyIndexGE(25) = %d, want 3", got)
	}
}
