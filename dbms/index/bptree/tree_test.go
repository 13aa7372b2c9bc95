package bptree

import (
	"path/filepath"
	"testing"
)

func makePayload(b byte) payload {
	var p payload
	for i := range p {
		p[i] = b
	}
	return p
}

func openTree(t *testing.T) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.dat")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree
}

func TestGetOnEmptyTreeNotFound(t *testing.T) {
	tree := openTree(t)
	_, found, err := tree.Get(42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("Get on empty tree reported found")
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	tree := openTree(t)
	want := makePayload(7)
	if err := tree.Put(10, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := tree.Get(10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("Get: key not found after Put")
	}
	if got != want {
		t.Fatalf("Get returned %v, want %v", got, want)
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	tree := openTree(t)
	if err := tree.Put(5, makePayload(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tree.Put(5, makePayload(2)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, found, err := tree.Get(5)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got != makePayload(2) {
		t.Fatalf("Get returned stale value %v", got)
	}
}

func TestNegativeKeyDoesNotFabricatePayload(t *testing.T) {
	// Regression guard: -5432 must behave like any other absent key,
	// with no special-cased payload ever returned for it.
	tree := openTree(t)
	for i := int32(-10); i <= 10; i++ {
		if err := tree.Put(i, makePayload(byte(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	_, found, err := tree.Get(-5432)
	if err != nil {
		t.Fatalf("Get(-5432): %v", err)
	}
	if found {
		t.Fatalf("Get(-5432) reported found on a key never inserted")
	}
}

func TestLeafSplitAndLookupAllKeys(t *testing.T) {
	tree := openTree(t)
	const n = 200
	for i := int32(0); i < n; i++ {
		if err := tree.Put(i, makePayload(byte(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	for i := int32(0); i < n; i++ {
		got, found, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !found {
			t.Fatalf("Get(%d): not found after split-heavy inserts", i)
		}
		if got != makePayload(byte(i)) {
			t.Fatalf("Get(%d) = %v, want payload of %d", i, got, i)
		}
	}
}

func TestLeafSplitPreservesSiblingChain(t *testing.T) {
	tree := openTree(t)
	const n = 500
	for i := int32(0); i < n; i++ {
		if err := tree.Put(i, makePayload(byte(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	cur, err := tree.Range(0, n-1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	var seen int32
	for {
		entry, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if entry.Key != seen {
			t.Fatalf("Range returned key %d out of order, want %d", entry.Key, seen)
		}
		seen++
	}
	if seen != n {
		t.Fatalf("Range visited %d keys, want %d", seen, n)
	}
}

func TestRangeScanIsInclusiveAndOrdered(t *testing.T) {
	tree := openTree(t)
	for i := int32(0); i < 100; i++ {
		if err := tree.Put(i*2, makePayload(byte(i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	cur, err := tree.Range(10, 20)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	want := []int32{10, 12, 14, 16, 18, 20}
	var got []int32
	for {
		entry, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, entry.Key)
	}
	if len(got) != len(want) {
		t.Fatalf("Range returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Range[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEraseMissingKeyReportsNotRemoved(t *testing.T) {
	tree := openTree(t)
	if err := tree.Put(1, makePayload(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := tree.Erase(999)
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if removed {
		t.Fatalf("Erase reported removal of a key never inserted")
	}
}

func TestEraseThenGetNotFound(t *testing.T) {
	tree := openTree(t)
	if err := tree.Put(1, makePayload(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := tree.Erase(1)
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if !removed {
		t.Fatalf("Erase reported key not present")
	}
	_, found, err := tree.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("Get found a key after Erase")
	}
}

func TestEraseDrivesMergesAndRootCollapse(t *testing.T) {
	tree := openTree(t)
	const n = 1000
	for i := int32(0); i < n; i++ {
		if err := tree.Put(i, makePayload(byte(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	for i := int32(0); i < n; i++ {
		removed, err := tree.Erase(i)
		if err != nil {
			t.Fatalf("Erase(%d): %v", i, err)
		}
		if !removed {
			t.Fatalf("Erase(%d): not removed", i)
		}
	}
	if tree.meta.root != -1 {
		t.Fatalf("tree root = %d after deleting every key, want empty sentinel", tree.meta.root)
	}
	for i := int32(0); i < n; i++ {
		_, found, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if found {
			t.Fatalf("Get(%d): found after deleting every key", i)
		}
	}
}

func TestEraseInterleavedWithInsertsKeepsTreeConsistent(t *testing.T) {
	tree := openTree(t)
	present := make(map[int32]bool)
	for round := int32(0); round < 300; round++ {
		if err := tree.Put(round, makePayload(byte(round))); err != nil {
			t.Fatalf("Put(%d): %v", round, err)
		}
		present[round] = true
		if round%3 == 0 {
			victim := round / 2
			if present[victim] {
				removed, err := tree.Erase(victim)
				if err != nil {
					t.Fatalf("Erase(%d): %v", victim, err)
				}
				if !removed {
					t.Fatalf("Erase(%d): expected removal", victim)
				}
				delete(present, victim)
			}
		}
	}
	for k, want := range present {
		got, found, err := tree.Get(k)
		if err != nil {
			t.Fatalf("Get(%d): %v", k, err)
		}
		if !found {
			t.Fatalf("Get(%d): missing but should be present", k)
		}
		_ = want
		_ = got
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := int32(0); i < 100; i++ {
		if err := tree.Put(i, makePayload(byte(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	for i := int32(0); i < 100; i++ {
		got, found, err := reopened.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) after reopen: %v", i, err)
		}
		if !found {
			t.Fatalf("Get(%d) after reopen: not found", i)
		}
		if got != makePayload(byte(i)) {
			t.Fatalf("Get(%d) after reopen = %v, want payload of %d", i, got, i)
		}
	}
}

func TestOpenRejectsNonEmptyForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	page, err := tree.pager.Page(0)
	if err != nil {
		t.Fatalf("Page(0): %v", err)
	}
	page[0] = 0xFF // corrupt the magic tag
	if err := tree.pager.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := tree.pager.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("Open succeeded on a file with a corrupted magic tag")
	}
}
