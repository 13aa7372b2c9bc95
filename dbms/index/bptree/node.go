// Package bptree implements a disk-based B+ tree keyed by signed 32-bit
// integers, mapping each key to a fixed 100-byte payload, persisted one
// node per 4 KiB page behind the pager's memory mapping.
//
// Leaf page layout (4096 bytes):
//
//	[0]        uint8   kind, always 1
//	[1..9)     uint64  number of keys, 0..=36
//	[9..153)   36 × int32    keys
//	[153..3753) 36 × [100]byte payloads
//	[3753..3757) int32  next leaf page (-1 = none)
//	[3757..3761) int32  prev leaf page (-1 = none)
//	[3761..4096) reserved, zero
//
// Internal page layout (4096 bytes):
//
//	[0]        uint8   kind, always 0
//	[1..9)     uint64  number of keys, 0..=340 steady state (341 transient)
//	[9..1373)  341 × int32  separator keys (one overflow slot)
//	[1373..2741) 342 × int32  child page ids (two overflow slots)
//	[2741..4096) reserved, zero
package bptree

import (
	"encoding/binary"

	"github.com/btree-query-bench/bptreeidx/dbms/pager"
)

const (
	dataSize = 100 // payload size in bytes

	leafOrder = 36 // max keys a leaf holds in steady state

	// A leaf overflows at 37 keys (one past capacity) and splits into a
	// left half of leafSplitLeft and a right half of leafSplitRight.
	leafSplitLeft  = 19
	leafSplitRight = 18

	// leafMinKeys is the fewest keys a non-root leaf may hold before
	// delete triggers a borrow or merge: n < 18 triggers it, donors need
	// more than 18 to lend one without themselves falling under it. It
	// equals the smaller half of a split, and an underflowing leaf (17)
	// merged with a sibling that cannot lend (18) still fits in 36 slots.
	leafMinKeys = 18

	internalOrder = 340 // max keys an internal node holds in steady state

	// An internal node overflows at 341 keys. The split promotes the key
	// at internalSplitMid to the parent; it lands in neither half.
	internalSplitMid = 170

	// internalMinKeys is the fewest keys a non-root internal node may
	// hold before delete triggers a borrow or merge: n < 170 triggers
	// it, donors need more than 170 to lend one without themselves
	// falling under it. A merge of 169 + 170 keys plus the separator
	// pulled down from the parent yields at most 340 keys.
	internalMinKeys = 170

	internalKeyCap   = internalOrder + 1 // one overflow slot for transient insert
	internalChildCap = internalOrder + 2 // two overflow slots

	kindInternal byte = 0
	kindLeaf     byte = 1

	offKind    = 0
	offNumKeys = 1 // 8 bytes

	leafOffKeys     = 9
	leafOffData     = leafOffKeys + leafOrder*4
	leafOffNext     = leafOffData + leafOrder*dataSize
	leafOffPrev     = leafOffNext + 4

	internalOffKeys     = 9
	internalOffChildren = internalOffKeys + internalKeyCap*4
)

// payload is the fixed-size value type the tree stores per key.
type payload [dataSize]byte

// leafNode is the in-memory form of a decoded leaf page.
type leafNode struct {
	numKeys int
	keys    [leafOrder]int32
	data    [leafOrder]payload
	next    pager.PageID
	prev    pager.PageID
}

// internalNode is the in-memory form of a decoded internal page.
type internalNode struct {
	numKeys  int
	keys     [internalKeyCap]int32
	children [internalChildCap]pager.PageID
}

// pageKind reads only byte 0, so the codec can distinguish leaf from
// internal without decoding the rest of the page.
func pageKind(page []byte) byte {
	return page[offKind]
}

func newLeaf() *leafNode {
	n := &leafNode{next: pager.InvalidPage, prev: pager.InvalidPage}
	return n
}

func newInternal() *internalNode {
	n := &internalNode{}
	for i := range n.children {
		n.children[i] = pager.InvalidPage
	}
	return n
}

func decodeLeaf(page []byte) (*leafNode, error) {
	if pageKind(page) != kindLeaf {
		return nil, ErrCorruptPage
	}
	n := int(binary.LittleEndian.Uint64(page[offNumKeys : offNumKeys+8]))
	if n > leafOrder {
		return nil, ErrCorruptPage
	}
	node := &leafNode{numKeys: n}
	for i := 0; i < leafOrder; i++ {
		off := leafOffKeys + i*4
		node.keys[i] = int32(binary.LittleEndian.Uint32(page[off : off+4]))
	}
	for i := 0; i < leafOrder; i++ {
		off := leafOffData + i*dataSize
		copy(node.data[i][:], page[off:off+dataSize])
	}
	node.next = pager.PageID(int32(binary.LittleEndian.Uint32(page[leafOffNext : leafOffNext+4])))
	node.prev = pager.PageID(int32(binary.LittleEndian.Uint32(page[leafOffPrev : leafOffPrev+4])))
	return node, nil
}

func encodeLeaf(n *leafNode, page []byte) {
	for i := range page {
		page[i] = 0
	}
	page[offKind] = kindLeaf
	binary.LittleEndian.PutUint64(page[offNumKeys:offNumKeys+8], uint64(n.numKeys))
	for i := 0; i < leafOrder; i++ {
		off := leafOffKeys + i*4
		binary.LittleEndian.PutUint32(page[off:off+4], uint32(n.keys[i]))
	}
	for i := 0; i < leafOrder; i++ {
		off := leafOffData + i*dataSize
		copy(page[off:off+dataSize], n.data[i][:])
	}
	binary.LittleEndian.PutUint32(page[leafOffNext:leafOffNext+4], uint32(int32(n.next)))
	binary.LittleEndian.PutUint32(page[leafOffPrev:leafOffPrev+4], uint32(int32(n.prev)))
}

func decodeInternal(page []byte) (*internalNode, error) {
	if pageKind(page) != kindInternal {
		return nil, ErrCorruptPage
	}
	n := int(binary.LittleEndian.Uint64(page[offNumKeys : offNumKeys+8]))
	if n > internalKeyCap {
		return nil, ErrCorruptPage
	}
	node := &internalNode{numKeys: n}
	for i := 0; i < internalKeyCap; i++ {
		off := internalOffKeys + i*4
		node.keys[i] = int32(binary.LittleEndian.Uint32(page[off : off+4]))
	}
	for i := 0; i < internalChildCap; i++ {
		off := internalOffChildren + i*4
		node.children[i] = pager.PageID(int32(binary.LittleEndian.Uint32(page[off : off+4])))
	}
	return node, nil
}

func encodeInternal(n *internalNode, page []byte) {
	for i := range page {
		page[i] = 0
	}
	page[offKind] = kindInternal
	binary.LittleEndian.PutUint64(page[offNumKeys:offNumKeys+8], uint64(n.numKeys))
	for i := 0; i < internalKeyCap; i++ {
		off := internalOffKeys + i*4
		binary.LittleEndian.PutUint32(page[off:off+4], uint32(n.keys[i]))
	}
	for i := 0; i < internalChildCap; i++ {
		off := internalOffChildren + i*4
		binary.LittleEndian.PutUint32(page[off:off+4], uint32(int32(n.children[i])))
	}
}

// findKeyIndexGreater returns the smallest index i in 0..n such that keys[i] > key,
// or n if no such index exists (strict-less comparison, so duplicates of a
// separator route right).
func findKeyIndexGreater(keys []int32, n int, key int32) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid] > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// findKeyIndexGE returns the smallest index i in 0..n such that keys[i] >= key,
// or n if no such index exists. Used for leaf equality search positioning.
func findKeyIndexGE(keys []int32, n int, key int32) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid] >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
