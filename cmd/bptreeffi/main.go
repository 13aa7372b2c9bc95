// Command bptreeffi builds a C-callable shared library exposing the bptree
// index through the writeData/readData/deleteData/readRangeData/freeData
// surface of the original Rust implementation's extern "C" block, plus
// freeRangeData to release range results, for callers embedding the index
// from non-Go code. Build with:
//
//	go build -buildmode=c-shared -o libbptree.so ./cmd/bptreeffi
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"log"
	"os"
	"sync"
	"unsafe"

	"github.com/btree-query-bench/bptreeidx/dbms/index/bptree"
)

const dataSize = 100

var (
	treeMu sync.Mutex
	tree   *bptree.Tree
)

func ensureTree() *bptree.Tree {
	treeMu.Lock()
	defer treeMu.Unlock()
	if tree == nil {
		path := os.Getenv("BPTREE_FFI_PATH")
		if path == "" {
			path = "bptree_index.dat"
		}
		t, err := bptree.Open(path)
		if err != nil {
			log.Printf("bptreeffi: open %q: %v", path, err)
			return nil
		}
		tree = t
	}
	return tree
}

// writeData inserts or updates key with the dataSize bytes at data,
// returning 1 on success and 0 on failure (null data pointer, IO error, or
// an uninitialized tree).
//
//export writeData
func writeData(key C.int, data *C.uchar) C.int {
	t := ensureTree()
	if t == nil || data == nil {
		return 0
	}

	treeMu.Lock()
	defer treeMu.Unlock()

	slice := unsafe.Slice((*byte)(data), dataSize)
	var p [dataSize]byte
	copy(p[:], slice)

	if err := t.Put(int32(key), p); err != nil {
		log.Printf("bptreeffi: Put(%d): %v", key, err)
		return 0
	}
	return 1
}

// readData looks up key and returns a newly allocated dataSize-byte C
// buffer, or NULL if the key is absent. The caller must release the buffer
// with freeData.
//
//export readData
func readData(key C.int) *C.uchar {
	t := ensureTree()
	if t == nil {
		return nil
	}

	treeMu.Lock()
	value, found, err := t.Get(int32(key))
	treeMu.Unlock()
	if err != nil {
		log.Printf("bptreeffi: Get(%d): %v", key, err)
		return nil
	}
	if !found {
		return nil
	}

	buf := C.malloc(C.size_t(dataSize))
	if buf == nil {
		return nil
	}
	dst := unsafe.Slice((*byte)(buf), dataSize)
	copy(dst, value[:])
	return (*C.uchar)(buf)
}

// deleteData removes key, returning 1 if it was present and 0 otherwise.
//
//export deleteData
func deleteData(key C.int) C.int {
	t := ensureTree()
	if t == nil {
		return 0
	}

	treeMu.Lock()
	removed, err := t.Erase(int32(key))
	treeMu.Unlock()
	if err != nil {
		log.Printf("bptreeffi: Erase(%d): %v", key, err)
		return 0
	}
	if removed {
		return 1
	}
	return 0
}

// readRangeData scans [lowerKey, upperKey] and returns a NULL-free C array
// of dataSize-byte buffers with its length written through n. The caller
// releases the result with freeRangeData.
//
//export readRangeData
func readRangeData(lowerKey, upperKey C.int, n *C.int) **C.uchar {
	t := ensureTree()
	if t == nil || n == nil {
		return nil
	}

	treeMu.Lock()
	cur, err := t.Range(int32(lowerKey), int32(upperKey))
	if err != nil {
		treeMu.Unlock()
		log.Printf("bptreeffi: Range(%d, %d): %v", lowerKey, upperKey, err)
		*n = 0
		return nil
	}

	var entries []bptree.Entry
	for {
		entry, ok, err := cur.Next()
		if err != nil {
			log.Printf("bptreeffi: range iteration: %v", err)
			break
		}
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	treeMu.Unlock()

	*n = C.int(len(entries))
	if len(entries) == 0 {
		return nil
	}

	ptrArray := C.malloc(C.size_t(len(entries)) * C.size_t(unsafe.Sizeof(uintptr(0))))
	if ptrArray == nil {
		*n = 0
		return nil
	}
	ptrs := unsafe.Slice((**C.uchar)(ptrArray), len(entries))
	for i, entry := range entries {
		buf := C.malloc(C.size_t(dataSize))
		if buf == nil {
			for j := 0; j < i; j++ {
				C.free(unsafe.Pointer(ptrs[j]))
			}
			C.free(ptrArray)
			*n = 0
			return nil
		}
		dst := unsafe.Slice((*byte)(buf), dataSize)
		copy(dst, entry.Value[:])
		ptrs[i] = (*C.uchar)(buf)
	}
	return (**C.uchar)(ptrArray)
}

// freeData releases a buffer returned by readData.
//
//export freeData
func freeData(data *C.uchar) {
	if data != nil {
		C.free(unsafe.Pointer(data))
	}
}

// freeRangeData releases the array and every buffer returned by
// readRangeData.
//
//export freeRangeData
func freeRangeData(data **C.uchar, n C.int) {
	if data == nil || n <= 0 {
		return
	}
	ptrs := unsafe.Slice(data, int(n))
	for _, ptr := range ptrs {
		if ptr != nil {
			C.free(unsafe.Pointer(ptr))
		}
	}
	C.free(unsafe.Pointer(data))
}

func main() {}
