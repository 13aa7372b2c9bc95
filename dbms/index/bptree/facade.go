package bptree

import (
	"github.com/cockroachdb/errors"

	"github.com/btree-query-bench/bptreeidx/dbms/index"
)

// ErrValueSize is returned by Facade.Insert when the caller's value is not
// exactly dataSize bytes: the on-disk layout has no room for anything else.
var ErrValueSize = errors.Newf("bptree: value must be exactly %d bytes", dataSize)

// Facade adapts Tree to the dbms/index.Index interface so a bptree index
// can be driven by the same benchmark harness as any other engine.
type Facade struct {
	tree *Tree
}

// OpenFacade opens path as a Facade-wrapped index.
func OpenFacade(path string) (*Facade, error) {
	t, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Facade{tree: t}, nil
}

func (f *Facade) Insert(key int32, value []byte) error {
	if len(value) != dataSize {
		return ErrValueSize
	}
	var p payload
	copy(p[:], value)
	return f.tree.Put(key, p)
}

func (f *Facade) Get(key int32) ([]byte, bool, error) {
	p, found, err := f.tree.Get(key)
	if err != nil || !found {
		return nil, found, err
	}
	out := make([]byte, dataSize)
	copy(out, p[:])
	return out, true, nil
}

func (f *Facade) Delete(key int32) (bool, error) {
	return f.tree.Erase(key)
}

func (f *Facade) Range(lo, hi int32) (index.Iterator, error) {
	cur, err := f.tree.Range(lo, hi)
	if err != nil {
		return nil, err
	}
	return &facadeIterator{cur: cur}, nil
}

func (f *Facade) Close() error {
	return f.tree.Close()
}

// facadeIterator adapts Cursor to index.Iterator's pull-before-read shape.
type facadeIterator struct {
	cur     *Cursor
	current Entry
	err     error
}

func (it *facadeIterator) Next() bool {
	if it.err != nil || it.cur == nil {
		return false
	}
	entry, ok, err := it.cur.Next()
	if err != nil {
		it.err = err
		return false
	}
	if !ok {
		return false
	}
	it.current = entry
	return true
}

func (it *facadeIterator) Key() int32 {
	return it.current.Key
}

func (it *facadeIterator) Value() []byte {
	out := make([]byte, dataSize)
	copy(out, it.current.Value[:])
	return out
}

func (it *facadeIterator) Err() error {
	return it.err
}

func (it *facadeIterator) Close() error {
	return nil
}

var _ index.Index = (*Facade)(nil)
