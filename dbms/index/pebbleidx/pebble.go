// Package pebbleidx adapts cockroachdb/pebble to the dbms/index.Index
// interface, giving the benchmark harness an established LSM-tree engine
// to compare the bptree index against.
package pebbleidx

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/btree-query-bench/bptreeidx/dbms/index"
)

// Pebble wraps a pebble.DB as a dbms/index.Index.
type Pebble struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a pebble database at dir.
func Open(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebbleidx: open %q", dir)
	}
	return &Pebble{db: db}, nil
}

// encodeKey maps a signed int32 to a big-endian byte encoding that sorts
// identically to the signed integer order: flipping the sign bit puts
// negative values below positive ones in unsigned lexicographic order.
func encodeKey(key int32) []byte {
	u := uint32(key) ^ 0x80000000
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

func decodeKey(b []byte) int32 {
	u := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return int32(u ^ 0x80000000)
}

func (p *Pebble) Insert(key int32, value []byte) error {
	return p.db.Set(encodeKey(key), value, pebble.Sync)
}

func (p *Pebble) Get(key int32) ([]byte, bool, error) {
	value, closer, err := p.db.Get(encodeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), value...)
	return out, true, closer.Close()
}

func (p *Pebble) Delete(key int32) (bool, error) {
	_, found, err := p.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := p.db.Delete(encodeKey(key), pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pebble) Range(lo, hi int32) (index.Iterator, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: encodeKey(lo),
		UpperBound: encodeKey(hi + 1),
	})
	if err != nil {
		return nil, err
	}
	iter.First()
	return &pebbleIterator{iter: iter}, nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.Valid()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Key() int32 {
	return decodeKey(it.iter.Key())
}

func (it *pebbleIterator) Value() []byte {
	return append([]byte(nil), it.iter.Value()...)
}

func (it *pebbleIterator) Err() error {
	return it.iter.Error()
}

func (it *pebbleIterator) Close() error {
	return it.iter.Close()
}

var _ index.Index = (*Pebble)(nil)
