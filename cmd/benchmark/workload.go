package main

import (
	"math/rand"

	"github.com/btree-query-bench/bptreeidx/dbms/index"
)

// workloadType selects the read/write/range mix a benchmark run issues.
type workloadType int

const (
	oltp workloadType = iota
	olap
	reporting
)

func (w workloadType) String() string {
	switch w {
	case oltp:
		return "oltp"
	case olap:
		return "olap"
	case reporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// executeWorkload issues ops randomized operations against idx, biased
// toward point lookups for oltp and range scans for olap, and mixing
// lookups, inserts and range scans 40/30/30 for reporting.
func executeWorkload(idx index.Index, w workloadType, ops int, keySpace int32) error {
	value := make([]byte, 100)
	for i := 0; i < ops; i++ {
		key := rand.Int31n(keySpace)
		roll := rand.Float64()

		var getShare, insertShare float64
		switch w {
		case oltp:
			getShare, insertShare = 0.7, 0.2
		case olap:
			getShare, insertShare = 0.1, 0.1
		default:
			getShare, insertShare = 0.4, 0.3
		}

		switch {
		case roll < getShare:
			if _, _, err := idx.Get(key); err != nil {
				return err
			}
		case roll < getShare+insertShare:
			value[0] = byte(i)
			if err := idx.Insert(key, value); err != nil {
				return err
			}
		default:
			lo := key
			hi := lo + 100
			it, err := idx.Range(lo, hi)
			if err != nil {
				return err
			}
			for it.Next() {
			}
			if err := it.Err(); err != nil {
				return err
			}
			if err := it.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
