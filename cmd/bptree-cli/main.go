// Command bptree-cli is a small driver for exercising a bptree index file
// from the command line: insert a run of keys, look one up, and scan a
// range, printing what it did as it goes.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btree-query-bench/bptreeidx/dbms/index/bptree"
)

func main() {
	path := flag.String("path", "bptree_index.dat", "index file to open or create")
	count := flag.Int("count", 60, "number of sequential keys to insert")
	lookup := flag.Int("lookup", 0, "key to look up after inserting")
	rangeLo := flag.Int("range-lo", 0, "lower bound of the range scan, inclusive")
	rangeHi := flag.Int("range-hi", 10, "upper bound of the range scan, inclusive")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus counters on this address (e.g. :9090) and block after the run completes")
	flag.Parse()

	tree, err := openTree(*path, *metricsAddr)
	if err != nil {
		log.Fatalf("bptree-cli: open %q: %v", *path, err)
	}
	defer func() {
		if err := tree.Close(); err != nil {
			log.Printf("bptree-cli: close: %v", err)
		}
	}()

	if err := runStressInsert(tree, *count); err != nil {
		log.Fatalf("bptree-cli: insert: %v", err)
	}

	value, found, err := tree.Get(int32(*lookup))
	if err != nil {
		log.Fatalf("bptree-cli: get %d: %v", *lookup, err)
	}
	if found {
		log.Printf("get(%d) = %x (first 16 bytes)", *lookup, value[:16])
	} else {
		log.Printf("get(%d): not found", *lookup)
	}

	if err := printRange(tree, int32(*rangeLo), int32(*rangeHi)); err != nil {
		log.Fatalf("bptree-cli: range: %v", err)
	}

	if *metricsAddr != "" {
		log.Printf("serving /metrics on %s (ctrl-c to exit)", *metricsAddr)
		log.Fatal(http.ListenAndServe(*metricsAddr, nil))
	}
}

// openTree opens path, wiring its counters to a registry served over
// /metrics on metricsAddr when one is given, or backing them with a
// throwaway registry otherwise.
func openTree(path, metricsAddr string) (*bptree.Tree, error) {
	if metricsAddr == "" {
		return bptree.Open(path)
	}
	reg := prometheus.NewRegistry()
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return bptree.OpenWithMetrics(path, reg, "bptree_cli")
}

func runStressInsert(tree *bptree.Tree, count int) error {
	for i := 0; i < count; i++ {
		var value [100]byte
		value[0] = byte(i)
		if err := tree.Put(int32(i), value); err != nil {
			return err
		}
	}
	log.Printf("inserted %d keys", count)
	return nil
}

func printRange(tree *bptree.Tree, lo, hi int32) error {
	cur, err := tree.Range(lo, hi)
	if err != nil {
		return err
	}
	n := 0
	for {
		entry, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		log.Printf("range: key=%d", entry.Key)
		n++
	}
	log.Printf("range [%d, %d] visited %d keys", lo, hi, n)
	return nil
}
