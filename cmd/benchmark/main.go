// Command benchmark runs the same randomized workload mixes against the
// bptree index and a pebble-backed comparison engine, records timing and
// memory results to a CSV file, and renders a throughput bar chart.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/btree-query-bench/bptreeidx/dbms/index"
	"github.com/btree-query-bench/bptreeidx/dbms/index/bptree"
	"github.com/btree-query-bench/bptreeidx/dbms/index/pebbleidx"
)

func main() {
	dir := flag.String("dir", "benchmark-data", "directory to hold engine data files")
	ops := flag.Int("ops", 20000, "operations per workload run")
	keySpace := flag.Int("keyspace", 1_000_000, "range of keys each run draws from")
	csvPath := flag.String("csv", "benchmark_results.csv", "path to write the results CSV to")
	chartPath := flag.String("chart", "benchmark_throughput.png", "path to write the throughput chart to")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0755); err != nil {
		log.Fatalf("benchmark: mkdir %q: %v", *dir, err)
	}

	engines, closeAll, err := openEngines(*dir)
	if err != nil {
		log.Fatalf("benchmark: open engines: %v", err)
	}
	defer closeAll()

	var results []benchResult
	for _, w := range []workloadType{oltp, olap, reporting} {
		for name, engine := range engines {
			start := time.Now()
			if err := executeWorkload(engine, w, *ops, int32(*keySpace)); err != nil {
				log.Fatalf("benchmark: %s/%s: %v", name, w, err)
			}
			elapsed := time.Since(start)
			alloc := sampleAlloc()

			result := benchResult{
				Engine:     name,
				Workload:   w.String(),
				Ops:        *ops,
				Elapsed:    elapsed,
				AllocBytes: alloc,
			}
			results = append(results, result)
			log.Printf("%-8s %-10s %8d ops in %v (%.0f ops/s)", name, w, *ops, elapsed, result.OpsPerSecond())
		}
	}

	if err := writeCSV(*csvPath, results); err != nil {
		log.Fatalf("benchmark: write csv: %v", err)
	}
	if err := writeChart(*chartPath, results); err != nil {
		log.Fatalf("benchmark: write chart: %v", err)
	}
}

func openEngines(dir string) (map[string]index.Index, func(), error) {
	bp, err := bptree.OpenFacade(dir + "/bptree.dat")
	if err != nil {
		return nil, nil, err
	}
	pb, err := pebbleidx.Open(dir + "/pebble")
	if err != nil {
		bp.Close()
		return nil, nil, err
	}

	engines := map[string]index.Index{
		"bptree": bp,
		"pebble": pb,
	}
	closeAll := func() {
		for name, engine := range engines {
			if err := engine.Close(); err != nil {
				log.Printf("benchmark: close %s: %v", name, err)
			}
		}
	}
	return engines, closeAll, nil
}

func writeCSV(path string, results []benchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"engine", "workload", "ops", "elapsed_ms", "ops_per_sec", "heap_alloc_bytes"}); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Engine,
			r.Workload,
			strconv.Itoa(r.Ops),
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
			strconv.FormatFloat(r.OpsPerSecond(), 'f', 2, 64),
			strconv.FormatUint(r.AllocBytes, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeChart(path string, results []benchResult) error {
	p := plot.New()
	p.Title.Text = "Throughput by engine and workload"
	p.Y.Label.Text = "ops/sec"

	byWorkload := map[string]plotter.Values{}
	var labels []string
	for _, r := range results {
		byWorkload[r.Engine] = append(byWorkload[r.Engine], r.OpsPerSecond())
	}
	seen := map[string]bool{}
	for _, r := range results {
		if !seen[r.Workload] {
			labels = append(labels, r.Workload)
			seen[r.Workload] = true
		}
	}

	width := vg.Points(15)
	offset := -float64(len(byWorkload)-1) * float64(width) / 2
	i := 0.0
	for engine, values := range byWorkload {
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return fmt.Errorf("benchmark: bar chart for %s: %w", engine, err)
		}
		bars.Offset = vg.Points(offset) + vg.Points(i*float64(width))
		p.Add(bars)
		p.Legend.Add(engine, bars)
		i++
	}
	p.NominalX(labels...)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
