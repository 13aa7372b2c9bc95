package main

import (
	"runtime"
	"time"
)

// benchResult is one row of a benchmark run, written to the results
// table and plotted as one bar.
type benchResult struct {
	Engine     string
	Workload   string
	Ops        int
	Elapsed    time.Duration
	AllocBytes uint64
}

// OpsPerSecond reports throughput for the run.
func (r benchResult) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// sampleAlloc forces a GC and reads HeapAlloc, giving a stable snapshot of
// live memory rather than one skewed by uncollected garbage from the run
// that just finished.
func sampleAlloc() uint64 {
	runtime.GC()
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
