package bptree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters a Tree updates as it runs. Each Tree owns an
// independent set so that multiple indexes in one process don't collide on
// the default registry, and so tests can register against a throwaway
// registry instead of the global one.
type Metrics struct {
	PagesAllocated  prometheus.Counter
	LeafSplits      prometheus.Counter
	InternalSplits  prometheus.Counter
	Merges          prometheus.Counter
	Borrows         prometheus.Counter
	RootCollapses   prometheus.Counter
	Flushes         prometheus.Counter
}

// NewMetrics registers a fresh set of bptree counters against reg. Pass
// prometheus.DefaultRegisterer to expose them on the process-wide
// /metrics endpoint, or a throwaway *prometheus.Registry in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesAllocated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_pages_allocated_total",
			Help:      "Pages allocated from the pager over the life of the index.",
		}),
		LeafSplits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_leaf_splits_total",
			Help:      "Leaf splits performed on overflowing insert.",
		}),
		InternalSplits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_internal_splits_total",
			Help:      "Internal node splits performed while promoting a separator.",
		}),
		Merges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_merges_total",
			Help:      "Sibling merges performed to cure underflow on delete.",
		}),
		Borrows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_borrows_total",
			Help:      "Sibling borrows performed to cure underflow on delete.",
		}),
		RootCollapses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_root_collapses_total",
			Help:      "Root replacements after its sole child absorbed it.",
		}),
		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bptree_flushes_total",
			Help:      "Caller-driven Flush calls.",
		}),
	}
}

// noopMetrics satisfies every counter with a detached one, used when a
// caller opens a Tree without supplying a registry.
func noopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "")
}
