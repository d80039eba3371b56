package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	processed  prometheus.Counter
	committed  prometheus.Counter
	mismatches prometheus.Counter
	height     prometheus.Gauge
	execute    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbtools",
			Subsystem: "sync",
			Name:      "blocks_processed_total",
			Help:      "Blocks executed by the engine.",
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbtools",
			Subsystem: "sync",
			Name:      "blocks_committed_total",
			Help:      "Blocks whose precommit state was written.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbtools",
			Subsystem: "sync",
			Name:      "state_root_mismatches_total",
			Help:      "Blocks whose computed state root differs from the recorded one.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbtools",
			Subsystem: "sync",
			Name:      "current_height",
			Help:      "Height of the block being replayed.",
		}),
		execute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dbtools",
			Subsystem: "sync",
			Name:      "execute_seconds",
			Help:      "Time spent executing a block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.processed, m.committed, m.mismatches, m.height, m.execute} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
