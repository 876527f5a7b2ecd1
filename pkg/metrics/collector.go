package metrics

import "time"

// ClusterStats is a point-in-time summary of the materialized universe,
// gathered by whatever last built one (normally internal/cycle, after a
// Run call finalizes its Universe). Collector intentionally depends only on
// this small plain-data shape, not on internal/cycle or internal/uni
// directly, since pkg/metrics sits below internal/cycle in the import
// graph.
type ClusterStats struct {
	NodesEligible int
	NodesTotal    int
	QueuesStarted int
	QueuesTotal   int
	// FairshareUsage maps a fair-share leaf entity name to its current
	// usage factor.
	FairshareUsage map[string]float64
}

// StatsSource supplies the most recently materialized ClusterStats.
type StatsSource interface {
	ClusterStats() (ClusterStats, bool)
}

// Collector periodically refreshes the cluster gauges (NodesTotal,
// QueuesTotal, FairshareUsageFactor) from a StatsSource, on the same
// ticker-driven polling loop the teacher used to sample manager state.
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats, ok := c.source.ClusterStats()
	if !ok {
		return
	}
	NodesTotal.WithLabelValues("true").Set(float64(stats.NodesEligible))
	NodesTotal.WithLabelValues("false").Set(float64(stats.NodesTotal - stats.NodesEligible))
	QueuesTotal.WithLabelValues("true").Set(float64(stats.QueuesStarted))
	QueuesTotal.WithLabelValues("false").Set(float64(stats.QueuesTotal - stats.QueuesStarted))
	for entity, factor := range stats.FairshareUsage {
		FairshareUsageFactor.WithLabelValues(entity).Set(factor)
	}
}
