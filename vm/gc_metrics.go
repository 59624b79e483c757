package vm

import "time"

// ---------------------------------------------------------------------------
// GCMetrics: Collection bookkeeping
// ---------------------------------------------------------------------------

// CollectionStats holds statistics from a single collection cycle.
type CollectionStats struct {
	Cycle     int           // 1-based cycle number
	IP        int           // instruction that requested the collection
	Kept      int           // slots the collector marked
	Freed     int           // slots that transitioned to free
	Live      int           // occupied slots after the sweep
	Duration  time.Duration // time spent waiting on the collector and sweeping
	Timestamp time.Time
}

// GCMetrics accumulates collection statistics across runs of a Runtime.
type GCMetrics struct {
	TotalCycles    int
	TotalCollected int
	last           *CollectionStats
}

// Record adds a finished cycle and assigns its cycle number.
func (m *GCMetrics) Record(stats CollectionStats) CollectionStats {
	m.TotalCycles++
	m.TotalCollected += stats.Freed
	stats.Cycle = m.TotalCycles
	if stats.Timestamp.IsZero() {
		stats.Timestamp = time.Now()
	}
	m.last = &stats
	return stats
}

// LastStats returns the most recent cycle, or nil if none has run.
func (m *GCMetrics) LastStats() *CollectionStats {
	return m.last
}
