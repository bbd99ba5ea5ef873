// Package observability collects in-process execution counters: statement
// and error tallies, predicate frequency, and the index/bloom/scan path
// each lookup took. The stats endpoint and the REPL read snapshots of it.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates execution counters for one engine instance.
type Collector struct {
	mu            sync.RWMutex
	startedAt     time.Time
	statements    map[string]int64
	errorCounts   map[string]int64
	predicateFreq map[string]*ColumnStats
	tableAccess   map[string]int64
	indexHits     int64
	bloomSkips    int64
	fullScans     int64
	rowsReturned  int64
	rowsAffected  int64
	joinBuildRows int64
	joinProbeRows int64
}

// ColumnStats holds predicate statistics for one column.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, ">" → 2)
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startedAt:     time.Now(),
		statements:    make(map[string]int64),
		errorCounts:   make(map[string]int64),
		predicateFreq: make(map[string]*ColumnStats),
		tableAccess:   make(map[string]int64),
	}
}

// RecordStatement counts one executed statement by kind (CREATE, INSERT,
// SELECT, JOIN, UPDATE, DELETE, DROP).
func (c *Collector) RecordStatement(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements[kind]++
}

// RecordError counts one failed statement by error category.
func (c *Collector) RecordError(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCounts[category]++
}

// RecordPredicate records a predicate evaluation against a column.
// This method is O(1) and thread-safe.
func (c *Collector) RecordPredicate(column, operator string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.predicateFreq[column]
	if !exists {
		stats = &ColumnStats{
			Column:    column,
			Operators: make(map[string]int),
		}
		c.predicateFreq[column] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// RecordTableAccess counts one read or predicate-driven mutation against a
// table.
func (c *Collector) RecordTableAccess(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableAccess[table]++
}

// RecordJoin adds one join's build and probe input sizes to the running
// totals.
func (c *Collector) RecordJoin(buildRows, probeRows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinBuildRows += int64(buildRows)
	c.joinProbeRows += int64(probeRows)
}

// RecordIndexHit counts a lookup answered from a unique index.
func (c *Collector) RecordIndexHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexHits++
}

// RecordBloomSkip counts a scan skipped because a filter ruled the value out.
func (c *Collector) RecordBloomSkip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bloomSkips++
}

// RecordFullScan counts a lookup that walked the whole table.
func (c *Collector) RecordFullScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullScans++
}

// RecordRowsReturned adds to the running total of rows produced by reads.
func (c *Collector) RecordRowsReturned(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsReturned += int64(n)
}

// RecordRowsAffected adds to the running total of rows changed by writes.
func (c *Collector) RecordRowsAffected(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsAffected += int64(n)
}

// TopPredicates returns the n most frequently tested columns, most frequent
// first. The result is a deep copy safe to hold across further recording.
func (c *Collector) TopPredicates(n int) []ColumnStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]ColumnStats, 0, len(c.predicateFreq))
	for _, stats := range c.predicateFreq {
		cp := ColumnStats{
			Column:    stats.Column,
			Frequency: stats.Frequency,
			LastSeen:  stats.LastSeen,
			Operators: make(map[string]int, len(stats.Operators)),
		}
		for op, count := range stats.Operators {
			cp.Operators[op] = count
		}
		all = append(all, cp)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Frequency != all[j].Frequency {
			return all[i].Frequency > all[j].Frequency
		}
		return all[i].Column < all[j].Column
	})

	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Prune drops per-column predicate statistics whose last recorded use is
// before the cutoff, returning how many columns were dropped. The map
// otherwise grows with every distinct column name ever queried.
func (c *Collector) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for column, stats := range c.predicateFreq {
		if stats.LastSeen.Before(cutoff) {
			delete(c.predicateFreq, column)
			dropped++
		}
	}
	return dropped
}

// Stats is a point-in-time snapshot of the collector, shaped for JSON.
type Stats struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Statements    map[string]int64 `json:"statements"`
	Errors        map[string]int64 `json:"errors"`
	TableAccess   map[string]int64 `json:"table_access"`
	IndexHits     int64            `json:"index_hits"`
	BloomSkips    int64            `json:"bloom_skips"`
	FullScans     int64            `json:"full_scans"`
	RowsReturned  int64            `json:"rows_returned"`
	RowsAffected  int64            `json:"rows_affected"`
	JoinBuildRows int64            `json:"join_build_rows"`
	JoinProbeRows int64            `json:"join_probe_rows"`
}

// Snapshot returns a copy of all counters.
func (c *Collector) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		Statements:    make(map[string]int64, len(c.statements)),
		Errors:        make(map[string]int64, len(c.errorCounts)),
		TableAccess:   make(map[string]int64, len(c.tableAccess)),
		IndexHits:     c.indexHits,
		BloomSkips:    c.bloomSkips,
		FullScans:     c.fullScans,
		RowsReturned:  c.rowsReturned,
		RowsAffected:  c.rowsAffected,
		JoinBuildRows: c.joinBuildRows,
		JoinProbeRows: c.joinProbeRows,
	}
	for k, v := range c.statements {
		s.Statements[k] = v
	}
	for k, v := range c.errorCounts {
		s.Errors[k] = v
	}
	for k, v := range c.tableAccess {
		s.TableAccess[k] = v
	}
	return s
}
