// Package monitoring records per-query scan metrics and exposes them as
// Prometheus collectors.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScanMetrics describes the data read of one file.
type ScanMetrics struct {
	Path     string        `json:"path"`
	RowsRead int64         `json:"rows_read"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}

// QueryMetrics describes one executed query.
type QueryMetrics struct {
	QueryID      string        `json:"query_id"`
	Duration     time.Duration `json:"duration"`
	FilesTotal   int           `json:"files_total"`
	FilesPruned  int           `json:"files_pruned"`
	FilesScanned int           `json:"files_scanned"`
	FilesFailed  int           `json:"files_failed"`
	RowsRead     int64         `json:"rows_read"`
	RowsReturned int64         `json:"rows_returned"`
	Aggregated   bool          `json:"aggregated"`
	Failed       bool          `json:"failed"`
}

// Collector collects scan and query metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	mu      sync.RWMutex
	queries []QueryMetrics
	reads   map[string]int
	enabled bool
	prom    *promMetrics
}

// NewCollector creates a collector with its own Prometheus registry.
func NewCollector(enabled bool) *Collector {
	return &Collector{
		reads:   make(map[string]int),
		enabled: enabled,
		prom:    newPromMetrics(),
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (c *Collector) IsEnabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled enables or disables metrics collection.
func (c *Collector) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// RecordOperation executes fn and records its duration under operation.
func (c *Collector) RecordOperation(operation string, fn func() error) error {
	if !c.IsEnabled() {
		return fn()
	}
	start := time.Now()
	err := fn()
	c.prom.operationDuration.WithLabelValues(operation, status(err != nil)).Observe(time.Since(start).Seconds())
	return err
}

// RecordScan records that a file's data was read.
func (c *Collector) RecordScan(m ScanMetrics) {
	if !c.IsEnabled() {
		return
	}
	c.mu.Lock()
	c.reads[m.Path]++
	c.mu.Unlock()

	c.prom.scans.WithLabelValues(status(m.Failed)).Inc()
	c.prom.rowsRead.Add(float64(m.RowsRead))
	c.prom.scanDuration.Observe(m.Duration.Seconds())
}

// RecordQuery records a finished query.
func (c *Collector) RecordQuery(m QueryMetrics) {
	if !c.IsEnabled() {
		return
	}
	c.mu.Lock()
	c.queries = append(c.queries, m)
	c.mu.Unlock()

	c.prom.queries.WithLabelValues(status(m.Failed)).Inc()
	c.prom.filesPruned.Add(float64(m.FilesPruned))
	c.prom.rowsReturned.Add(float64(m.RowsReturned))
	c.prom.queryDuration.Observe(m.Duration.Seconds())
}

// Queries returns a copy of the recorded queries.
func (c *Collector) Queries() []QueryMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]QueryMetrics, len(c.queries))
	copy(result, c.queries)
	return result
}

// FileReads returns how many times the data of path was read.
func (c *Collector) FileReads(path string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reads[path]
}

// TotalFileReads returns the number of file data reads recorded.
func (c *Collector) TotalFileReads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.reads {
		total += n
	}
	return total
}

// Clear removes recorded queries and reads. Prometheus counters keep
// counting.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = c.queries[:0]
	c.reads = make(map[string]int)
}

// Registry returns the registry holding the collector's Prometheus metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.prom.registry }

// Summary returns aggregate statistics over the recorded queries.
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.queries) == 0 {
		return Summary{}
	}

	var s Summary
	for _, q := range c.queries {
		s.TotalDuration += q.Duration
		s.FilesScanned += q.FilesScanned
		s.FilesPruned += q.FilesPruned
		s.FilesFailed += q.FilesFailed
		s.RowsRead += q.RowsRead
		s.RowsReturned += q.RowsReturned
	}
	s.Queries = len(c.queries)
	s.AverageDuration = s.TotalDuration / time.Duration(len(c.queries))
	return s
}

// Summary provides aggregate statistics for recorded queries.
type Summary struct {
	Queries         int           `json:"queries"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	FilesScanned    int           `json:"files_scanned"`
	FilesPruned     int           `json:"files_pruned"`
	FilesFailed     int           `json:"files_failed"`
	RowsRead        int64         `json:"rows_read"`
	RowsReturned    int64         `json:"rows_returned"`
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
