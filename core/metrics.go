package core

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from the index pipeline.
// Implement this interface to integrate with monitoring systems; components
// receive a collector by injection and never mutate global state.
type MetricsCollector interface {
	// RecordScan is called after each safety scan. degraded is true when a
	// provider outage was swallowed and the scan defaulted to safe.
	RecordScan(duration time.Duration, degraded bool, err error)

	// RecordEmbed is called after each embedding gateway call, including
	// retries (attempts >= 1).
	RecordEmbed(duration time.Duration, attempts int, err error)

	// RecordUpsert is called after each vector store upsert.
	RecordUpsert(duration time.Duration, err error)

	// RecordSearch is called after each vector store search.
	RecordSearch(limit int, duration time.Duration, err error)

	// RecordCacheLookup is called after each discovery cache get.
	RecordCacheLookup(hit bool)

	// RecordAudit is called after each audit log append.
	RecordAudit(err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordScan(time.Duration, bool, error)       {}
func (NoopMetricsCollector) RecordEmbed(time.Duration, int, error)       {}
func (NoopMetricsCollector) RecordUpsert(time.Duration, error)           {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordCacheLookup(bool)                      {}
func (NoopMetricsCollector) RecordAudit(error)                           {}

// BasicMetricsCollector provides simple in-memory counters, aggregated on
// read. Useful for debugging and tests without an external metrics system.
type BasicMetricsCollector struct {
	ScanCount       atomic.Int64
	ScanDegraded    atomic.Int64
	ScanErrors      atomic.Int64
	EmbedCount      atomic.Int64
	EmbedAttempts   atomic.Int64
	EmbedErrors     atomic.Int64
	EmbedTotalNanos atomic.Int64
	UpsertCount     atomic.Int64
	UpsertErrors    atomic.Int64
	SearchCount     atomic.Int64
	SearchErrors    atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	AuditCount      atomic.Int64
	AuditErrors     atomic.Int64
}

func (b *BasicMetricsCollector) RecordScan(d time.Duration, degraded bool, err error) {
	b.ScanCount.Add(1)
	if degraded {
		b.ScanDegraded.Add(1)
	}
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordEmbed(d time.Duration, attempts int, err error) {
	b.EmbedCount.Add(1)
	b.EmbedAttempts.Add(int64(attempts))
	b.EmbedTotalNanos.Add(d.Nanoseconds())
	if err != nil {
		b.EmbedErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordUpsert(d time.Duration, err error) {
	b.UpsertCount.Add(1)
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordSearch(limit int, d time.Duration, err error) {
	b.SearchCount.Add(1)
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordCacheLookup(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordAudit(err error) {
	b.AuditCount.Add(1)
	if err != nil {
		b.AuditErrors.Add(1)
	}
}
