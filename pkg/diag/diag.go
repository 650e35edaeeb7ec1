// Package diag provides data-quality diagnostics for run evaluation.
// Diagnostics are recovered locally and reported, never retried: the
// affected samples are excluded from the specific check they invalidate
// while the rest of the run continues.
package diag

import (
	"fmt"
	"sync"
	"time"
)

// Code categorises a diagnostic condition.
type Code int

const (
	CodeUnknown Code = iota
	// CodeUnresolvedSection: a sample's position maps to no known section.
	CodeUnresolvedSection
	// CodeUnknownSignalAspect: malformed aspect in signal data.
	CodeUnknownSignalAspect
	// CodeRuleNotFound: no speed rule matches at any precedence level.
	CodeRuleNotFound
	// CodeUnknownTrainType: train type outside the closed enumeration.
	CodeUnknownTrainType
	// CodeEmptyRun: a run with no telemetry samples. Fatal for that run.
	CodeEmptyRun
)

func (c Code) String() string {
	switch c {
	case CodeUnresolvedSection:
		return "UNRESOLVED_SECTION"
	case CodeUnknownSignalAspect:
		return "UNKNOWN_SIGNAL_ASPECT"
	case CodeRuleNotFound:
		return "RULE_NOT_FOUND"
	case CodeUnknownTrainType:
		return "UNKNOWN_TRAIN_TYPE"
	case CodeEmptyRun:
		return "EMPTY_RUN"
	default:
		return "UNKNOWN"
	}
}

// Record is a single diagnostic occurrence with context.
type Record struct {
	Code Code
	// SampleIndex is the run sample the diagnostic applies to, or -1
	// for run-level conditions.
	SampleIndex int
	SectionID   string
	Timestamp   time.Time
	Message     string
}

func (r Record) String() string {
	if r.SampleIndex >= 0 {
		return fmt.Sprintf("%s at sample %d: %s", r.Code, r.SampleIndex, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Collector accumulates diagnostics during a run evaluation.
// A fresh Collector is created per run; it is safe for concurrent use
// so loaders running ahead of the engine may share one.
type Collector struct {
	mu sync.Mutex

	records   []Record
	maxStored int
	counts    map[Code]int64

	onRecord func(Record)
}

// NewCollector creates a collector keeping at most 1000 records.
// Counts stay exact even when storage is capped.
func NewCollector() *Collector {
	return &Collector{
		maxStored: 1000,
		records:   make([]Record, 0, 16),
		counts:    make(map[Code]int64),
	}
}

// WithMaxStored caps the number of retained records.
func (c *Collector) WithMaxStored(n int) *Collector {
	c.maxStored = n
	return c
}

// WithOnRecord sets a callback invoked for every diagnostic.
func (c *Collector) WithOnRecord(fn func(Record)) *Collector {
	c.onRecord = fn
	return c
}

// Record adds a diagnostic occurrence.
func (c *Collector) Record(rec Record) {
	c.mu.Lock()
	c.counts[rec.Code]++
	if len(c.records) < c.maxStored {
		c.records = append(c.records, rec)
	}
	fn := c.onRecord
	c.mu.Unlock()

	if fn != nil {
		fn(rec)
	}
}

// Recordf adds a diagnostic with a formatted message.
func (c *Collector) Recordf(code Code, sampleIndex int, sectionID string, ts time.Time, format string, args ...any) {
	c.Record(Record{
		Code:        code,
		SampleIndex: sampleIndex,
		SectionID:   sectionID,
		Timestamp:   ts,
		Message:     fmt.Sprintf(format, args...),
	})
}

// Records returns a copy of the retained diagnostics.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Count returns the exact number of occurrences of a code.
func (c *Collector) Count(code Code) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[code]
}

// Total returns the exact total number of diagnostics.
func (c *Collector) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for _, v := range c.counts {
		n += v
	}
	return n
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
	c.counts = make(map[Code]int64)
}
