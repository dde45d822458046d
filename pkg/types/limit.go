// Model limits cap per-table row counts with pluggable removal strategies.
// See docs/ARCHITECTURE.md § Model Limit Manager.
package types

import (
	"errors"
	"time"
)

// Strategy selects which rows to remove when a table exceeds its cap.
type Strategy string

const (
	StrategyFIFO       Strategy = "fifo"
	StrategyLIFO       Strategy = "lifo"
	StrategyLRU        Strategy = "lru"
	StrategyMRU        Strategy = "mru"
	StrategyRandom     Strategy = "random"
	StrategySmallestID Strategy = "smallest_id"
	StrategyLargestID  Strategy = "largest_id"
)

// knownStrategies lists the strategies Validate accepts.
var knownStrategies = map[Strategy]bool{
	StrategyFIFO:       true,
	StrategyLIFO:       true,
	StrategyLRU:        true,
	StrategyMRU:        true,
	StrategyRandom:     true,
	StrategySmallestID: true,
	StrategyLargestID:  true,
}

// ModelLimit validation errors.
var (
	ErrLimitMaxCountInvalid  = errors.New("limit max count must be positive")
	ErrLimitBatchSizeInvalid = errors.New("limit batch size must be at least 1")
	ErrLimitStrategyUnknown  = errors.New("unknown removal strategy")
)

// ModelLimit configures the row cap for one table. Enforcement only fires
// when Enabled and the current count exceeds MaxCount.
type ModelLimit struct {
	MaxCount  int64    `json:"max_count" yaml:"max_count"`
	Strategy  Strategy `json:"strategy" yaml:"strategy"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	BatchSize int64    `json:"batch_size" yaml:"batch_size"`
}

// Validate checks that the limit is well-formed.
func (l ModelLimit) Validate() error {
	if l.MaxCount < 1 {
		return ErrLimitMaxCountInvalid
	}
	if l.BatchSize < 1 {
		return ErrLimitBatchSizeInvalid
	}
	if !knownStrategies[l.Strategy] {
		return ErrLimitStrategyUnknown
	}
	return nil
}

// RemovalEvent describes one eviction pass. Delivered to removal callbacks
// after the rows are gone and the notifier has fired.
type RemovalEvent struct {
	Table        string
	RemovedCount int64
	Strategy     Strategy
	Reason       string
	Timestamp    time.Time
}

// RemovalCallback receives removal events. Fire-and-forget: no return value,
// and a panicking or slow callback must not block enforcement.
type RemovalCallback func(RemovalEvent)

// TableStatistics reports one table's occupancy against its configured cap.
type TableStatistics struct {
	Table    string
	RowCount int64
	Limit    *ModelLimit
}
