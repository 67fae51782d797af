// Package sink receives the records the simulation produces: trades,
// execution reports, periodic book and stat snapshots, strategy on/off
// transitions and free-text event lines. The core only ever writes to a
// sink, never reads back.
package sink

import (
	"time"

	"pricesim/engine"
	"pricesim/strategy"
)

// Sink is the persistence contract consumed by the runner.
type Sink interface {
	LogTrade(t engine.Trade)
	LogExec(r engine.ExecutionReport)
	LogBook(s engine.Snapshot)
	LogStats(ts time.Time, m strategy.Metrics)
	LogStrategyState(ts time.Time, name string, active int)
	LogEvent(msg string)
	Close() error
}

// Multi fans records out to several sinks. Close closes them all and
// returns the first error.
type Multi []Sink

func (m Multi) LogTrade(t engine.Trade) {
	for _, s := range m {
		s.LogTrade(t)
	}
}

func (m Multi) LogExec(r engine.ExecutionReport) {
	for _, s := range m {
		s.LogExec(r)
	}
}

func (m Multi) LogBook(snap engine.Snapshot) {
	for _, s := range m {
		s.LogBook(snap)
	}
}

func (m Multi) LogStats(ts time.Time, metrics strategy.Metrics) {
	for _, s := range m {
		s.LogStats(ts, metrics)
	}
}

func (m Multi) LogStrategyState(ts time.Time, name string, active int) {
	for _, s := range m {
		s.LogStrategyState(ts, name, active)
	}
}

func (m Multi) LogEvent(msg string) {
	for _, s := range m {
		s.LogEvent(msg)
	}
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
