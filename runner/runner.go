// Package runner sequences the simulation: background market step,
// feedback forwarding, book snapshot, strategy commands, command
// application. It owns pacing and sink wiring only; all matching
// semantics live in the engine.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pricesim/engine"
	"pricesim/sink"
	"pricesim/strategy"
)

// MarketStepper advances the background market by one tick. It returns
// the tick's execution reports, trades and cancel reports.
type MarketStepper interface {
	Step(ts time.Time) ([]engine.ExecutionReport, []engine.Trade, []engine.ExecutionReport)
}

// Config wires a runner. Book and Sim must share the same book instance;
// the runner is its only mutator across tick boundaries.
type Config struct {
	Book     *engine.OrderBook
	Sim      MarketStepper
	Strategy strategy.Strategy
	Context  strategy.Context
	Sink     sink.Sink
	Logger   *zap.Logger

	// SnapshotDepth bounds the per-tick strategy snapshot. Default 10.
	SnapshotDepth int
	// BookLogInterval and StatsInterval pace the periodic sink dumps.
	// Default 1s each.
	BookLogInterval time.Duration
	StatsInterval   time.Duration
	// Pace sleeps one simulation step of wall time between ticks.
	Pace bool
}

// Runner drives the loop tick by tick.
type Runner struct {
	cfg Config
	log *zap.Logger
}

// New applies defaults and builds a runner.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.Multi{}
	}
	if cfg.SnapshotDepth == 0 {
		cfg.SnapshotDepth = 10
	}
	if cfg.BookLogInterval == 0 {
		cfg.BookLogInterval = time.Second
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = time.Second
	}
	return &Runner{cfg: cfg, log: cfg.Logger}
}

// Run steps simulation time from start for duration. Cancellation is
// honored between ticks; a tick never stops mid-flight.
func (r *Runner) Run(ctx context.Context, start time.Time, duration time.Duration) error {
	cfg := r.cfg
	step := cfg.Context.SimulationStep

	cfg.Strategy.Initialize(cfg.Context)

	now := start
	end := start.Add(duration)
	nextBookDump := start
	nextStats := start

	for now.Before(end) {
		select {
		case <-ctx.Done():
			r.log.Info("run canceled", zap.Time("sim_time", now))
			return ctx.Err()
		default:
		}

		execs, trades, cancels := cfg.Sim.Step(now)
		for _, t := range trades {
			cfg.Sink.LogTrade(t)
		}
		r.forward(execs)
		r.forward(cancels)

		snap := cfg.Book.Snapshot(now, cfg.SnapshotDepth)
		cfg.Strategy.OnOrderBook(snap)

		if !now.Before(nextBookDump) {
			cfg.Sink.LogBook(snap)
			nextBookDump = now.Add(cfg.BookLogInterval)
		}
		if !now.Before(nextStats) {
			if mr, ok := cfg.Strategy.(strategy.MetricsReporter); ok {
				cfg.Sink.LogStats(now, mr.Metrics())
			}
			nextStats = now.Add(cfg.StatsInterval)
		}

		for _, cmd := range cfg.Strategy.GenerateCommands(now) {
			r.apply(cmd, now)
		}

		if cfg.Pace {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
		}
		now = now.Add(step)
	}

	r.log.Info("run finished", zap.Time("sim_time", now))
	return nil
}

// apply executes one strategy command against the book and feeds the
// results back.
func (r *Runner) apply(cmd strategy.OrderCommand, ts time.Time) {
	cfg := r.cfg
	switch cmd.Type {
	case strategy.CommandNew:
		kind := engine.Limit
		if cmd.Price.Sign() == 0 {
			kind = engine.Market
		}
		order := engine.Order{
			ID:        cmd.OrderID,
			CreatedAt: ts,
			Side:      cmd.Side,
			Price:     cmd.Price,
			Quantity:  cmd.Quantity,
			Kind:      kind,
		}
		execs, trades, err := cfg.Book.AddLimit(order, ts)
		if err != nil {
			r.log.Warn("order command rejected",
				zap.String("order_id", cmd.OrderID), zap.Error(err))
			r.forward([]engine.ExecutionReport{{
				OrderID:   cmd.OrderID,
				Type:      engine.ExecReject,
				Side:      cmd.Side,
				Price:     cmd.Price,
				Timestamp: ts,
			}})
			return
		}
		for _, t := range trades {
			cfg.Sink.LogTrade(t)
		}
		r.forward(execs)

	case strategy.CommandCancel:
		r.forward(cfg.Book.Cancel(cmd.OrderID, ts))
	}
}

func (r *Runner) forward(reports []engine.ExecutionReport) {
	for _, rep := range reports {
		r.cfg.Sink.LogExec(rep)
		r.cfg.Strategy.OnExecution(rep)
	}
}
