// Package scheduler time-multiplexes strategies over activity windows
// measured in elapsed simulation seconds, forwarding book and execution
// callbacks only to currently live strategies and aggregating their
// metrics.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"pricesim/engine"
	"pricesim/strategy"
)

// StrategyWindow activates Strategy for Duration starting Offset after
// the first event the scheduler observes. Several windows may reference
// the same strategy and may overlap.
type StrategyWindow struct {
	Strategy strategy.Strategy
	Offset   time.Duration
	Duration time.Duration
}

// TransitionSink receives strategy on/off transition events. 1 means the
// strategy just went live, 0 dormant.
type TransitionSink interface {
	LogStrategyState(ts time.Time, name string, active int)
}

type window struct {
	on, off float64 // elapsed seconds
	strat   strategy.Strategy
}

// Scheduler multiplexes a window schedule. It implements the strategy
// contract itself, so the runner drives it like any single strategy.
type Scheduler struct {
	windows []window
	sink    TransitionSink
	ctx     strategy.Context

	origin    time.Time
	originSet bool
	lastSec   float64
}

// New builds a scheduler from a window schedule. Command generation and
// metrics aggregation follow window-declaration order.
func New(windows []StrategyWindow) *Scheduler {
	s := &Scheduler{}
	for _, w := range windows {
		on := w.Offset.Seconds()
		s.windows = append(s.windows, window{on: on, off: on + w.Duration.Seconds(), strat: w.Strategy})
	}
	return s
}

// AttachSink enables transition logging. A nil sink means no logging.
func (s *Scheduler) AttachSink(sink TransitionSink) { s.sink = sink }

// Initialize forwards once to every distinct strategy in the schedule.
func (s *Scheduler) Initialize(ctx strategy.Context) {
	s.ctx = ctx
	for _, st := range s.distinct() {
		st.Initialize(ctx)
	}
}

// OnOrderBook forwards the snapshot to strategies live at its timestamp.
func (s *Scheduler) OnOrderBook(snap engine.Snapshot) {
	s.touchOrigin(snap.Timestamp)
	s.lastSec = s.elapsed(snap.Timestamp)
	for _, w := range s.windows {
		if s.live(w.strat, s.lastSec) {
			w.strat.OnOrderBook(snap)
		}
	}
}

// OnExecution forwards the report to strategies live at its timestamp.
func (s *Scheduler) OnExecution(rep engine.ExecutionReport) {
	s.touchOrigin(rep.Timestamp)
	s.lastSec = s.elapsed(rep.Timestamp)
	for _, w := range s.windows {
		if s.live(w.strat, s.lastSec) {
			w.strat.OnExecution(rep)
		}
	}
}

// GenerateCommands detects live/dormant edges since the previous step,
// logs them, and concatenates the commands of live strategies.
func (s *Scheduler) GenerateCommands(now time.Time) []strategy.OrderCommand {
	s.touchOrigin(now)
	t := s.elapsed(now)
	dt := s.ctx.SimulationStep.Seconds()
	s.lastSec = t

	var cmds []strategy.OrderCommand
	for _, st := range s.distinct() {
		was := s.live(st, t-dt)
		isLive := s.live(st, t)

		if was != isLive && s.sink != nil {
			state := 0
			if isLive {
				state = 1
			}
			s.sink.LogStrategyState(now, strategyName(st), state)
		}

		if isLive {
			cmds = append(cmds, st.GenerateCommands(now)...)
		}
	}
	return cmds
}

// Metrics sums the metrics of currently live reporting strategies. The
// VWAP comes from whichever live strategy holds a nonzero position (last
// one wins); otherwise the running aggregate is carried unchanged.
func (s *Scheduler) Metrics() strategy.Metrics {
	var agg strategy.Metrics
	if !s.originSet {
		return agg
	}
	for _, st := range s.distinct() {
		if !s.live(st, s.lastSec) {
			continue
		}
		r, ok := st.(strategy.MetricsReporter)
		if !ok {
			continue
		}
		m := r.Metrics()
		agg.BuyingPowerUsed = agg.BuyingPowerUsed.Add(m.BuyingPowerUsed)
		agg.Position += m.Position
		if m.Position != 0 {
			agg.Vwap = m.Vwap
		}
		agg.PnL = agg.PnL.Add(m.PnL)
		agg.RealisedPnL = agg.RealisedPnL.Add(m.RealisedPnL)
	}
	return agg
}

// live reports whether any of the strategy's windows covers t.
func (s *Scheduler) live(st strategy.Strategy, t float64) bool {
	for _, w := range s.windows {
		if w.strat == st && t >= w.on && t < w.off {
			return true
		}
	}
	return false
}

// distinct returns the schedule's strategies deduplicated, in
// window-declaration order.
func (s *Scheduler) distinct() []strategy.Strategy {
	var out []strategy.Strategy
	for _, w := range s.windows {
		seen := false
		for _, st := range out {
			if st == w.strat {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, w.strat)
		}
	}
	return out
}

func (s *Scheduler) touchOrigin(ts time.Time) {
	if s.originSet {
		return
	}
	s.origin = ts
	s.originSet = true
}

func (s *Scheduler) elapsed(ts time.Time) float64 {
	return ts.Sub(s.origin).Seconds()
}

// strategyName derives a log-friendly name from the dynamic type.
func strategyName(st strategy.Strategy) string {
	name := fmt.Sprintf("%T", st)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
