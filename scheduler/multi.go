package scheduler

import (
	"time"

	"pricesim/engine"
	"pricesim/strategy"
)

// Multi fans every callback out to all of its strategies unconditionally,
// with no windowing. Useful for running a fixed set side by side.
type Multi []strategy.Strategy

func (m Multi) Initialize(ctx strategy.Context) {
	for _, s := range m {
		s.Initialize(ctx)
	}
}

func (m Multi) OnOrderBook(snap engine.Snapshot) {
	for _, s := range m {
		s.OnOrderBook(snap)
	}
}

func (m Multi) OnExecution(rep engine.ExecutionReport) {
	for _, s := range m {
		s.OnExecution(rep)
	}
}

func (m Multi) GenerateCommands(now time.Time) []strategy.OrderCommand {
	var cmds []strategy.OrderCommand
	for _, s := range m {
		cmds = append(cmds, s.GenerateCommands(now)...)
	}
	return cmds
}
