package strategy

import (
	"time"

	"pricesim/engine"
)

// NoOp ignores all events and never trades.
type NoOp struct{}

func (NoOp) Initialize(Context) {}

func (NoOp) OnOrderBook(engine.Snapshot) {}

func (NoOp) OnExecution(engine.ExecutionReport) {}

func (NoOp) GenerateCommands(time.Time) []OrderCommand { return nil }
