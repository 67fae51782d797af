// Package strategy defines the contract between the simulation host and
// trading strategies, plus a few reference strategies. Strategies never
// touch the book directly: they read snapshots and execution reports and
// emit order commands that the host applies.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"pricesim/engine"
)

// Context is the read-only runtime configuration handed to a strategy at
// initialization.
type Context struct {
	TickSize       decimal.Decimal
	CapitalLimit   decimal.Decimal
	SimulationStep time.Duration
	Logger         func(string)
}

// Log writes through the context logger, if one is attached.
func (c Context) Log(msg string) {
	if c.Logger != nil {
		c.Logger(msg)
	}
}

// CommandType distinguishes order commands.
type CommandType int

const (
	CommandNew CommandType = iota
	CommandCancel
)

// OrderCommand is a strategy's instruction to the host. A New command with
// price zero means "execute as a market order".
type OrderCommand struct {
	Type     CommandType
	OrderID  string
	Side     engine.Side
	Price    decimal.Decimal
	Quantity int64
}

// NewOrder builds a New command.
func NewOrder(id string, side engine.Side, price decimal.Decimal, qty int64) OrderCommand {
	return OrderCommand{Type: CommandNew, OrderID: id, Side: side, Price: price, Quantity: qty}
}

// CancelOrder builds a Cancel command.
func CancelOrder(id string) OrderCommand {
	return OrderCommand{Type: CommandCancel, OrderID: id}
}

// Metrics is the optional per-strategy accounting exposed through
// MetricsReporter.
type Metrics struct {
	BuyingPowerUsed decimal.Decimal
	Position        int64
	Vwap            decimal.Decimal
	PnL             decimal.Decimal
	RealisedPnL     decimal.Decimal
}

// Strategy is the callback contract driven by the host, in this relative
// order per tick for live strategies: OnExecution for each report,
// OnOrderBook for the snapshot, then GenerateCommands.
type Strategy interface {
	Initialize(ctx Context)
	OnOrderBook(snap engine.Snapshot)
	OnExecution(rep engine.ExecutionReport)
	GenerateCommands(now time.Time) []OrderCommand
}

// MetricsReporter is implemented by strategies that expose accounting.
type MetricsReporter interface {
	Metrics() Metrics
}
