package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	// Buy indicates a bid order.
	Buy Side = iota
	// Sell indicates an ask order.
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderKind represents the execution style for an order.
type OrderKind int

const (
	// Limit orders rest on the book until filled or canceled.
	Limit OrderKind = iota
	// Market orders consume available liquidity immediately.
	Market
)

func (k OrderKind) String() string {
	if k == Limit {
		return "Limit"
	}
	return "Market"
}

// Order describes a request to trade. While resting it is owned exclusively
// by the book; Quantity always holds the remaining (unfilled) amount.
type Order struct {
	ID        string
	CreatedAt time.Time
	Side      Side
	Price     decimal.Decimal
	Quantity  int64
	Kind      OrderKind
	// Visible is an iceberg display hint. Matching ignores it.
	Visible int64
}

// Trade captures a single execution. The price is always the resting
// (maker) order's price.
type Trade struct {
	Timestamp     time.Time
	AggressorSide Side
	Price         decimal.Decimal
	Quantity      int64
}

// ExecType classifies an execution report.
type ExecType int

const (
	ExecNew ExecType = iota
	ExecTrade
	ExecCancel
	ExecReject
)

func (t ExecType) String() string {
	switch t {
	case ExecNew:
		return "New"
	case ExecTrade:
		return "Trade"
	case ExecCancel:
		return "Cancel"
	default:
		return "Reject"
	}
}

// ExecutionReport is the feedback the book emits toward an order. On every
// match the maker and the taker each receive one.
type ExecutionReport struct {
	OrderID   string
	Type      ExecType
	Side      Side
	Price     decimal.Decimal
	LastQty   int64
	LeavesQty int64
	Timestamp time.Time
}

// BookLevel aggregates all resting quantity at one price.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity int64
}

// Snapshot is a bounded point-in-time read view of the book. Bids are in
// strictly descending price order, asks strictly ascending.
type Snapshot struct {
	Timestamp time.Time
	Bids      []BookLevel
	Asks      []BookLevel
}
