package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrder rejects orders with non-positive quantity, or limit
// orders with a non-positive price, before they reach the matching loop.
var ErrInvalidOrder = errors.New("invalid order")

type orderRef struct {
	price decimal.Decimal
	side  Side
}

// OrderBook maintains resting orders for a single instrument using
// price-time priority. It is not safe for concurrent use: the simulation
// loop owns it exclusively and mutates it strictly within one tick.
type OrderBook struct {
	bids  bookSide
	asks  bookSide
	index map[string]orderRef
}

// NewOrderBook builds an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:  bookSide{descending: true},
		asks:  bookSide{},
		index: make(map[string]orderRef),
	}
}

func (b *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return &b.bids
	}
	return &b.asks
}

// AddLimit submits an order through the crossing-aware matching path.
// Limit orders match against the opposite side while their price crosses
// the opposite best, then rest any remainder (emitting a New report).
// Market-kind orders match without a price bound and any remainder is
// dropped silently. Each fill emits a Trade, a maker report and a taker
// report at the maker's price.
func (b *OrderBook) AddLimit(order Order, ts time.Time) ([]ExecutionReport, []Trade, error) {
	if order.Quantity <= 0 {
		return nil, nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, order.Quantity)
	}
	if order.Kind == Limit && order.Price.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: price %s", ErrInvalidOrder, order.Price)
	}

	var execs []ExecutionReport
	var trades []Trade

	opp := b.side(order.Side.Opposite())
	for order.Quantity > 0 {
		lvl := opp.best()
		if lvl == nil {
			break
		}
		if order.Kind == Limit && !crosses(order.Side, order.Price, lvl.price) {
			break
		}

		for order.Quantity > 0 {
			maker := lvl.head()
			if maker == nil {
				break
			}
			execQty := min64(order.Quantity, maker.Quantity)
			if execQty <= 0 {
				panic(fmt.Sprintf("order book: fill of %d against %s", execQty, maker.ID))
			}
			maker.Quantity -= execQty
			order.Quantity -= execQty

			trades = append(trades, Trade{
				Timestamp:     ts,
				AggressorSide: order.Side,
				Price:         lvl.price,
				Quantity:      execQty,
			})
			execs = append(execs,
				ExecutionReport{
					OrderID:   maker.ID,
					Type:      ExecTrade,
					Side:      maker.Side,
					Price:     lvl.price,
					LastQty:   execQty,
					LeavesQty: maker.Quantity,
					Timestamp: ts,
				},
				ExecutionReport{
					OrderID:   order.ID,
					Type:      ExecTrade,
					Side:      order.Side,
					Price:     lvl.price,
					LastQty:   execQty,
					LeavesQty: order.Quantity,
					Timestamp: ts,
				})

			if maker.Quantity == 0 {
				lvl.popHead()
				delete(b.index, maker.ID)
			}
			// A partially filled maker keeps its queue position.
		}

		if len(lvl.orders) == 0 {
			opp.dropBest()
		}
	}

	if order.Quantity > 0 && order.Kind == Limit {
		rest := order
		b.side(rest.Side).enqueue(&rest)
		b.index[rest.ID] = orderRef{price: rest.Price, side: rest.Side}
		execs = append(execs, ExecutionReport{
			OrderID:   rest.ID,
			Type:      ExecNew,
			Side:      rest.Side,
			Price:     rest.Price,
			LastQty:   0,
			LeavesQty: rest.Quantity,
			Timestamp: ts,
		})
	}

	return execs, trades, nil
}

// Cancel removes an active order. Canceling an unknown id is a no-op and
// returns no reports.
func (b *OrderBook) Cancel(orderID string, ts time.Time) []ExecutionReport {
	ref, ok := b.index[orderID]
	if !ok {
		return nil
	}

	side := b.side(ref.side)
	lvl := side.find(ref.price)
	if lvl == nil {
		panic(fmt.Sprintf("order book: index points at missing level %s", ref.price))
	}
	o := lvl.removeID(orderID)
	if o == nil {
		panic(fmt.Sprintf("order book: index points at missing order %s", orderID))
	}
	if len(lvl.orders) == 0 {
		side.removeLevel(ref.price)
	}
	delete(b.index, orderID)

	return []ExecutionReport{{
		OrderID:   orderID,
		Type:      ExecCancel,
		Side:      o.Side,
		Price:     o.Price,
		Timestamp: ts,
	}}
}

// ExecuteMarket consumes qty from the opposite side's best levels. The
// aggressor has no identity, so only maker-side reports and trades come
// back; any remainder against an exhausted book is dropped silently.
func (b *OrderBook) ExecuteMarket(side Side, qty int64, ts time.Time) ([]ExecutionReport, []Trade, error) {
	if qty <= 0 {
		return nil, nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, qty)
	}

	var execs []ExecutionReport
	var trades []Trade

	opp := b.side(side.Opposite())
	for qty > 0 {
		lvl := opp.best()
		if lvl == nil {
			break
		}

		for qty > 0 {
			maker := lvl.head()
			if maker == nil {
				break
			}
			execQty := min64(qty, maker.Quantity)
			if execQty <= 0 {
				panic(fmt.Sprintf("order book: fill of %d against %s", execQty, maker.ID))
			}
			maker.Quantity -= execQty
			qty -= execQty

			trades = append(trades, Trade{
				Timestamp:     ts,
				AggressorSide: side,
				Price:         lvl.price,
				Quantity:      execQty,
			})
			execs = append(execs, ExecutionReport{
				OrderID:   maker.ID,
				Type:      ExecTrade,
				Side:      maker.Side,
				Price:     lvl.price,
				LastQty:   execQty,
				LeavesQty: maker.Quantity,
				Timestamp: ts,
			})

			if maker.Quantity == 0 {
				lvl.popHead()
				delete(b.index, maker.ID)
			}
		}

		if len(lvl.orders) == 0 {
			opp.dropBest()
		}
	}

	return execs, trades, nil
}

// Snapshot returns up to depth levels per side with aggregated quantities.
func (b *OrderBook) Snapshot(ts time.Time, depth int) Snapshot {
	take := func(s *bookSide) []BookLevel {
		n := depth
		if n > len(s.levels) {
			n = len(s.levels)
		}
		out := make([]BookLevel, 0, n)
		for _, lvl := range s.levels[:n] {
			out = append(out, BookLevel{Price: lvl.price, Quantity: lvl.totalQty()})
		}
		return out
	}
	return Snapshot{Timestamp: ts, Bids: take(&b.bids), Asks: take(&b.asks)}
}

// BestBid returns the highest bid price, if any side is resting.
func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if lvl := b.bids.best(); lvl != nil {
		return lvl.price, true
	}
	return decimal.Decimal{}, false
}

// BestAsk returns the lowest ask price, if any.
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if lvl := b.asks.best(); lvl != nil {
		return lvl.price, true
	}
	return decimal.Decimal{}, false
}

// Mid returns the midpoint of the best prices. With one side empty it
// falls back to the populated side's best; with both empty it returns
// ok=false.
func (b *OrderBook) Mid() (decimal.Decimal, bool) {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		return bid.Add(ask).Div(decimal.NewFromInt(2)), true
	case hasBid:
		return bid, true
	case hasAsk:
		return ask, true
	default:
		return decimal.Decimal{}, false
	}
}

// QuantityAt sums the resting quantity at an exact price on one side.
func (b *OrderBook) QuantityAt(side Side, price decimal.Decimal) int64 {
	if lvl := b.side(side).find(price); lvl != nil {
		return lvl.totalQty()
	}
	return 0
}

// OrdersAtPrice returns copies of the resting orders at an exact price in
// time priority order.
func (b *OrderBook) OrdersAtPrice(side Side, price decimal.Decimal) []Order {
	lvl := b.side(side).find(price)
	if lvl == nil {
		return nil
	}
	out := make([]Order, len(lvl.orders))
	for i, o := range lvl.orders {
		out[i] = *o
	}
	return out
}

// ActiveOrderIDs lists every resting order id in book order: bids best to
// worst, then asks, FIFO within a level. The order is deterministic for a
// given book state.
func (b *OrderBook) ActiveOrderIDs() []string {
	ids := make([]string, 0, len(b.index))
	for _, s := range []*bookSide{&b.bids, &b.asks} {
		for _, lvl := range s.levels {
			for _, o := range lvl.orders {
				ids = append(ids, o.ID)
			}
		}
	}
	return ids
}

func crosses(side Side, limit, best decimal.Decimal) bool {
	if side == Buy {
		return limit.GreaterThanOrEqual(best)
	}
	return limit.LessThanOrEqual(best)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
