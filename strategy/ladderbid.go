package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"pricesim/engine"
)

// LadderBid rests a decaying ladder of limit bids just under the best bid
// and shifts it as the market moves. The first fill makes it pull the
// remaining rungs to stay flat.
type LadderBid struct {
	Levels  int
	Lambda  float64
	BaseQty int64

	ctx            Context
	orders         []ladderRung
	pendingCancels []OrderCommand
	lastBestBid    decimal.Decimal
	lastMid        decimal.Decimal
	position       int64
	vwap           decimal.Decimal
	bpOrders       decimal.Decimal
	seq            int64
}

type ladderRung struct {
	id    string
	price decimal.Decimal
	qty   int64
}

// NewLadderBid builds the strategy with its stock ladder shape.
func NewLadderBid() *LadderBid {
	return &LadderBid{Levels: 5, Lambda: 0.5, BaseQty: 10000}
}

func (l *LadderBid) Initialize(ctx Context) {
	l.ctx = ctx
	ctx.Log("LadderBid initialized")
}

func (l *LadderBid) OnOrderBook(snap engine.Snapshot) {
	if len(snap.Bids) > 0 {
		l.lastBestBid = snap.Bids[0].Price
	}
	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		l.lastMid = snap.Bids[0].Price.Add(snap.Asks[0].Price).Div(decimal.NewFromInt(2))
	}
}

func (l *LadderBid) OnExecution(rep engine.ExecutionReport) {
	idx := -1
	for i, o := range l.orders {
		if o.id == rep.OrderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	switch {
	case rep.Type == engine.ExecNew:
		l.orders[idx].qty = rep.LeavesQty

	case rep.Type == engine.ExecTrade && rep.LastQty > 0:
		prev := decimal.NewFromInt(l.position)
		l.position += rep.LastQty
		if prev.IsZero() {
			l.vwap = rep.Price
		} else {
			l.vwap = l.vwap.Mul(prev).Add(rep.Price.Mul(decimal.NewFromInt(rep.LastQty))).
				Div(decimal.NewFromInt(l.position))
		}

		l.ctx.Log("ladder touched - cancelling remaining rungs to stay flat")
		for _, o := range l.orders {
			l.bpOrders = l.bpOrders.Sub(o.price.Mul(decimal.NewFromInt(o.qty)))
			l.pendingCancels = append(l.pendingCancels, CancelOrder(o.id))
		}
		l.orders = nil

	case rep.Type == engine.ExecCancel:
		o := l.orders[idx]
		l.bpOrders = l.bpOrders.Sub(o.price.Mul(decimal.NewFromInt(o.qty)))
		l.orders = append(l.orders[:idx], l.orders[idx+1:]...)
	}
}

func (l *LadderBid) GenerateCommands(now time.Time) []OrderCommand {
	if len(l.pendingCancels) > 0 {
		cmds := l.pendingCancels
		l.pendingCancels = nil
		return cmds
	}

	if l.lastBestBid.IsZero() {
		return nil
	}

	tick := l.ctx.TickSize
	if len(l.orders) == 0 {
		return l.placeLadder(l.lastBestBid.Sub(tick))
	}

	myTop := l.orders[0].price
	for _, o := range l.orders[1:] {
		if o.price.GreaterThan(myTop) {
			myTop = o.price
		}
	}

	diff := l.lastBestBid.Sub(myTop)
	if diff.Sign() <= 0 {
		return l.shiftLadder(myTop.Sub(tick), "down")
	}
	if diff.GreaterThan(tick) {
		return l.shiftLadder(myTop.Add(tick), "up")
	}
	return nil
}

// Metrics reports exposure of the resting ladder plus any inventory.
func (l *LadderBid) Metrics() Metrics {
	pos := decimal.NewFromInt(l.position)
	vwap := decimal.Decimal{}
	if l.position > 0 {
		vwap = l.vwap
	}
	return Metrics{
		BuyingPowerUsed: l.bpOrders.Add(pos.Mul(vwap)),
		Position:        l.position,
		Vwap:            vwap,
		PnL:             pos.Mul(l.lastMid.Sub(vwap)),
	}
}

func (l *LadderBid) placeLadder(start decimal.Decimal) []OrderCommand {
	l.ctx.Log(fmt.Sprintf("placing ladder from %s", start))
	cmds := make([]OrderCommand, 0, l.Levels)
	for i := 0; i < l.Levels; i++ {
		price := start.Sub(l.ctx.TickSize.Mul(decimal.NewFromInt(int64(i))))
		qty := int64(math.Round(float64(l.BaseQty) * math.Exp(-l.Lambda*float64(i))))
		cost := price.Mul(decimal.NewFromInt(qty))
		if l.ctx.CapitalLimit.Sign() > 0 && l.bpOrders.Add(cost).GreaterThan(l.ctx.CapitalLimit) {
			break
		}
		l.seq++
		id := fmt.Sprintf("ladder-%d", l.seq)
		cmds = append(cmds, NewOrder(id, engine.Buy, price, qty))
		l.orders = append(l.orders, ladderRung{id: id, price: price, qty: qty})
		l.bpOrders = l.bpOrders.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	return cmds
}

func (l *LadderBid) shiftLadder(newStart decimal.Decimal, dir string) []OrderCommand {
	l.ctx.Log(fmt.Sprintf("shifting ladder %s to start %s", dir, newStart))
	cmds := make([]OrderCommand, 0, 2*l.Levels)
	for _, o := range l.orders {
		l.bpOrders = l.bpOrders.Sub(o.price.Mul(decimal.NewFromInt(o.qty)))
		cmds = append(cmds, CancelOrder(o.id))
	}
	l.orders = nil
	return append(cmds, l.placeLadder(newStart)...)
}
