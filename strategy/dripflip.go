package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricesim/engine"
)

// DripFlip buys a tiny slice at market every tick after a warm-up, then
// flattens the whole position with one market sell once the best bid
// moves past its take-profit or stop-loss band around VWAP.
type DripFlip struct {
	SliceQty   int64
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	StartDelay time.Duration

	ctx         Context
	start       time.Time
	position    int64
	vwap        decimal.Decimal
	lastBestBid decimal.Decimal
	realised    decimal.Decimal
	myOrders    map[string]struct{}
	seq         int64
}

// NewDripFlip builds the strategy with its stock band parameters.
func NewDripFlip() *DripFlip {
	return &DripFlip{
		SliceQty:   1,
		TakeProfit: decimal.NewFromFloat(0.05),
		StopLoss:   decimal.NewFromFloat(0.02),
		StartDelay: 10 * time.Second,
		myOrders:   make(map[string]struct{}),
	}
}

func (d *DripFlip) Initialize(ctx Context) {
	d.ctx = ctx
	ctx.Log(fmt.Sprintf("DripFlip armed; will start after %s", d.StartDelay))
}

func (d *DripFlip) OnOrderBook(snap engine.Snapshot) {
	if len(snap.Bids) > 0 {
		d.lastBestBid = snap.Bids[0].Price
	}
}

func (d *DripFlip) OnExecution(rep engine.ExecutionReport) {
	if _, mine := d.myOrders[rep.OrderID]; !mine {
		return
	}
	if rep.Type != engine.ExecTrade || rep.LastQty == 0 {
		return
	}

	qty := decimal.NewFromInt(rep.LastQty)
	switch rep.Side {
	case engine.Buy:
		prev := decimal.NewFromInt(d.position)
		d.position += rep.LastQty
		if prev.IsZero() {
			d.vwap = rep.Price
		} else {
			d.vwap = d.vwap.Mul(prev).Add(rep.Price.Mul(qty)).Div(decimal.NewFromInt(d.position))
		}
	case engine.Sell:
		d.realised = d.realised.Add(qty.Mul(rep.Price.Sub(d.vwap)))
		d.position -= rep.LastQty
		if d.position <= 0 {
			d.position = 0
			d.vwap = decimal.Decimal{}
		}
	}
}

func (d *DripFlip) GenerateCommands(now time.Time) []OrderCommand {
	if d.start.IsZero() {
		d.start = now
	}
	if now.Sub(d.start) < d.StartDelay {
		return nil
	}

	if d.position > 0 &&
		(d.lastBestBid.GreaterThanOrEqual(d.vwap.Add(d.TakeProfit)) ||
			d.lastBestBid.LessThanOrEqual(d.vwap.Sub(d.StopLoss))) {
		d.ctx.Log(fmt.Sprintf("flattening %d @ market (bid=%s, vwap=%s)", d.position, d.lastBestBid, d.vwap))
		id := d.nextID()
		// Zero price: execute as market.
		return []OrderCommand{NewOrder(id, engine.Sell, decimal.Decimal{}, d.position)}
	}

	return []OrderCommand{NewOrder(d.nextID(), engine.Buy, decimal.Decimal{}, d.SliceQty)}
}

// Metrics reports the running accumulation accounting.
func (d *DripFlip) Metrics() Metrics {
	pos := decimal.NewFromInt(d.position)
	vwap := decimal.Decimal{}
	if d.position > 0 {
		vwap = d.vwap
	}
	return Metrics{
		BuyingPowerUsed: pos.Mul(d.vwap),
		Position:        d.position,
		Vwap:            vwap,
		PnL:             d.realised.Add(pos.Mul(d.lastBestBid.Sub(d.vwap))),
		RealisedPnL:     d.realised,
	}
}

func (d *DripFlip) nextID() string {
	d.seq++
	id := fmt.Sprintf("drip-%d", d.seq)
	d.myOrders[id] = struct{}{}
	return id
}
