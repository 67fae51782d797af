// Package market generates synthetic background order flow against a
// single order book: it keeps a decaying liquidity ladder quoted around
// the mid, randomly cancels resting orders, and injects one new order per
// tick whose side follows a linear signal over book imbalance, recent
// trade trend and price deviation.
package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"pricesim/engine"
)

// ladderLevels is the number of quoted price levels per side.
const ladderLevels = 10

// Params controls the statistical shape of the background flow.
type Params struct {
	TickSize      decimal.Decimal
	StartMid      decimal.Decimal
	CancelProb    float64 // per resting order, per tick
	TrendLookback int     // trades kept for the trend signal
	PriceLookback int     // mids kept for the deviation signal
	K1Imbalance   float64
	K2Trend       float64
	K3PriceDev    float64
	LambdaDepth   float64 // ladder quantity decay rate
	BaseDepthQty  int64   // innermost ladder level target quantity
	LogNormMu     float64
	LogNormSigma  float64
	Seed          int64
}

// DefaultParams returns the stock simulation parameter set.
func DefaultParams() Params {
	return Params{
		TickSize:      decimal.NewFromFloat(0.01),
		StartMid:      decimal.NewFromFloat(20.00),
		CancelProb:    0.005,
		TrendLookback: 20,
		PriceLookback: 20,
		K1Imbalance:   0.40,
		K2Trend:       0.30,
		K3PriceDev:    0.30,
		LambdaDepth:   0.15,
		BaseDepthQty:  2500,
		LogNormMu:     7,
		LogNormSigma:  1.1,
		Seed:          42,
	}
}

type houseOrder struct {
	id    string
	side  engine.Side
	price decimal.Decimal
}

// Simulator drives the background market. The pseudo-random stream is
// seeded from Params.Seed, so two simulators with the same parameters and
// starting book produce identical tick sequences.
type Simulator struct {
	book *engine.OrderBook
	p    Params
	rng  *rand.Rand

	recentTrades []engine.Trade    // bounded FIFO, TrendLookback
	midHistory   []decimal.Decimal // bounded FIFO, PriceLookback

	house    []houseOrder // submission order, oldest first
	houseIDs map[string]struct{}
	seq      int64
}

// New builds a simulator and seeds the book with the initial liquidity
// ladder around Params.StartMid. Seeding reports are discarded.
func New(book *engine.OrderBook, p Params, start time.Time) *Simulator {
	s := &Simulator{
		book:     book,
		p:        p,
		rng:      rand.New(rand.NewSource(p.Seed)),
		houseIDs: make(map[string]struct{}),
	}
	s.maintainLiquidity(start)
	return s
}

// Step runs one simulation tick: liquidity maintenance, random
// cancellation, then one synthetic order. The ordering is load-bearing:
// the direction signal must see the post-maintenance book.
func (s *Simulator) Step(ts time.Time) (execs []engine.ExecutionReport, trades []engine.Trade, cancels []engine.ExecutionReport) {
	mExecs, mTrades, mCancels := s.maintainLiquidity(ts)
	execs = append(execs, mExecs...)
	trades = append(trades, mTrades...)
	cancels = append(cancels, mCancels...)

	cancels = append(cancels, s.cancelRandom(ts)...)

	side := engine.Sell
	if s.rng.Float64() < s.buyProbability(ts) {
		side = engine.Buy
	}

	qty := int64(math.Round(math.Exp(s.normal(s.p.LogNormMu, s.p.LogNormSigma))))
	if qty < 1 {
		qty = 1
	}

	if s.rng.Float64() < 0.5 {
		oExecs, oTrades, err := s.book.ExecuteMarket(side, qty, ts)
		if err != nil {
			panic(err) // qty >= 1 by construction
		}
		execs = append(execs, oExecs...)
		trades = append(trades, oTrades...)
		s.appendTrades(oTrades)
	} else {
		offset := math.Abs(s.normal(0, 1.5))
		if side == engine.Buy {
			offset = -offset
		}
		price := s.currentMid().Add(decimal.NewFromFloat(offset).Mul(s.p.TickSize)).Round(2)
		order := engine.Order{
			ID:        s.nextID("flow"),
			CreatedAt: ts,
			Side:      side,
			Price:     price,
			Quantity:  qty,
			Kind:      engine.Limit,
		}
		oExecs, oTrades, err := s.book.AddLimit(order, ts)
		if err != nil {
			// A passive offset can land at or below zero far from the
			// reference level; skip the order rather than abort the tick.
			return execs, trades, cancels
		}
		execs = append(execs, oExecs...)
		trades = append(trades, oTrades...)
		s.appendTrades(oTrades)
	}

	s.updateMidHistory()
	return execs, trades, cancels
}

// RecentTrades exposes the trend window, oldest first.
func (s *Simulator) RecentTrades() []engine.Trade {
	out := make([]engine.Trade, len(s.recentTrades))
	copy(out, s.recentTrades)
	return out
}

// currentMid falls back to the configured start mid when the book is empty.
func (s *Simulator) currentMid() decimal.Decimal {
	if mid, ok := s.book.Mid(); ok {
		return mid
	}
	return s.p.StartMid
}

// maintainLiquidity re-anchors the decaying depth ladder to the current
// mid: tops up house quantity per level, trims excess oldest-first, and
// retires house orders whose price fell off the ladder.
func (s *Simulator) maintainLiquidity(ts time.Time) (execs []engine.ExecutionReport, trades []engine.Trade, cancels []engine.ExecutionReport) {
	mid := s.currentMid()

	ladder := make(map[engine.Side]map[string]struct{}, 2)
	ladder[engine.Buy] = make(map[string]struct{}, ladderLevels)
	ladder[engine.Sell] = make(map[string]struct{}, ladderLevels)

	for lvl := 0; lvl < ladderLevels; lvl++ {
		target := int64(math.Round(float64(s.p.BaseDepthQty) * math.Exp(-s.p.LambdaDepth*float64(lvl))))
		offset := s.p.TickSize.Mul(decimal.NewFromInt(int64(lvl + 1)))

		for _, side := range []engine.Side{engine.Buy, engine.Sell} {
			price := mid.Add(offset)
			if side == engine.Buy {
				price = mid.Sub(offset)
			}
			ladder[side][price.String()] = struct{}{}

			qExecs, qTrades, qCancels := s.quoteLevel(side, price, target, ts)
			execs = append(execs, qExecs...)
			trades = append(trades, qTrades...)
			cancels = append(cancels, qCancels...)
		}
	}

	// The ladder moved: retire house orders quoting stale prices.
	for _, h := range append([]houseOrder(nil), s.house...) {
		if _, ok := ladder[h.side][h.price.String()]; ok {
			continue
		}
		cancels = append(cancels, s.book.Cancel(h.id, ts)...)
		s.forget(h.id)
	}

	return execs, trades, cancels
}

// quoteLevel reconciles house-owned quantity at one ladder price with its
// target.
func (s *Simulator) quoteLevel(side engine.Side, price decimal.Decimal, target int64, ts time.Time) (execs []engine.ExecutionReport, trades []engine.Trade, cancels []engine.ExecutionReport) {
	var owned int64
	var ownedOrders []engine.Order
	for _, o := range s.book.OrdersAtPrice(side, price) {
		if _, ok := s.houseIDs[o.ID]; ok {
			owned += o.Quantity
			ownedOrders = append(ownedOrders, o)
		}
	}

	switch {
	case owned < target:
		if price.Sign() <= 0 {
			return nil, nil, nil
		}
		order := engine.Order{
			ID:        s.nextID("house"),
			CreatedAt: ts,
			Side:      side,
			Price:     price,
			Quantity:  target - owned,
			Kind:      engine.Limit,
		}
		var err error
		execs, trades, err = s.book.AddLimit(order, ts)
		if err != nil {
			panic(err) // deficit > 0 and price > 0 checked above
		}
		s.house = append(s.house, houseOrder{id: order.ID, side: side, price: price})
		s.houseIDs[order.ID] = struct{}{}

	case owned > target:
		// Trim oldest first, but keep any order whose removal would
		// overshoot the target.
		for _, o := range ownedOrders {
			if owned-o.Quantity < target {
				continue
			}
			cancels = append(cancels, s.book.Cancel(o.ID, ts)...)
			s.forget(o.ID)
			owned -= o.Quantity
			if owned <= target {
				break
			}
		}
	}

	return execs, trades, cancels
}

// cancelRandom runs one independent Bernoulli trial per resting order.
func (s *Simulator) cancelRandom(ts time.Time) []engine.ExecutionReport {
	var reports []engine.ExecutionReport
	for _, id := range s.book.ActiveOrderIDs() {
		if s.rng.Float64() >= s.p.CancelProb {
			continue
		}
		reports = append(reports, s.book.Cancel(id, ts)...)
		s.forget(id)
	}
	return reports
}

// buyProbability combines the three direction signals into a clamped
// probability of drawing a buy.
func (s *Simulator) buyProbability(ts time.Time) float64 {
	snap := s.book.Snapshot(ts, 3)
	var bidQty, askQty int64
	for _, l := range snap.Bids {
		bidQty += l.Quantity
	}
	for _, l := range snap.Asks {
		askQty += l.Quantity
	}
	imb := float64(bidQty-askQty) / math.Max(1, float64(bidQty+askQty))

	trend := 0.0
	if n := len(s.recentTrades); n > 0 {
		var buys int
		for _, t := range s.recentTrades {
			if t.AggressorSide == engine.Buy {
				buys++
			}
		}
		trend = float64(2*buys-n) / float64(n)
	}

	mid := s.currentMid()
	priceDev := mid.Sub(s.p.StartMid).Div(s.p.TickSize).InexactFloat64()
	if len(s.midHistory) == s.p.PriceLookback {
		priceDev = mid.Sub(s.midHistory[0]).Div(s.p.TickSize).InexactFloat64() * 0.01
	}

	p := 0.5 + s.p.K1Imbalance*imb + s.p.K2Trend*trend - s.p.K3PriceDev*priceDev
	return clamp(p, 0.05, 0.95)
}

func (s *Simulator) appendTrades(trades []engine.Trade) {
	for _, t := range trades {
		s.recentTrades = append(s.recentTrades, t)
		if len(s.recentTrades) > s.p.TrendLookback {
			s.recentTrades = s.recentTrades[1:]
		}
	}
}

func (s *Simulator) updateMidHistory() {
	mid, ok := s.book.Mid()
	if !ok {
		return
	}
	s.midHistory = append(s.midHistory, mid)
	if len(s.midHistory) > s.p.PriceLookback {
		s.midHistory = s.midHistory[1:]
	}
}

// normal draws one standard normal via Box-Muller and scales it.
func (s *Simulator) normal(mu, sigma float64) float64 {
	u1 := 1.0 - s.rng.Float64()
	u2 := 1.0 - s.rng.Float64()
	z := math.Sqrt(-2.0*math.Log(u1)) * math.Sin(2.0*math.Pi*u2)
	return mu + sigma*z
}

func (s *Simulator) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Simulator) forget(id string) {
	if _, ok := s.houseIDs[id]; !ok {
		return
	}
	delete(s.houseIDs, id)
	for i, h := range s.house {
		if h.id == id {
			s.house = append(s.house[:i], s.house[i+1:]...)
			break
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
