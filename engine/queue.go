package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// priceLevel holds the FIFO queue of resting orders at one price.
// orders[0] is the oldest (highest time priority).
type priceLevel struct {
	price  decimal.Decimal
	orders []*Order
}

func (l *priceLevel) totalQty() int64 {
	var sum int64
	for _, o := range l.orders {
		sum += o.Quantity
	}
	return sum
}

func (l *priceLevel) head() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	return l.orders[0]
}

func (l *priceLevel) popHead() {
	l.orders = l.orders[1:]
}

// removeID unlinks one order by id, preserving the relative order of the
// rest of the queue. Returns the removed order, or nil.
func (l *priceLevel) removeID(id string) *Order {
	for i, o := range l.orders {
		if o.ID == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return o
		}
	}
	return nil
}

// bookSide keeps price levels sorted best-first: descending for bids,
// ascending for asks.
type bookSide struct {
	levels     []*priceLevel
	descending bool
}

// better reports whether price a outranks price b on this side.
func (s *bookSide) better(a, b decimal.Decimal) bool {
	if s.descending {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

func (s *bookSide) best() *priceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

func (s *bookSide) dropBest() {
	s.levels = s.levels[1:]
}

// find returns the level at exactly price, or nil.
func (s *bookSide) find(price decimal.Decimal) *priceLevel {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		return s.levels[i]
	}
	return nil
}

// search returns the insertion index for price in best-first order.
func (s *bookSide) search(price decimal.Decimal) int {
	return sort.Search(len(s.levels), func(i int) bool {
		return !s.better(s.levels[i].price, price)
	})
}

// enqueue appends an order to its price level, creating the level if needed.
func (s *bookSide) enqueue(o *Order) {
	i := s.search(o.Price)
	if i < len(s.levels) && s.levels[i].price.Equal(o.Price) {
		s.levels[i].orders = append(s.levels[i].orders, o)
		return
	}
	lvl := &priceLevel{price: o.Price, orders: []*Order{o}}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = lvl
}

// removeLevel drops the level at exactly price, if present.
func (s *bookSide) removeLevel(price decimal.Decimal) {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		s.levels = append(s.levels[:i], s.levels[i+1:]...)
	}
}
