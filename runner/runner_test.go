package runner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesim/engine"
	"pricesim/strategy"
)

// quietMarket produces no background flow so tests control the book.
type quietMarket struct{ steps int }

func (q *quietMarket) Step(time.Time) ([]engine.ExecutionReport, []engine.Trade, []engine.ExecutionReport) {
	q.steps++
	return nil, nil, nil
}

// scriptedStrategy emits each command batch once, in order.
type scriptedStrategy struct {
	script  [][]strategy.OrderCommand
	books   []engine.Snapshot
	execs   []engine.ExecutionReport
	metrics strategy.Metrics
}

func (s *scriptedStrategy) Initialize(strategy.Context) {}

func (s *scriptedStrategy) OnOrderBook(snap engine.Snapshot) { s.books = append(s.books, snap) }

func (s *scriptedStrategy) OnExecution(r engine.ExecutionReport) {
	s.execs = append(s.execs, r)
}

func (s *scriptedStrategy) GenerateCommands(time.Time) []strategy.OrderCommand {
	if len(s.script) == 0 {
		return nil
	}
	cmds := s.script[0]
	s.script = s.script[1:]
	return cmds
}

func (s *scriptedStrategy) Metrics() strategy.Metrics { return s.metrics }

// memorySink captures everything it is handed.
type memorySink struct {
	trades []engine.Trade
	execs  []engine.ExecutionReport
	books  []engine.Snapshot
	stats  []strategy.Metrics
	events []string
}

func (m *memorySink) LogTrade(t engine.Trade) { m.trades = append(m.trades, t) }

func (m *memorySink) LogExec(r engine.ExecutionReport) { m.execs = append(m.execs, r) }

func (m *memorySink) LogBook(s engine.Snapshot) { m.books = append(m.books, s) }

func (m *memorySink) LogStats(_ time.Time, s strategy.Metrics) { m.stats = append(m.stats, s) }

func (m *memorySink) LogStrategyState(time.Time, string, int) {}

func (m *memorySink) LogEvent(msg string) { m.events = append(m.events, msg) }

func (m *memorySink) Close() error { return nil }

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func start() time.Time { return time.Unix(1_700_000_000, 0).UTC() }

func newRunner(strat strategy.Strategy, mem *memorySink) (*Runner, *engine.OrderBook, *quietMarket) {
	book := engine.NewOrderBook()
	market := &quietMarket{}
	r := New(Config{
		Book:     book,
		Sim:      market,
		Strategy: strat,
		Context:  strategy.Context{TickSize: d(0.01), SimulationStep: 100 * time.Millisecond},
		Sink:     mem,
	})
	return r, book, market
}

func TestRunTicksForTheWholeDuration(t *testing.T) {
	strat := &scriptedStrategy{}
	mem := &memorySink{}
	r, _, market := newRunner(strat, mem)

	err := r.Run(context.Background(), start(), 2*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 20, market.steps, "2s at 100ms per tick")
	assert.Len(t, strat.books, 20, "one snapshot per tick")
	assert.Len(t, mem.books, 2, "book dump once per second")
	assert.Len(t, mem.stats, 2)
}

func TestRunHonorsCancellation(t *testing.T) {
	strat := &scriptedStrategy{}
	mem := &memorySink{}
	r, _, market := newRunner(strat, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, start(), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, market.steps)
}

func TestCommandsReachTheBook(t *testing.T) {
	strat := &scriptedStrategy{script: [][]strategy.OrderCommand{
		{strategy.NewOrder("s-1", engine.Buy, d(19.99), 100)},
	}}
	mem := &memorySink{}
	r, book, _ := newRunner(strat, mem)

	err := r.Run(context.Background(), start(), 200*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, int64(100), book.QuantityAt(engine.Buy, d(19.99)))
	require.Len(t, strat.execs, 1, "the strategy sees its own New report")
	assert.Equal(t, engine.ExecNew, strat.execs[0].Type)
	assert.Equal(t, "s-1", strat.execs[0].OrderID)
	require.Len(t, mem.execs, 1)
}

func TestZeroPriceCommandExecutesAtMarket(t *testing.T) {
	strat := &scriptedStrategy{script: [][]strategy.OrderCommand{
		{strategy.NewOrder("rest-1", engine.Sell, d(20.01), 100)},
		{strategy.NewOrder("mkt-1", engine.Buy, decimal.Decimal{}, 40)},
	}}
	mem := &memorySink{}
	r, book, _ := newRunner(strat, mem)

	err := r.Run(context.Background(), start(), 300*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, int64(60), book.QuantityAt(engine.Sell, d(20.01)))
	require.Len(t, mem.trades, 1)
	assert.True(t, mem.trades[0].Price.Equal(d(20.01)))
	assert.Equal(t, int64(40), mem.trades[0].Quantity)
	assert.NotContains(t, book.ActiveOrderIDs(), "mkt-1", "market remainder never rests")
}

func TestInvalidCommandBecomesReject(t *testing.T) {
	strat := &scriptedStrategy{script: [][]strategy.OrderCommand{
		{strategy.NewOrder("bad-1", engine.Buy, d(19.99), 0)},
	}}
	mem := &memorySink{}
	r, book, _ := newRunner(strat, mem)

	err := r.Run(context.Background(), start(), 200*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, strat.execs, 1)
	assert.Equal(t, engine.ExecReject, strat.execs[0].Type)
	assert.Equal(t, "bad-1", strat.execs[0].OrderID)
	require.Len(t, mem.execs, 1)
	assert.Equal(t, engine.ExecReject, mem.execs[0].Type)
	assert.Empty(t, book.ActiveOrderIDs())
}

func TestCancelCommandRemovesOrder(t *testing.T) {
	strat := &scriptedStrategy{script: [][]strategy.OrderCommand{
		{strategy.NewOrder("s-1", engine.Buy, d(19.99), 100)},
		{strategy.CancelOrder("s-1")},
	}}
	mem := &memorySink{}
	r, book, _ := newRunner(strat, mem)

	err := r.Run(context.Background(), start(), 300*time.Millisecond)
	require.NoError(t, err)

	assert.Empty(t, book.ActiveOrderIDs())
	require.Len(t, strat.execs, 2)
	assert.Equal(t, engine.ExecCancel, strat.execs[1].Type)
}
