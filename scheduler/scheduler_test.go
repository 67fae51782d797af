package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesim/engine"
	"pricesim/strategy"
)

type stubStrategy struct {
	initCount int
	books     []engine.Snapshot
	execs     []engine.ExecutionReport
	pending   []strategy.OrderCommand
}

func (s *stubStrategy) Initialize(strategy.Context) { s.initCount++ }

func (s *stubStrategy) OnOrderBook(snap engine.Snapshot) { s.books = append(s.books, snap) }

func (s *stubStrategy) OnExecution(r engine.ExecutionReport) {
	s.execs = append(s.execs, r)
}

func (s *stubStrategy) GenerateCommands(time.Time) []strategy.OrderCommand {
	return s.pending
}

type reportingStub struct {
	stubStrategy
	metrics strategy.Metrics
}

func (s *reportingStub) Metrics() strategy.Metrics { return s.metrics }

type transition struct {
	name  string
	state int
}

type captureSink struct {
	transitions []transition
}

func (c *captureSink) LogStrategyState(_ time.Time, name string, active int) {
	c.transitions = append(c.transitions, transition{name: name, state: active})
}

func start() time.Time { return time.Unix(1_700_000_000, 0).UTC() }

func TestWindowGatesCallbacks(t *testing.T) {
	stub := &stubStrategy{}
	sink := &captureSink{}
	step := 100 * time.Millisecond

	s := New([]StrategyWindow{{Strategy: stub, Offset: 10 * time.Second, Duration: 10 * time.Second}})
	s.AttachSink(sink)
	s.Initialize(strategy.Context{SimulationStep: step})

	for i := 0; i <= 250; i++ {
		now := start().Add(time.Duration(i) * step)
		s.OnOrderBook(engine.Snapshot{Timestamp: now})
		s.GenerateCommands(now)
	}

	// Live for elapsed in [10s, 20s): ticks 100 through 199.
	require.Len(t, stub.books, 100)
	assert.Equal(t, start().Add(10*time.Second), stub.books[0].Timestamp)
	assert.Equal(t, start().Add(19900*time.Millisecond), stub.books[len(stub.books)-1].Timestamp)

	require.Len(t, sink.transitions, 2, "exactly one on and one off transition")
	assert.Equal(t, transition{name: "stubStrategy", state: 1}, sink.transitions[0])
	assert.Equal(t, transition{name: "stubStrategy", state: 0}, sink.transitions[1])
}

func TestExecutionsGatedByWindow(t *testing.T) {
	stub := &stubStrategy{}
	s := New([]StrategyWindow{{Strategy: stub, Offset: 5 * time.Second, Duration: 5 * time.Second}})
	s.Initialize(strategy.Context{SimulationStep: 100 * time.Millisecond})

	s.OnExecution(engine.ExecutionReport{OrderID: "early", Timestamp: start()})
	s.OnExecution(engine.ExecutionReport{OrderID: "inside", Timestamp: start().Add(7 * time.Second)})
	s.OnExecution(engine.ExecutionReport{OrderID: "late", Timestamp: start().Add(12 * time.Second)})

	require.Len(t, stub.execs, 1)
	assert.Equal(t, "inside", stub.execs[0].OrderID)
}

func TestInitializeDeduplicatesSharedStrategy(t *testing.T) {
	stub := &stubStrategy{}
	s := New([]StrategyWindow{
		{Strategy: stub, Offset: 0, Duration: 10 * time.Second},
		{Strategy: stub, Offset: 30 * time.Second, Duration: 10 * time.Second},
	})
	s.Initialize(strategy.Context{SimulationStep: 100 * time.Millisecond})

	assert.Equal(t, 1, stub.initCount)
}

func TestSharedStrategyRunsBothWindows(t *testing.T) {
	stub := &stubStrategy{}
	sink := &captureSink{}
	step := time.Second

	s := New([]StrategyWindow{
		{Strategy: stub, Offset: 2 * time.Second, Duration: 2 * time.Second},
		{Strategy: stub, Offset: 6 * time.Second, Duration: 2 * time.Second},
	})
	s.AttachSink(sink)
	s.Initialize(strategy.Context{SimulationStep: step})

	for i := 0; i <= 10; i++ {
		now := start().Add(time.Duration(i) * step)
		s.OnOrderBook(engine.Snapshot{Timestamp: now})
		s.GenerateCommands(now)
	}

	require.Len(t, stub.books, 4, "two seconds live per window at 1s ticks")
	require.Len(t, sink.transitions, 4)
	assert.Equal(t, 1, sink.transitions[0].state)
	assert.Equal(t, 0, sink.transitions[1].state)
	assert.Equal(t, 1, sink.transitions[2].state)
	assert.Equal(t, 0, sink.transitions[3].state)
}

func TestCommandsFollowDeclarationOrder(t *testing.T) {
	first := &stubStrategy{pending: []strategy.OrderCommand{strategy.CancelOrder("from-first")}}
	second := &stubStrategy{pending: []strategy.OrderCommand{strategy.CancelOrder("from-second")}}

	s := New([]StrategyWindow{
		{Strategy: first, Offset: 0, Duration: time.Minute},
		{Strategy: second, Offset: 0, Duration: time.Minute},
	})
	s.Initialize(strategy.Context{SimulationStep: 100 * time.Millisecond})

	cmds := s.GenerateCommands(start().Add(time.Second))
	require.Len(t, cmds, 2)
	assert.Equal(t, "from-first", cmds[0].OrderID)
	assert.Equal(t, "from-second", cmds[1].OrderID)
}

func TestMetricsAggregation(t *testing.T) {
	flat := &reportingStub{metrics: strategy.Metrics{
		BuyingPowerUsed: decimal.NewFromInt(1000),
		Position:        0,
		Vwap:            decimal.NewFromInt(99),
		PnL:             decimal.NewFromInt(-5),
	}}
	long := &reportingStub{metrics: strategy.Metrics{
		BuyingPowerUsed: decimal.NewFromInt(500),
		Position:        25,
		Vwap:            decimal.NewFromInt(20),
		RealisedPnL:     decimal.NewFromInt(3),
	}}

	s := New([]StrategyWindow{
		{Strategy: flat, Offset: 0, Duration: time.Minute},
		{Strategy: long, Offset: 0, Duration: time.Minute},
	})
	s.Initialize(strategy.Context{SimulationStep: 100 * time.Millisecond})

	assert.Equal(t, strategy.Metrics{}, s.Metrics(), "zero before the first event")

	s.OnOrderBook(engine.Snapshot{Timestamp: start()})
	m := s.Metrics()

	assert.True(t, m.BuyingPowerUsed.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, int64(25), m.Position)
	assert.True(t, m.Vwap.Equal(decimal.NewFromInt(20)), "vwap from the position holder, got %s", m.Vwap)
	assert.True(t, m.PnL.Equal(decimal.NewFromInt(-5)))
	assert.True(t, m.RealisedPnL.Equal(decimal.NewFromInt(3)))
}

func TestMultiFansOut(t *testing.T) {
	a := &stubStrategy{pending: []strategy.OrderCommand{strategy.CancelOrder("a")}}
	b := &stubStrategy{}
	m := Multi{a, b, &strategy.NoOp{}}

	m.Initialize(strategy.Context{})
	m.OnOrderBook(engine.Snapshot{Timestamp: start()})
	m.OnExecution(engine.ExecutionReport{OrderID: "x"})
	cmds := m.GenerateCommands(start())

	assert.Equal(t, 1, a.initCount)
	assert.Equal(t, 1, b.initCount)
	assert.Len(t, a.books, 1)
	assert.Len(t, b.books, 1)
	assert.Len(t, b.execs, 1)
	require.Len(t, cmds, 1)
	assert.Equal(t, "a", cmds[0].OrderID)
}
