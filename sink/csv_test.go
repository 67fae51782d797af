package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesim/engine"
	"pricesim/strategy"
)

func readCsv(t *testing.T, dir, kind string) [][]string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, kind+"_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "exactly one %s file per run", kind)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCsvSinkWritesAllRecordKinds(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCsv(dir)
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	price := decimal.NewFromFloat(20.015)

	s.LogTrade(engine.Trade{Timestamp: ts, AggressorSide: engine.Buy, Price: price, Quantity: 250})
	s.LogExec(engine.ExecutionReport{
		Timestamp: ts, OrderID: "flow-7", Type: engine.ExecTrade,
		Side: engine.Sell, Price: price, LastQty: 250, LeavesQty: 50,
	})
	s.LogBook(engine.Snapshot{
		Timestamp: ts,
		Bids:      []engine.BookLevel{{Price: decimal.NewFromFloat(19.99), Quantity: 2500}},
		Asks:      []engine.BookLevel{{Price: decimal.NewFromFloat(20.01), Quantity: 2500}},
	})
	s.LogStats(ts, strategy.Metrics{
		BuyingPowerUsed: decimal.NewFromInt(1998),
		Position:        100,
		Vwap:            decimal.NewFromFloat(19.98),
		PnL:             decimal.NewFromInt(2),
	})
	s.LogStrategyState(ts, "LadderBid", 1)
	s.LogEvent("ladder placed")
	require.NoError(t, s.Close())

	trades := readCsv(t, dir, "trades")
	require.Len(t, trades, 2)
	assert.Equal(t, []string{"ts", "side", "price", "qty"}, trades[0])
	assert.Equal(t, []string{"2026-01-02T03:04:05Z", "Buy", "20.02", "250"}, trades[1])

	orders := readCsv(t, dir, "orders")
	require.Len(t, orders, 2)
	assert.Equal(t, []string{"ts", "orderId", "execType", "side", "price", "lastQty", "leaves"}, orders[0])
	assert.Equal(t, "flow-7", orders[1][1])
	assert.Equal(t, "Trade", orders[1][2])

	books := readCsv(t, dir, "books")
	require.Len(t, books, 3, "header plus one row per side level")
	assert.Equal(t, []string{books[1][0], "Bid", "0", "19.99", "2500"}, books[1])
	assert.Equal(t, "Ask", books[2][1])

	stats := readCsv(t, dir, "stats")
	require.Len(t, stats, 2)
	assert.Equal(t, []string{"2026-01-02T03:04:05Z", "1998.00", "100", "19.9800", "2.00", "0.00"}, stats[1])

	states := readCsv(t, dir, "strategy_events")
	require.Len(t, states, 2)
	assert.Equal(t, []string{"2026-01-02T03:04:05Z", "LadderBid", "1"}, states[1])

	logs, err := filepath.Glob(filepath.Join(dir, "events_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	raw, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Equal(t, "ladder placed\n", string(raw))
}

func TestCsvSinkRunsDoNotCollide(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewCsv(dir)
	require.NoError(t, err)
	s2, err := NewCsv(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Close())
	require.NoError(t, s2.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "trades_*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMultiFansOutAndClosesAll(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	s1, err := NewCsv(dir1)
	require.NoError(t, err)
	s2, err := NewCsv(dir2)
	require.NoError(t, err)

	m := Multi{s1, s2}
	m.LogEvent("shared line")
	require.NoError(t, m.Close())

	for _, dir := range []string{dir1, dir2} {
		logs, err := filepath.Glob(filepath.Join(dir, "events_*.log"))
		require.NoError(t, err)
		require.Len(t, logs, 1)
		raw, err := os.ReadFile(logs[0])
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(raw), "shared line"))
	}
}
