package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"pricesim/engine"
	"pricesim/strategy"
)

// CsvSink writes one CSV file per record kind into a log directory, with
// a run stamp shared across the files.
type CsvSink struct {
	trades     *csvFile
	orders     *csvFile
	books      *csvFile
	stats      *csvFile
	strategies *csvFile
	events     *os.File
	eventsBuf  *bufio.Writer
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func newCsvFile(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	err := c.w.Error()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewCsv creates the log directory if needed and opens the run's files.
func NewCsv(dir string) (*CsvSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
	open := func(kind string, header []string) (*csvFile, error) {
		return newCsvFile(filepath.Join(dir, fmt.Sprintf("%s_%s.csv", kind, stamp)), header)
	}

	s := &CsvSink{}
	var err error
	if s.trades, err = open("trades", []string{"ts", "side", "price", "qty"}); err != nil {
		return nil, err
	}
	if s.orders, err = open("orders", []string{"ts", "orderId", "execType", "side", "price", "lastQty", "leaves"}); err != nil {
		return nil, err
	}
	if s.books, err = open("books", []string{"ts", "side", "level", "price", "qty"}); err != nil {
		return nil, err
	}
	if s.stats, err = open("stats", []string{"ts", "buyingPower", "position", "vwap", "pnl", "realised"}); err != nil {
		return nil, err
	}
	if s.strategies, err = open("strategy_events", []string{"ts", "strategy", "state"}); err != nil {
		return nil, err
	}
	if s.events, err = os.Create(filepath.Join(dir, fmt.Sprintf("events_%s.log", stamp))); err != nil {
		return nil, err
	}
	s.eventsBuf = bufio.NewWriter(s.events)
	return s, nil
}

func (s *CsvSink) LogTrade(t engine.Trade) {
	_ = s.trades.w.Write([]string{
		t.Timestamp.Format(time.RFC3339Nano),
		t.AggressorSide.String(),
		t.Price.StringFixed(2),
		strconv.FormatInt(t.Quantity, 10),
	})
}

func (s *CsvSink) LogExec(r engine.ExecutionReport) {
	_ = s.orders.w.Write([]string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.OrderID,
		r.Type.String(),
		r.Side.String(),
		r.Price.StringFixed(2),
		strconv.FormatInt(r.LastQty, 10),
		strconv.FormatInt(r.LeavesQty, 10),
	})
}

func (s *CsvSink) LogBook(snap engine.Snapshot) {
	ts := snap.Timestamp.Format(time.RFC3339Nano)
	write := func(side string, levels []engine.BookLevel) {
		for i, l := range levels {
			_ = s.books.w.Write([]string{
				ts, side, strconv.Itoa(i), l.Price.StringFixed(2), strconv.FormatInt(l.Quantity, 10),
			})
		}
	}
	write("Bid", snap.Bids)
	write("Ask", snap.Asks)
}

func (s *CsvSink) LogStats(ts time.Time, m strategy.Metrics) {
	_ = s.stats.w.Write([]string{
		ts.Format(time.RFC3339Nano),
		m.BuyingPowerUsed.StringFixed(2),
		strconv.FormatInt(m.Position, 10),
		m.Vwap.StringFixed(4),
		m.PnL.StringFixed(2),
		m.RealisedPnL.StringFixed(2),
	})
}

func (s *CsvSink) LogStrategyState(ts time.Time, name string, active int) {
	_ = s.strategies.w.Write([]string{
		ts.Format(time.RFC3339Nano), name, strconv.Itoa(active),
	})
}

func (s *CsvSink) LogEvent(msg string) {
	_, _ = s.eventsBuf.WriteString(msg + "\n")
}

// Close flushes and closes every file, returning the first error.
func (s *CsvSink) Close() error {
	var first error
	for _, f := range []*csvFile{s.trades, s.orders, s.books, s.stats, s.strategies} {
		if err := f.close(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.eventsBuf.Flush(); err != nil && first == nil {
		first = err
	}
	if err := s.events.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
