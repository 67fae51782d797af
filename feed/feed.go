// Package feed exposes the live simulation over HTTP: websocket streams
// of trades and book snapshots plus a REST endpoint for the latest
// snapshot. It plugs into the run as a sink, so the runner stays unaware
// of transport.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pricesim/engine"
	"pricesim/sink"
	"pricesim/strategy"
)

type Server struct {
	log      *zap.Logger
	tradeHub *hub[engine.Trade]
	bookHub  *hub[engine.Snapshot]
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	latest engine.Snapshot
}

var _ sink.Sink = (*Server)(nil)

func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:      log,
		tradeHub: newHub[engine.Trade](),
		bookHub:  newHub[engine.Snapshot](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// LogTrade broadcasts a trade to websocket subscribers.
func (s *Server) LogTrade(t engine.Trade) {
	s.tradeHub.Broadcast(t)
}

// LogBook retains the snapshot for the REST endpoint and broadcasts it.
func (s *Server) LogBook(snap engine.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
	s.bookHub.Broadcast(snap)
}

func (s *Server) LogExec(engine.ExecutionReport) {}

func (s *Server) LogStats(time.Time, strategy.Metrics) {}

func (s *Server) LogStrategyState(time.Time, string, int) {}

func (s *Server) LogEvent(string) {}

func (s *Server) Close() error { return nil }

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/book", s.withCORS(http.HandlerFunc(s.handleSnapshot)))
	mux.Handle("/ws/trades", s.withCORS(http.HandlerFunc(s.handleTradeStream)))
	mux.Handle("/ws/book", s.withCORS(http.HandlerFunc(s.handleBookStream)))
	return mux
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	snap := s.latest
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, toPublicSnapshot(snap))
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.tradeHub.Subscribe(64)
	defer s.tradeHub.Unsubscribe(sub)

	for trade := range sub.ch {
		msg := outboundMessage{Type: "trade", Data: toPublicTrade(trade)}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug("trade stream closed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleBookStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.bookHub.Subscribe(32)
	defer s.bookHub.Unsubscribe(sub)

	for snap := range sub.ch {
		msg := outboundMessage{Type: "book", Data: toPublicSnapshot(snap)}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug("book stream closed", zap.Error(err))
			return
		}
	}
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type publicTrade struct {
	Timestamp time.Time `json:"timestamp"`
	Side      string    `json:"side"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
}

type publicLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type publicSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Bids      []publicLevel `json:"bids"`
	Asks      []publicLevel `json:"asks"`
}

func toPublicTrade(t engine.Trade) publicTrade {
	return publicTrade{
		Timestamp: t.Timestamp,
		Side:      t.AggressorSide.String(),
		Price:     t.Price.StringFixed(2),
		Quantity:  t.Quantity,
	}
}

func toPublicSnapshot(snap engine.Snapshot) publicSnapshot {
	out := publicSnapshot{
		Timestamp: snap.Timestamp,
		Bids:      make([]publicLevel, 0, len(snap.Bids)),
		Asks:      make([]publicLevel, 0, len(snap.Asks)),
	}
	for _, lvl := range snap.Bids {
		out.Bids = append(out.Bids, publicLevel{Price: lvl.Price.StringFixed(2), Quantity: lvl.Quantity})
	}
	for _, lvl := range snap.Asks {
		out.Asks = append(out.Asks, publicLevel{Price: lvl.Price.StringFixed(2), Quantity: lvl.Quantity})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
