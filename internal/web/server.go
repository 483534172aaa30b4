package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"currency_go/internal/domain"
	"currency_go/internal/infra"
	"currency_go/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// RateSource is the process-wide snapshot cell plus its change feed
type RateSource interface {
	Current() *domain.RateSnapshot
	Subscribe() (<-chan *domain.RateSnapshot, func())
}

// Server exposes converter panels over WebSocket and a small JSON API
type Server struct {
	rates     RateSource
	flags     domain.FlagProvider
	panelOpts service.PanelOptions
	metrics   *infra.Metrics
	logger    *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a server. flags may be nil when flag images are disabled.
func NewServer(addr string, rates RateSource, flags domain.FlagProvider, panelOpts service.PanelOptions, metrics *infra.Metrics) *Server {
	s := &Server{
		rates:     rates,
		flags:     flags,
		panelOpts: panelOpts,
		metrics:   metrics,
		logger:    slog.Default().With("module", "web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		sessions: make(map[uuid.UUID]*session),
	}
	s.panelOpts.Flags = flags
	s.panelOpts.Metrics = metrics

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /flags/{code}", s.handleFlag)
	mux.HandleFunc("GET /api/convert", s.handleConvert)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start serves HTTP in the background and pushes new snapshots to sessions until ctx ends
func (s *Server) Start(ctx context.Context) error {
	updates, unsubscribe := s.rates.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				s.logger.Info("Pushing new rate snapshot", slog.Time("fetched_at", snap.FetchedAt))
				s.broadcast()
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	s.logger.Info("HTTP server started", slog.String("addr", s.httpServer.Addr))
	return nil
}

// Shutdown stops accepting connections and closes every session
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) broadcast() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		// An unavailable pair is shown through the state's status
		_ = sess.panel.Refresh()
		sess.sendState(sess.panel.State(), nil)
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
}

// ======================================================================================
// HTTP Handlers
// ======================================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		http.NotFound(w, r)
		return
	}

	code := strings.TrimSuffix(r.PathValue("code"), ".png")
	path, err := s.flags.FetchFlag(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCurrency) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Warn("Flag lookup failed", slog.String("currency", code), slog.Any("error", err))
		http.Error(w, "flag unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

type convertResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Result    string    `json:"result"`
	Rate      string    `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.ConversionRequest{
		From: strings.ToUpper(q.Get("from")),
		To:   strings.ToUpper(q.Get("to")),
	}

	amount := q.Get("amount")
	if amount == "" {
		amount = "1"
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
		return
	}
	req.Amount = parsed

	snap := s.rates.Current()
	result, err := domain.Convert(snap, req)
	s.metrics.RecordConversion(err)
	switch {
	case errors.Is(err, domain.ErrNoSnapshot):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "rates not loaded"})
		return
	case errors.Is(err, domain.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "conversion unavailable"})
		return
	}

	rate, _ := domain.ResolveRate(snap, req.From, req.To)
	writeJSON(w, http.StatusOK, convertResponse{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount.String(),
		Result:    result.String(),
		Rate:      rate.String(),
		FetchedAt: snap.FetchedAt,
	})
}

type currencyView struct {
	Code     string `json:"code"`
	Favorite bool   `json:"favorite"`
	Flag     string `json:"flag,omitempty"` // Set once the flag is cached locally
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	entries, err := service.ListCurrencyEntries(r.Context(), s.panelOpts.Catalog, s.rates.Current())
	if err != nil {
		s.logger.Warn("Currency catalog unavailable", slog.Any("error", err))
	}

	views := make([]currencyView, 0, len(entries))
	for _, e := range entries {
		view := currencyView{Code: e.Code, Favorite: e.Favorite}
		if e.FlagPath != "" {
			view.Flag = "/flags/" + e.Code
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", slog.Any("error", err))
	}
}
