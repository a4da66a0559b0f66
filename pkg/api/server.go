package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchpipe/pkg/actors"
	"github.com/uhyunpark/matchpipe/pkg/app/core"
	"github.com/uhyunpark/matchpipe/pkg/app/core/orderbook"
)

// Pipeline is the slice of *actors.Pipeline the server drives.
type Pipeline interface {
	Submit(ctx context.Context, n core.NewOrder) error
	Shutdown(ctx context.Context) error
	Done() <-chan struct{}
	Wait() (actors.Report, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	ctx      context.Context
	pipeline Pipeline
	router   *mux.Router
	hub      *Hub
	logger   *zap.SugaredLogger
	http     *http.Server

	// Submits hold the read side while enqueueing; shutdown takes the write
	// side. So every 202 for an order was enqueued ahead of Shutdown and
	// will be processed.
	stopMu   sync.RWMutex
	stopping bool
}

// NewServer creates a new API server. ctx bounds the lifetime of WebSocket
// clients; the hub must be registered as an audit observer by the caller.
func NewServer(ctx context.Context, p Pipeline, hub *Hub, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ctx:      ctx,
		pipeline: p,
		router:   mux.NewRouter(),
		hub:      hub,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/shutdown", s.handleShutdown).Methods("POST")
	api.HandleFunc("/summary", s.handleGetSummary).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves until Stop. It returns nil after
// a graceful stop.
func (s *Server) Start(addr string) error {
	go s.hub.Run(s.ctx)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infow("api_listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func parseSide(s string) (core.Side, bool) {
	switch strings.ToLower(s) {
	case "buy":
		return core.Buy, true
	case "sell":
		return core.Sell, true
	default:
		return 0, false
	}
}

// handleSubmitOrder blocks while the gateway inbox is full.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", `expected "buy" or "sell"`)
		return
	}

	order := core.NewOrder{UserID: req.UserID, Side: side, Qty: req.Qty, Price: req.Price}
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()
	if s.stopping {
		respondError(w, http.StatusServiceUnavailable, "pipeline stopping", "shutdown already requested")
		return
	}
	if err := s.pipeline.Submit(r.Context(), order); err != nil {
		s.respondSendError(w, err)
		return
	}

	s.logger.Debugw("order_submitted", "user_id", order.UserID, "side", order.Side, "qty", order.Qty, "price", order.Price)
	respondJSONStatus(w, http.StatusAccepted, SubmitOrderResponse{Status: "accepted"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopping {
		respondError(w, http.StatusServiceUnavailable, "pipeline stopping", "shutdown already requested")
		return
	}
	if err := s.pipeline.Shutdown(r.Context()); err != nil {
		s.respondSendError(w, err)
		return
	}
	s.stopping = true
	s.logger.Infow("shutdown_requested", "remote", r.RemoteAddr)
	respondJSONStatus(w, http.StatusAccepted, SubmitOrderResponse{Status: "accepted"})
}

func (s *Server) respondSendError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrGatewayChannelClosed) {
		respondError(w, http.StatusServiceUnavailable, "pipeline stopped", err.Error())
		return
	}
	// Client went away while blocked on a full inbox.
	respondError(w, http.StatusServiceUnavailable, "submit aborted", err.Error())
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.pipeline.Done():
	default:
		respondError(w, http.StatusConflict, "pipeline running", "summary is available after shutdown")
		return
	}

	rep, err := s.pipeline.Wait()
	resp := SummaryResponse{
		TotalVolume:   rep.Summary.TotalVolume,
		TradeCount:    rep.Summary.TradeCount,
		RejectedCount: rep.Summary.RejectedCount,
		LastPrice:     rep.Summary.LastPrice,
		Digest:        rep.Summary.Digest.Hex(),
		Bids:          toLevels(rep.Bids),
		Asks:          toLevels(rep.Asks),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.hub.RecentTrades())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	select {
	case <-s.pipeline.Done():
		status = "stopped"
	default:
	}
	respondJSON(w, map[string]string{"status": status})
}

// ==============================
// Helper Functions
// ==============================

func toLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, level := range levels {
		out[i] = PriceLevel{Price: level.Price, Size: level.Qty}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
