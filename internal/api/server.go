package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/models"
)

// Submitter executes signed transactions
type Submitter interface {
	Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
}

// AccountReader reads committed account state
type AccountReader interface {
	Account(ctx context.Context, addr address.Address) (models.Account, bool, error)
}

// HealthChecker reports whether the account store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Faucet credits wallets outside any program
type Faucet interface {
	Airdrop(ctx context.Context, to address.Address, lamports uint64) (models.Account, error)
}

// Options configure the API server
type Options struct {
	Port          int
	MarketplaceID address.Address // Program id offering and listing addresses derive from
	Faucet        Faucet          // POST /airdrop is registered only when set
}

// Server represents the HTTP API server
// Provides endpoints for transaction submission, account reads, health and metrics
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	opts       Options
	submitter  Submitter
	accounts   AccountReader
	health     HealthChecker
	now        func() time.Time
}

// NewServer creates a new API server instance
func NewServer(opts Options, submitter Submitter, accounts AccountReader, health HealthChecker) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", opts.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:       mux,
		opts:      opts,
		submitter: submitter,
		accounts:  accounts,
		health:    health,
		now:       time.Now,
	}

	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.handleMetrics())

	// Ledger endpoints
	s.mux.HandleFunc("POST /transactions", s.handleSubmitTransaction)
	s.mux.HandleFunc("GET /accounts/{address}", s.handleGetAccount)
	s.mux.HandleFunc("GET /offerings/{vendor}/{name}", s.handleGetOffering)
	s.mux.HandleFunc("GET /listings/{asset}/{seller}", s.handleGetListing)

	if s.opts.Faucet != nil {
		s.mux.HandleFunc("POST /airdrop", s.handleAirdrop)
	}
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.opts.Port,
			"airdrop", s.opts.Faucet != nil,
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
