package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace/internal/address"
	"marketplace/internal/ledger"
	"marketplace/internal/models"
	"marketplace/internal/pipeline"
	"marketplace/internal/program"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"GET /":                          "This page - Service information",
		"GET /health":                    "Health check endpoint",
		"GET /metrics":                   "Prometheus metrics for monitoring",
		"POST /transactions":             "Submit a signed transaction, returns its receipt",
		"GET /accounts/{address}":        "Get an account with its decoded record",
		"GET /offerings/{vendor}/{name}": "Get a service offering by vendor and name",
		"GET /listings/{asset}/{seller}": "Get the resale listing of an asset",
	}
	if s.opts.Faucet != nil {
		endpoints["POST /airdrop"] = "Credit a wallet (development only)"
	}

	info := map[string]interface{}{
		"service":     "Service Marketplace",
		"version":     "1.0.0",
		"description": "Peer-to-peer service marketplace ledger",
		"marketplace": s.opts.MarketplaceID,
		"endpoints":   endpoints,
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Pings the account store
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		slog.Warn("Health check failed", "error", err)
		s.sendError(w, "Account store unhealthy", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"service":   "service-marketplace",
	}
	s.sendJSON(w, http.StatusOK, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

// handleSubmitTransaction runs a signed transaction through the pipeline
// POST /transactions
// 200 with the receipt on success, 422 with the receipt when a program
// rejected it, 503 when the pipeline is not accepting work
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx ledger.Transaction
	if err := s.decodeBody(w, r, &tx); err != nil {
		s.sendError(w, "Invalid transaction: "+err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.submitter.Submit(r.Context(), &tx)
	if receipt == nil {
		switch {
		case errors.Is(err, pipeline.ErrStopped):
			s.sendError(w, "Pipeline is not accepting transactions", http.StatusServiceUnavailable)
		case r.Context().Err() != nil:
			s.sendError(w, "Request cancelled", http.StatusServiceUnavailable)
		default:
			slog.Error("Failed to submit transaction", "tx", tx.ID(), "error", err)
			s.sendError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
		if receipt.ErrorKind == program.KindInternal {
			slog.Error("Transaction failed internally", "tx", receipt.TxID, "error", err)
			status = http.StatusInternalServerError
		}
	}
	s.sendJSON(w, status, receipt)
}

// handleGetAccount returns one account with its decoded record
// GET /accounts/{address}
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}

	acct, found := s.lookup(w, r, addr)
	if !found {
		return
	}

	response := models.AccountResponse{
		Address:    acct.Address,
		Owner:      acct.Owner,
		Lamports:   acct.Lamports,
		SOL:        LamportsToSOL(acct.Lamports),
		Size:       len(acct.Data),
		RecordType: acct.RecordType(),
	}
	if response.RecordType != "" {
		record, err := models.Decode(acct)
		if err != nil {
			slog.Warn("Failed to decode account record", "address", addr, "error", err)
		} else {
			response.Record = record
		}
	}

	s.sendJSON(w, http.StatusOK, response)
}

// handleGetOffering returns an offering with its sale state
// GET /offerings/{vendor}/{name}
func (s *Server) handleGetOffering(w http.ResponseWriter, r *http.Request) {
	vendor, ok := s.pathAddress(w, r, "vendor")
	if !ok {
		return
	}

	addr, err := address.OfferingAddress(s.opts.MarketplaceID, vendor, r.PathValue("name"))
	if err != nil {
		s.sendError(w, "Invalid offering name: "+err.Error(), http.StatusBadRequest)
		return
	}

	acct, found := s.lookup(w, r, addr)
	if !found {
		return
	}

	offering, err := models.UnmarshalServiceOffering(acct.Data)
	if err != nil {
		s.sendError(w, "Account is not a service offering", http.StatusNotFound)
		return
	}

	now := s.now().Unix()
	s.sendJSON(w, http.StatusOK, models.OfferingResponse{
		Address:     addr,
		Offering:    offering,
		PriceSOL:    LamportsToSOL(offering.SolPrice),
		Remaining:   offering.Remaining(),
		Purchasable: offering.IsPurchasable(now),
	})
}

// handleGetListing returns the listing of an asset by its seller
// GET /listings/{asset}/{seller}
func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.pathAddress(w, r, "asset")
	if !ok {
		return
	}
	seller, ok := s.pathAddress(w, r, "seller")
	if !ok {
		return
	}

	addr, err := address.ListingAddress(s.opts.MarketplaceID, asset, seller)
	if err != nil {
		s.sendError(w, "Invalid listing seeds: "+err.Error(), http.StatusBadRequest)
		return
	}

	acct, found := s.lookup(w, r, addr)
	if !found {
		return
	}

	listing, err := models.UnmarshalListing(acct.Data)
	if err != nil {
		s.sendError(w, "Account is not a listing", http.StatusNotFound)
		return
	}

	s.sendJSON(w, http.StatusOK, models.ListingResponse{
		Address:  addr,
		Listing:  listing,
		PriceSOL: LamportsToSOL(listing.Price),
		Expired:  listing.IsExpired(s.now().Unix()),
	})
}

// handleAirdrop credits a wallet
// POST /airdrop - only registered when the faucet is enabled
func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req models.AirdropRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.sendError(w, "Invalid airdrop request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address.IsZero() || req.Lamports == 0 {
		s.sendError(w, "Address and a positive lamports amount are required", http.StatusBadRequest)
		return
	}

	acct, err := s.opts.Faucet.Airdrop(r.Context(), req.Address, req.Lamports)
	if err != nil {
		var perr *program.Error
		if errors.As(err, &perr) && perr.Kind != program.KindInternal {
			s.sendError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Airdrop failed", "address", req.Address, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Debug("Airdrop served", "address", req.Address, "lamports", req.Lamports, "balance", acct.Lamports)
	s.sendJSON(w, http.StatusOK, models.AccountResponse{
		Address:  acct.Address,
		Owner:    acct.Owner,
		Lamports: acct.Lamports,
		SOL:      LamportsToSOL(acct.Lamports),
		Size:     len(acct.Data),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, name string) (address.Address, bool) {
	addr, err := address.Parse(r.PathValue(name))
	if err != nil {
		s.sendError(w, "Invalid "+name+" address", http.StatusBadRequest)
		return address.Address{}, false
	}
	return addr, true
}

// lookup writes 404 or 500 itself and reports whether acct is usable
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, addr address.Address) (models.Account, bool) {
	acct, found, err := s.accounts.Account(r.Context(), addr)
	if err != nil {
		slog.Error("Failed to read account", "address", addr, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return models.Account{}, false
	}
	if !found {
		s.sendError(w, "Account not found", http.StatusNotFound)
		return models.Account{}, false
	}
	return acct, true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
