// Package server exposes the shipping facade over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/farmtoyou/shippo-go/internal/carriers"
	"github.com/farmtoyou/shippo-go/internal/rates"
	"github.com/farmtoyou/shippo-go/internal/shipments"
	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Server is the HTTP server for the shipping bridge.
type Server struct {
	port     int
	catalog  *carriers.Catalog
	rates    *rates.Service
	gateway  *shipments.Gateway
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, catalog *carriers.Catalog, rateService *rates.Service, gateway *shipments.Gateway, logger *otelzap.Logger, metrics *telemetry.Metrics, registry *prometheus.Registry) *Server {
	return &Server{
		port:     cfg.Port,
		catalog:  catalog,
		rates:    rateService,
		gateway:  gateway,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
	}
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/carriers", s.instrument("list_carriers", s.handleListCarriers))
	mux.HandleFunc("GET /v1/carriers/select", s.instrument("carriers_select", s.handleCarriersSelect))
	mux.HandleFunc("GET /v1/service_levels/{code}", s.instrument("get_service_level", s.handleGetServiceLevel))

	mux.HandleFunc("POST /v1/shipments", s.instrument("create_shipment", s.handleCreateShipment))
	mux.HandleFunc("GET /v1/shipments/{id}", s.instrument("get_shipment", s.handleGetShipment))
	mux.HandleFunc("GET /v1/shipments/{id}/rates", s.instrument("get_rates", s.handleGetRates))
	mux.HandleFunc("POST /v1/rates/preview", s.instrument("preview_rates", s.handlePreviewRates))
	mux.HandleFunc("GET /v1/rates/{id}", s.instrument("get_rate", s.handleGetRate))

	mux.HandleFunc("POST /v1/labels", s.instrument("purchase_label", s.handlePurchaseLabel))
	mux.HandleFunc("GET /v1/transactions", s.instrument("list_transactions", s.handleListTransactions))
	mux.HandleFunc("GET /v1/transactions/{id}", s.instrument("get_transaction", s.handleGetTransaction))
	mux.HandleFunc("POST /v1/transactions/{id}/cancel", s.instrument("cancel_transaction", s.handleCancelTransaction))

	mux.HandleFunc("POST /v1/addresses", s.instrument("create_address", s.handleCreateAddress))
	mux.HandleFunc("GET /v1/addresses/{id}", s.instrument("get_address", s.handleGetAddress))
	mux.HandleFunc("GET /v1/addresses/{id}/validate", s.instrument("validate_address", s.handleValidateAddress))

	mux.HandleFunc("POST /v1/cache/clear", s.instrument("clear_cache", s.handleClearCache))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleListCarriers(w http.ResponseWriter, r *http.Request) {
	codes := splitParam(r.URL.Query().Get("carriers"))
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	accounts, err := s.catalog.ListCarriers(r.Context(), codes, refresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": accounts})
}

func (s *Server) handleCarriersSelect(w http.ResponseWriter, r *http.Request) {
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = carriers.GroupByCarrier
	}

	options, err := s.catalog.FormattedForSelect(r.Context(), groupBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, options)
}

func (s *Server) handleGetServiceLevel(w http.ResponseWriter, r *http.Request) {
	service, ok, err := s.catalog.ServiceLevel(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "service level not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, service)
}

type shipmentRequest struct {
	AddressFrom     shippo.Address `json:"address_from"`
	AddressTo       shippo.Address `json:"address_to"`
	Parcel          shippo.Parcel  `json:"parcel"`
	CarrierAccounts []string       `json:"carrier_accounts,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if !s.decode(w, r, &req) {
		return
	}

	shipment, err := s.gateway.CreateShipment(r.Context(), req.AddressFrom, req.AddressTo, req.Parcel, shipments.Options{
		CarrierAccounts: req.CarrierAccounts,
		Extra:           req.Extra,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, shipment)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	shipment, err := s.gateway.GetShipment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shipment)
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	refresh, _ := strconv.ParseBool(query.Get("refresh"))

	// Every query parameter other than refresh is a rate filter.
	filters := rates.Filters{}
	for key := range query {
		if key == "refresh" {
			continue
		}
		filters[key] = query.Get(key)
	}

	rateList, err := s.rates.GetRates(r.Context(), r.PathValue("id"), filters, refresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rates": rateList})
}

func (s *Server) handlePreviewRates(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if !s.decode(w, r, &req) {
		return
	}

	rateList, err := s.rates.PreviewRates(r.Context(), req.AddressFrom, req.AddressTo, req.Parcel, req.Extra)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rates": rateList})
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.rates.GetRate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handlePurchaseLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RateID string `json:"rate_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	txn, err := s.gateway.PurchaseLabel(r.Context(), req.RateID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filters := map[string]string{}
	for key := range r.URL.Query() {
		filters[key] = r.URL.Query().Get(key)
	}

	txns, err := s.gateway.ListTransactions(r.Context(), filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": txns})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.gateway.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.gateway.CancelTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var req shippo.AddressRequest
	if !s.decode(w, r, &req) {
		return
	}

	addr, err := s.gateway.CreateAddress(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, addr)
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.gateway.GetAddress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, addr)
}

func (s *Server) handleValidateAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.gateway.ValidateAddress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, addr)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.ClearCache(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.rates.ClearCache(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.RecordRequest(operation, strconv.Itoa(recorder.status), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

// errorStatus maps component errors to HTTP statuses: validation errors are
// the caller's fault, everything else surfaces as an upstream failure.
func errorStatus(err error) int {
	validation := []error{
		shipments.ErrMissingFromAddress,
		shipments.ErrMissingToAddress,
		shipments.ErrMissingParcel,
		shipments.ErrEmptyRateID,
		shipments.ErrEmptyTransactionID,
		shipments.ErrEmptyAddressID,
		rates.ErrEmptyShipmentID,
		rates.ErrEmptyRateID,
	}
	for _, v := range validation {
		if errors.Is(err, v) {
			return http.StatusBadRequest
		}
	}

	var apiErr *shippo.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func splitParam(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	return codes
}
