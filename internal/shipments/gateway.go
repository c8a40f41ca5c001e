// Package shipments provides the pass-through gateway for shipment creation,
// label purchase, and the transaction lifecycle.
package shipments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const component = "shipments"

// Validation errors, raised before any remote call.
var (
	ErrMissingFromAddress = errors.New("from address cannot be empty")
	ErrMissingToAddress   = errors.New("to address cannot be empty")
	ErrMissingParcel      = errors.New("parcel cannot be empty")
	ErrEmptyRateID        = errors.New("rate id cannot be empty")
	ErrEmptyTransactionID = errors.New("transaction id cannot be empty")
	ErrEmptyAddressID     = errors.New("address id cannot be empty")
)

// Options are caller-supplied shipment options, merged over the computed
// defaults of synchronous processing and a single parcel.
type Options struct {
	Async           *bool
	CarrierAccounts []string
	Extra           map[string]any
}

// Config holds gateway configuration.
type Config struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Gateway wraps the Shippo shipment, transaction, and address operations with
// input validation and error wrapping.
type Gateway struct {
	api     shippo.APIClient
	store   cache.Store
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// New creates a gateway with its collaborators passed in explicitly.
func New(api shippo.APIClient, store cache.Store, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Gateway {
	return &Gateway{
		api:     api,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateShipment creates a shipment from the given addresses and parcel.
func (g *Gateway) CreateShipment(ctx context.Context, from, to shippo.Address, parcel shippo.Parcel, opts Options) (*shippo.Shipment, error) {
	if from.Empty() {
		return nil, ErrMissingFromAddress
	}
	if to.Empty() {
		return nil, ErrMissingToAddress
	}
	if parcel == (shippo.Parcel{}) {
		return nil, ErrMissingParcel
	}

	req := &shippo.ShipmentRequest{
		AddressFrom:     from,
		AddressTo:       to,
		Parcels:         []shippo.Parcel{parcel},
		Async:           false,
		CarrierAccounts: opts.CarrierAccounts,
		Extra:           opts.Extra,
	}
	if opts.Async != nil {
		req.Async = *opts.Async
	}

	shipment, err := g.api.CreateShipment(ctx, req)
	if err != nil {
		g.metrics.RecordRemoteError("create_shipment")
		return nil, fmt.Errorf("creating shipment: %w", err)
	}
	return shipment, nil
}

// GetShipment retrieves a shipment by id.
func (g *Gateway) GetShipment(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
	shipment, err := g.api.GetShipment(ctx, shipmentID)
	if err != nil {
		g.metrics.RecordRemoteError("get_shipment")
		return nil, fmt.Errorf("retrieving shipment: %w", err)
	}
	return shipment, nil
}

// PurchaseLabel buys a PDF shipping label against a rate, synchronously.
func (g *Gateway) PurchaseLabel(ctx context.Context, rateID string) (*shippo.Transaction, error) {
	if rateID == "" {
		return nil, ErrEmptyRateID
	}

	txn, err := g.api.CreateTransaction(ctx, &shippo.TransactionRequest{
		Rate:          rateID,
		LabelFileType: "PDF",
		Async:         false,
	})
	if err != nil {
		g.metrics.RecordRemoteError("create_transaction")
		return nil, fmt.Errorf("purchasing label: %w", err)
	}
	return txn, nil
}

// GetTransaction retrieves a label-purchase transaction by id.
func (g *Gateway) GetTransaction(ctx context.Context, transactionID string) (*shippo.Transaction, error) {
	if transactionID == "" {
		return nil, ErrEmptyTransactionID
	}

	txn, err := g.api.GetTransaction(ctx, transactionID)
	if err != nil {
		g.metrics.RecordRemoteError("get_transaction")
		return nil, fmt.Errorf("retrieving transaction: %w", err)
	}
	return txn, nil
}

// CancelTransaction requests cancellation of a purchased label. Cancellation
// is idempotent: a transaction already cancelled, or with a cancellation
// underway, is returned as-is without another remote refund request.
func (g *Gateway) CancelTransaction(ctx context.Context, transactionID string) (*shippo.Transaction, error) {
	txn, err := g.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if txn.Status.Cancelled() {
		g.logger.Info("transaction already cancelled",
			zap.String("transaction_id", transactionID),
			zap.String("status", string(txn.Status)),
		)
		return txn, nil
	}

	if _, err := g.api.RefundTransaction(ctx, transactionID); err != nil {
		g.metrics.RecordRemoteError("refund_transaction")
		return nil, fmt.Errorf("cancelling transaction: %w", err)
	}

	txn, err = g.api.GetTransaction(ctx, transactionID)
	if err != nil {
		g.metrics.RecordRemoteError("get_transaction")
		return nil, fmt.Errorf("cancelling transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions lists transactions, passing filters through verbatim.
func (g *Gateway) ListTransactions(ctx context.Context, filters map[string]string) ([]shippo.Transaction, error) {
	list, err := g.api.ListTransactions(ctx, filters)
	if err != nil {
		g.metrics.RecordRemoteError("list_transactions")
		return nil, fmt.Errorf("retrieving transactions: %w", err)
	}
	return list.Results, nil
}

// CreateAddress creates an address and caches it under its provider-issued
// id.
func (g *Gateway) CreateAddress(ctx context.Context, req *shippo.AddressRequest) (*shippo.Address, error) {
	addr, err := g.api.CreateAddress(ctx, req)
	if err != nil {
		g.metrics.RecordRemoteError("create_address")
		return nil, fmt.Errorf("creating address: %w", err)
	}

	if g.cfg.CacheEnabled && addr.ObjectID != "" {
		if err := g.store.Put(cache.AddressKey(addr.ObjectID), addr, g.cfg.CacheTTL); err != nil {
			g.logger.Warn("address cache write failed", zap.Error(err))
		}
	}
	return addr, nil
}

// GetAddress retrieves an address by id, read-through cached.
func (g *Gateway) GetAddress(ctx context.Context, addressID string) (*shippo.Address, error) {
	if addressID == "" {
		return nil, ErrEmptyAddressID
	}

	key := cache.AddressKey(addressID)
	if g.cfg.CacheEnabled {
		if value, ok := g.store.Get(key); ok {
			if addr, ok := value.(*shippo.Address); ok {
				g.metrics.RecordCacheHit(component)
				return addr, nil
			}
		}
		g.metrics.RecordCacheMiss(component)
	}

	addr, err := g.api.GetAddress(ctx, addressID)
	if err != nil {
		g.metrics.RecordRemoteError("get_address")
		return nil, fmt.Errorf("retrieving address: %w", err)
	}

	if g.cfg.CacheEnabled {
		if err := g.store.Put(key, addr, g.cfg.CacheTTL); err != nil {
			g.logger.Warn("address cache write failed", zap.Error(err))
		}
	}
	return addr, nil
}

// ValidateAddress runs carrier validation on a stored address.
func (g *Gateway) ValidateAddress(ctx context.Context, addressID string) (*shippo.Address, error) {
	if addressID == "" {
		return nil, ErrEmptyAddressID
	}

	addr, err := g.api.ValidateAddress(ctx, addressID)
	if err != nil {
		g.metrics.RecordRemoteError("validate_address")
		return nil, fmt.Errorf("validating address: %w", err)
	}
	return addr, nil
}
