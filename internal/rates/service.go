package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const component = "rates"

// Sentinel errors for rate lookups.
var (
	// ErrNoRates indicates the shipment carries no rates.
	ErrNoRates = errors.New("no rates available for this shipment")

	// ErrEmptyShipmentID indicates a rate lookup without a shipment id.
	ErrEmptyShipmentID = errors.New("shipment id cannot be empty")

	// ErrEmptyRateID indicates a rate lookup without a rate id.
	ErrEmptyRateID = errors.New("rate id cannot be empty")
)

// Config holds rate service configuration.
type Config struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Service resolves shipment-bound rates through the response cache.
type Service struct {
	api     shippo.APIClient
	store   cache.Store
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics

	mu          sync.Mutex
	writtenKeys map[string]struct{}
}

// New creates a rate service with its collaborators passed in explicitly.
func New(api shippo.APIClient, store cache.Store, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		api:         api,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		writtenKeys: make(map[string]struct{}),
	}
}

// GetRates fetches a shipment's rates, applies the field-equality filters,
// and returns them sorted ascending by amount with a stable order for ties.
// Results are cached under the shipment id and filter set; forceRefresh
// bypasses the cache read but still writes the fresh result back.
func (s *Service) GetRates(ctx context.Context, shipmentID string, filters Filters, forceRefresh bool) ([]shippo.Rate, error) {
	if shipmentID == "" {
		return nil, ErrEmptyShipmentID
	}

	key := cache.RatesKey(shipmentID, filters)

	if s.cfg.CacheEnabled && !forceRefresh {
		if value, ok := s.store.Get(key); ok {
			if cached, ok := value.([]shippo.Rate); ok {
				s.metrics.RecordCacheHit(component)
				return cached, nil
			}
		}
		s.metrics.RecordCacheMiss(component)
	}

	shipment, err := s.api.GetShipment(ctx, shipmentID)
	if err != nil {
		s.metrics.RecordRemoteError("get_shipment")
		return nil, fmt.Errorf("retrieving rates: %w", err)
	}
	if len(shipment.Rates) == 0 {
		return nil, fmt.Errorf("retrieving rates: %w", ErrNoRates)
	}

	filtered := Filter(shipment.Rates, filters)
	sorted := make([]shippo.Rate, len(filtered))
	copy(sorted, filtered)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount < sorted[j].Amount
	})

	s.put(key, sorted)
	return sorted, nil
}

// GetRate retrieves a single rate by id.
func (s *Service) GetRate(ctx context.Context, rateID string) (*shippo.Rate, error) {
	if rateID == "" {
		return nil, ErrEmptyRateID
	}

	rate, err := s.api.GetRate(ctx, rateID)
	if err != nil {
		s.metrics.RecordRemoteError("get_rate")
		return nil, fmt.Errorf("retrieving rate: %w", err)
	}
	return rate, nil
}

// PreviewRates computes rates for an unpersisted shipment by submitting the
// addresses and parcel as one synchronous composite request.
func (s *Service) PreviewRates(ctx context.Context, from, to shippo.Address, parcel shippo.Parcel, extra map[string]any) ([]shippo.Rate, error) {
	shipment, err := s.api.CreateShipment(ctx, &shippo.ShipmentRequest{
		AddressFrom: from,
		AddressTo:   to,
		Parcels:     []shippo.Parcel{parcel},
		Async:       false,
		Extra:       extra,
	})
	if err != nil {
		s.metrics.RecordRemoteError("create_shipment")
		return nil, fmt.Errorf("retrieving shipping rates: %w", err)
	}

	if shipment.ObjectState == shippo.ObjectStateError || shipment.Status == shippo.ShipmentError {
		return nil, fmt.Errorf("retrieving shipping rates: %s",
			shippo.FirstMessageText(shipment.Messages, "shipment is in an error state"))
	}

	return shipment.Rates, nil
}

// ClearCache forgets every rate cache entry this service has written. The
// store offers no pattern deletion, so keys are enumerated explicitly.
func (s *Service) ClearCache() error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.writtenKeys))
	for key := range s.writtenKeys {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	// A key leaves the registry only once the store has forgotten it, so a
	// failed clear can be retried without losing track of live entries.
	for _, key := range keys {
		if err := s.store.Forget(key); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.writtenKeys, key)
		s.mu.Unlock()
	}
	return nil
}

// put writes a rate listing to the cache and remembers the key for
// ClearCache. Cache failures degrade to a miss on the next read.
func (s *Service) put(key string, value []shippo.Rate) {
	if !s.cfg.CacheEnabled {
		return
	}
	if err := s.store.Put(key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.writtenKeys[key] = struct{}{}
	s.mu.Unlock()
}
