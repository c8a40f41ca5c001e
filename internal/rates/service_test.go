package rates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farmtoyou/shippo-go/internal/rates"
	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestService(mockAPI *shippo.MockAPIClient) *rates.Service {
	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	cfg := rates.Config{CacheEnabled: true, CacheTTL: time.Minute}
	return rates.New(mockAPI, cache.NewMemoryStore(), cfg, logger, metrics)
}

func TestService_GetRates_SortedByAmount(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	rateList, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	require.Len(t, rateList, 3)

	for i := 1; i < len(rateList); i++ {
		assert.LessOrEqual(t, rateList[i-1].Amount, rateList[i].Amount)
	}
}

func TestService_GetRates_StableSortOnTies(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		return &shippo.Shipment{
			ObjectID: shipmentID,
			Status:   shippo.ShipmentSuccess,
			Rates: []shippo.Rate{
				{ObjectID: "first", Amount: 7.25},
				{ObjectID: "second", Amount: 7.25},
				{ObjectID: "cheap", Amount: 3.10},
			},
		}, nil
	}
	service := newTestService(mockAPI)

	rateList, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	require.Len(t, rateList, 3)

	assert.Equal(t, "cheap", rateList[0].ObjectID)
	assert.Equal(t, "first", rateList[1].ObjectID, "ties keep original order")
	assert.Equal(t, "second", rateList[2].ObjectID)
}

func TestService_GetRates_Filtered(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	rateList, err := service.GetRates(context.Background(), "shipment-1", rates.Filters{"provider": "usps"}, false)
	require.NoError(t, err)
	require.Len(t, rateList, 2)
	for _, rate := range rateList {
		assert.Equal(t, "usps", rate.Provider)
	}
}

func TestService_GetRates_EmptyShipmentID(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	_, err := service.GetRates(context.Background(), "", nil, false)
	assert.ErrorIs(t, err, rates.ErrEmptyShipmentID)
}

func TestService_GetRates_NoRates(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		return &shippo.Shipment{ObjectID: shipmentID, Status: shippo.ShipmentSuccess}, nil
	}
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	assert.ErrorIs(t, err, rates.ErrNoRates)
}

func TestService_GetRates_RemoteFailure(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieving rates")
	assert.Contains(t, err.Error(), "Simulated API error")
}

func TestService_GetRates_CacheHit(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		calls++
		return inner.GetShipment(ctx, shipmentID)
	}
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	_, err = service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second lookup should be served from cache")
}

func TestService_GetRates_FilterSetKeysDiffer(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		calls++
		return inner.GetShipment(ctx, shipmentID)
	}
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	_, err = service.GetRates(context.Background(), "shipment-1", rates.Filters{"provider": "usps"}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "different filter sets cache under different keys")
}

func TestService_GetRates_ForceRefresh(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		calls++
		return inner.GetShipment(ctx, shipmentID)
	}
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	_, err = service.GetRates(context.Background(), "shipment-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// Refreshed result was written back.
	_, err = service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestService_ClearCache(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		calls++
		return inner.GetShipment(ctx, shipmentID)
	}
	service := newTestService(mockAPI)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	_, err = service.GetRates(context.Background(), "shipment-2", rates.Filters{"provider": "usps"}, false)
	require.NoError(t, err)

	require.NoError(t, service.ClearCache())

	_, err = service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "cleared keys must be fetched again")
}

func TestService_ClearCache_RetriesAfterForgetFailure(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnGetShipment = func(ctx context.Context, shipmentID string) (*shippo.Shipment, error) {
		calls++
		return inner.GetShipment(ctx, shipmentID)
	}
	store := &flakyStore{MemoryStore: cache.NewMemoryStore(), forgetFailures: 1}
	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	cfg := rates.Config{CacheEnabled: true, CacheTTL: time.Minute}
	service := rates.New(mockAPI, store, cfg, logger, metrics)

	_, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)

	require.Error(t, service.ClearCache())
	require.NoError(t, service.ClearCache(), "keys not yet forgotten stay registered for a retry")

	_, err = service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "the retried clear must forget the rates key")
}

// flakyStore fails the first forgetFailures Forget calls.
type flakyStore struct {
	*cache.MemoryStore
	forgetFailures int
}

func (s *flakyStore) Forget(key string) error {
	if s.forgetFailures > 0 {
		s.forgetFailures--
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Forget(key)
}

func TestService_GetRate(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	rate, err := service.GetRate(context.Background(), "rate-123")
	require.NoError(t, err)
	assert.Equal(t, "rate-123", rate.ObjectID)
}

func TestService_GetRate_EmptyID(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	_, err := service.GetRate(context.Background(), "")
	assert.ErrorIs(t, err, rates.ErrEmptyRateID)
}

func TestService_PreviewRates(t *testing.T) {
	service := newTestService(shippo.NewMockAPIClient())

	rateList, err := service.PreviewRates(context.Background(),
		shippo.Address{Street1: "215 Clayton St.", City: "San Francisco", Zip: "94117", Country: "US"},
		shippo.Address{Street1: "1 Hacker Way", City: "Menlo Park", Zip: "94025", Country: "US"},
		shippo.Parcel{Length: "10", Width: "8", Height: "4", DistanceUnit: "in", Weight: "2", MassUnit: "lb"},
		nil,
	)
	require.NoError(t, err)
	assert.NotEmpty(t, rateList)
}

func TestService_PreviewRates_ErrorStateSurfacesFirstMessage(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.OnCreateShipment = func(ctx context.Context, req *shippo.ShipmentRequest) (*shippo.Shipment, error) {
		return &shippo.Shipment{
			ObjectState: shippo.ObjectStateError,
			Status:      shippo.ShipmentError,
			Messages: []shippo.Message{
				{Source: "USPS", Text: "Destination zip is invalid"},
				{Source: "USPS", Text: "Second message"},
			},
		}, nil
	}
	service := newTestService(mockAPI)

	_, err := service.PreviewRates(context.Background(), shippo.Address{Street1: "a"}, shippo.Address{Street1: "b"}, shippo.Parcel{Length: "1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieving shipping rates")
	assert.Contains(t, err.Error(), "Destination zip is invalid")
	assert.NotContains(t, err.Error(), "Second message")
}

func TestService_RemoteSucceedsWhenCacheWriteFails(t *testing.T) {
	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	cfg := rates.Config{CacheEnabled: true, CacheTTL: time.Minute}
	service := rates.New(shippo.NewMockAPIClient(), failingStore{}, cfg, logger, metrics)

	rateList, err := service.GetRates(context.Background(), "shipment-1", nil, false)
	require.NoError(t, err, "cache failures must not block the remote call")
	assert.NotEmpty(t, rateList)
}

// failingStore always misses and rejects writes.
type failingStore struct{}

func (failingStore) Has(string) bool                      { return false }
func (failingStore) Get(string) (any, bool)               { return nil, false }
func (failingStore) Put(string, any, time.Duration) error { return errors.New("store unavailable") }
func (failingStore) Forget(string) error                  { return errors.New("store unavailable") }
