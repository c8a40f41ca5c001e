package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farmtoyou/shippo-go/internal/carriers"
	"github.com/farmtoyou/shippo-go/internal/rates"
	"github.com/farmtoyou/shippo-go/internal/server"
	"github.com/farmtoyou/shippo-go/internal/shipments"
	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, mockAPI *shippo.MockAPIClient) http.Handler {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	store := cache.NewMemoryStore()

	catalog := carriers.New(mockAPI, store, carriers.Config{
		CacheEnabled:      true,
		CacheTTL:          time.Minute,
		DefaultCarriers:   []string{"usps", "dhl"},
		ShowCarrierLogo:   true,
		ShowEstimatedDays: true,
	}, logger, metrics)
	rateService := rates.New(mockAPI, store, rates.Config{CacheEnabled: true, CacheTTL: time.Minute}, logger, metrics)
	gateway := shipments.New(mockAPI, store, shipments.Config{CacheEnabled: true, CacheTTL: time.Minute}, logger, metrics)

	srv := server.New(server.Config{Port: 8080}, catalog, rateService, gateway, logger, metrics, registry)
	return srv.Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListCarriers(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/carriers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	results, ok := resp["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 2, "default carriers are usps and dhl")
}

func TestServer_ListCarriers_ExplicitSet(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/carriers?carriers=usps", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	results, ok := resp["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)

	account, ok := results[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "usps", account["carrier"])
	assert.Equal(t, "USPS", account["carrier_name"])
}

func TestServer_ListCarriers_UpstreamFailure(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	handler := newTestHandler(t, mockAPI)

	rec := doRequest(t, handler, http.MethodGet, "/v1/carriers", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeBody(t, rec)
	assert.Contains(t, resp["error"], "fetching carrier service levels")
}

func TestServer_CarriersSelect(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/carriers/select?group_by=type", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Contains(t, resp, "Domestic")
	assert.Contains(t, resp, "International")
}

func TestServer_GetServiceLevel(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/service_levels/usps_priority", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, "Priority Mail", resp["name"])
}

func TestServer_GetServiceLevel_NotFound(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/service_levels/fedex_overnight", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateShipment(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	body := `{
		"address_from": {"name": "A", "street1": "215 Clayton St.", "city": "San Francisco", "state": "CA", "zip": "94117", "country": "US"},
		"address_to": {"name": "B", "street1": "1 Hacker Way", "city": "Menlo Park", "state": "CA", "zip": "94025", "country": "US"},
		"parcel": {"length": "10", "width": "8", "height": "4", "distance_unit": "in", "weight": "2", "mass_unit": "lb"}
	}`
	rec := doRequest(t, handler, http.MethodPost, "/v1/shipments", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody(t, rec)
	assert.NotEmpty(t, resp["object_id"])
	assert.NotEmpty(t, resp["rates"])
}

func TestServer_CreateShipment_MissingAddress(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	body := `{"parcel": {"length": "10", "width": "8", "height": "4", "distance_unit": "in", "weight": "2", "mass_unit": "lb"}}`
	rec := doRequest(t, handler, http.MethodPost, "/v1/shipments", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateShipment_InvalidJSON(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodPost, "/v1/shipments", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody(t, rec)
	assert.Contains(t, resp["error"], "invalid JSON")
}

func TestServer_GetRates(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/shipments/shipment-1/rates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	rateList, ok := resp["rates"].([]any)
	require.True(t, ok)
	assert.Len(t, rateList, 3)
}

func TestServer_GetRates_QueryParamsBecomeFilters(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/shipments/shipment-1/rates?provider=dhl", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	rateList, ok := resp["rates"].([]any)
	require.True(t, ok)
	require.Len(t, rateList, 1)

	rate, ok := rateList[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dhl", rate["provider"])
}

func TestServer_PreviewRates(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	body := `{
		"address_from": {"street1": "215 Clayton St.", "city": "San Francisco", "zip": "94117", "country": "US"},
		"address_to": {"street1": "1 Hacker Way", "city": "Menlo Park", "zip": "94025", "country": "US"},
		"parcel": {"length": "10", "width": "8", "height": "4", "distance_unit": "in", "weight": "2", "mass_unit": "lb"}
	}`
	rec := doRequest(t, handler, http.MethodPost, "/v1/rates/preview", body)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.NotEmpty(t, resp["rates"])
}

func TestServer_PurchaseLabel(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodPost, "/v1/labels", `{"rate_id": "rate-123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, string(shippo.TransactionSuccess), resp["status"])
	assert.NotEmpty(t, resp["label_url"])
}

func TestServer_PurchaseLabel_MissingRateID(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodPost, "/v1/labels", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CancelTransaction(t *testing.T) {
	mockAPI := shippo.NewMockAPIClient()
	mockAPI.OnGetTransaction = func(ctx context.Context, transactionID string) (*shippo.Transaction, error) {
		return &shippo.Transaction{ObjectID: transactionID, Status: shippo.TransactionRefunded}, nil
	}
	handler := newTestHandler(t, mockAPI)

	rec := doRequest(t, handler, http.MethodPost, "/v1/transactions/txn-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, string(shippo.TransactionRefunded), resp["status"])
}

func TestServer_GetAddress(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/addresses/addr-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, "addr-1", resp["object_id"])
}

func TestServer_ValidateAddress(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/addresses/addr-1/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.NotEmpty(t, resp["messages"])
}

func TestServer_ClearCache(t *testing.T) {
	calls := 0
	mockAPI := shippo.NewMockAPIClient()
	inner := shippo.NewMockAPIClient()
	mockAPI.OnListCarrierAccounts = func(ctx context.Context, params shippo.CarrierAccountListParams) (*shippo.CarrierAccountList, error) {
		calls++
		return inner.ListCarrierAccounts(ctx, params)
	}
	handler := newTestHandler(t, mockAPI)

	doRequest(t, handler, http.MethodGet, "/v1/carriers?carriers=usps", "")
	doRequest(t, handler, http.MethodGet, "/v1/carriers?carriers=usps", "")
	assert.Equal(t, 1, calls)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cache/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)

	doRequest(t, handler, http.MethodGet, "/v1/carriers?carriers=usps", "")
	assert.Equal(t, 2, calls, "cleared catalog entries must be fetched again")
}

func TestServer_UnknownRoute(t *testing.T) {
	handler := newTestHandler(t, shippo.NewMockAPIClient())

	rec := doRequest(t, handler, http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
