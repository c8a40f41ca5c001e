package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the production Shippo API endpoint.
const DefaultBaseURL = "https://api.goshippo.com"

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	tracer     trace.Tracer
}

// HTTPAPIClientConfig holds configuration for the HTTP client. A nil Tracer
// disables span creation.
type HTTPAPIClientConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Tracer   trace.Tracer
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:  baseURL,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer: cfg.Tracer,
	}
}

// ListCarrierAccounts lists carrier accounts from the Shippo API.
// GET /carrier_accounts?carrier={code}&service_levels={bool}
func (c *HTTPAPIClient) ListCarrierAccounts(ctx context.Context, params CarrierAccountListParams) (*CarrierAccountList, error) {
	query := url.Values{}
	if params.Carrier != "" {
		query.Set("carrier", params.Carrier)
	}
	query.Set("service_levels", strconv.FormatBool(params.ServiceLevels))

	var result CarrierAccountList
	if err := c.do(ctx, http.MethodGet, "/carrier_accounts/?"+query.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateShipment creates a shipment via the Shippo API.
// POST /shipments
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*Shipment, error) {
	var result Shipment
	if err := c.do(ctx, http.MethodPost, "/shipments/", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetShipment retrieves a shipment by id.
// GET /shipments/{shipment_id}
func (c *HTTPAPIClient) GetShipment(ctx context.Context, shipmentID string) (*Shipment, error) {
	var result Shipment
	if err := c.do(ctx, http.MethodGet, "/shipments/"+url.PathEscape(shipmentID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRate retrieves a single rate by id.
// GET /rates/{rate_id}
func (c *HTTPAPIClient) GetRate(ctx context.Context, rateID string) (*Rate, error) {
	var result Rate
	if err := c.do(ctx, http.MethodGet, "/rates/"+url.PathEscape(rateID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTransaction purchases a label via the Shippo API.
// POST /transactions
func (c *HTTPAPIClient) CreateTransaction(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
	var result Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions/", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction retrieves a transaction by id.
// GET /transactions/{transaction_id}
func (c *HTTPAPIClient) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	var result Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(transactionID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTransactions lists transactions, passing filters through verbatim.
// GET /transactions
func (c *HTTPAPIClient) ListTransactions(ctx context.Context, filters map[string]string) (*TransactionList, error) {
	path := "/transactions/"
	if len(filters) > 0 {
		query := url.Values{}
		for key, value := range filters {
			query.Set(key, value)
		}
		path += "?" + query.Encode()
	}

	var result TransactionList
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefundTransaction requests cancellation of a purchased label.
// POST /refunds
func (c *HTTPAPIClient) RefundTransaction(ctx context.Context, transactionID string) (*Refund, error) {
	payload := map[string]string{"transaction": transactionID}

	var result Refund
	if err := c.do(ctx, http.MethodPost, "/refunds/", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateAddress creates an address object.
// POST /addresses
func (c *HTTPAPIClient) CreateAddress(ctx context.Context, req *AddressRequest) (*Address, error) {
	var result Address
	if err := c.do(ctx, http.MethodPost, "/addresses/", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAddress retrieves an address by id.
// GET /addresses/{address_id}
func (c *HTTPAPIClient) GetAddress(ctx context.Context, addressID string) (*Address, error) {
	var result Address
	if err := c.do(ctx, http.MethodGet, "/addresses/"+url.PathEscape(addressID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateAddress runs carrier validation on a stored address.
// GET /addresses/{address_id}/validate
func (c *HTTPAPIClient) ValidateAddress(ctx context.Context, addressID string) (*Address, error) {
	var result Address
	if err := c.do(ctx, http.MethodGet, "/addresses/"+url.PathEscape(addressID)+"/validate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do performs an HTTP request with proper headers and authentication and
// decodes the JSON response into out. With a tracer configured, each request
// runs inside a client span.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.tracer == nil {
		return c.roundTrip(ctx, method, path, body, out)
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := c.roundTrip(ctx, method, path, body, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *HTTPAPIClient) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "ShippoToken "+c.apiToken)
	req.Header.Set("User-Agent", "shippo-go/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err == nil && (apiErr.Detail != "" || len(apiErr.Messages) > 0) {
		return apiErr
	}

	// Some endpoints return field-level errors as a flat object.
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		for _, value := range fields {
			return &APIError{
				StatusCode: resp.StatusCode,
				Detail:     fmt.Sprintf("%v", value),
			}
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Detail:     string(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
