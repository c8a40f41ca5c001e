package shippo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnListCarrierAccounts func(ctx context.Context, params CarrierAccountListParams) (*CarrierAccountList, error)
	OnCreateShipment      func(ctx context.Context, req *ShipmentRequest) (*Shipment, error)
	OnGetShipment         func(ctx context.Context, shipmentID string) (*Shipment, error)
	OnGetRate             func(ctx context.Context, rateID string) (*Rate, error)
	OnCreateTransaction   func(ctx context.Context, req *TransactionRequest) (*Transaction, error)
	OnGetTransaction      func(ctx context.Context, transactionID string) (*Transaction, error)
	OnListTransactions    func(ctx context.Context, filters map[string]string) (*TransactionList, error)
	OnRefundTransaction   func(ctx context.Context, transactionID string) (*Refund, error)
	OnCreateAddress       func(ctx context.Context, req *AddressRequest) (*Address, error)
	OnGetAddress          func(ctx context.Context, addressID string) (*Address, error)
	OnValidateAddress     func(ctx context.Context, addressID string) (*Address, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{
			StatusCode: 500,
			Messages:   []Message{{Source: "Shippo", Text: "Simulated API error"}},
		}
	}
	return nil
}

// ListCarrierAccounts returns mock carrier accounts for the requested carrier.
func (m *MockAPIClient) ListCarrierAccounts(ctx context.Context, params CarrierAccountListParams) (*CarrierAccountList, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListCarrierAccounts != nil {
		return m.OnListCarrierAccounts(ctx, params)
	}

	account := CarrierAccount{
		ObjectID:  "ca-" + uuid.New().String()[:8],
		Carrier:   params.Carrier,
		AccountID: "shippo_" + params.Carrier + "_account",
		Active:    true,
	}

	if params.ServiceLevels {
		switch params.Carrier {
		case "dhl":
			account.ServiceLevels = []CarrierServiceLevel{
				{Token: "dhl_express", Name: "DHL Worldwide Express", EstimatedDays: intPtr(3)},
				{Token: "dhl_express_easy", Name: "DHL Express Easy", EstimatedDays: intPtr(4)},
			}
		default:
			account.ServiceLevels = []CarrierServiceLevel{
				{Token: params.Carrier + "_priority", Name: "Priority Mail", EstimatedDays: intPtr(2)},
				{Token: params.Carrier + "_express", Name: "Priority Mail Express", EstimatedDays: intPtr(1)},
				{Token: params.Carrier + "_priority_mail_international", Name: "Priority Mail International", EstimatedDays: intPtr(8)},
			}
		}
	}

	return &CarrierAccountList{Results: []CarrierAccount{account}}, nil
}

// CreateShipment returns a mock shipment with computed rates.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*Shipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	return &Shipment{
		ObjectID:    "shipment-" + uuid.New().String()[:8],
		ObjectState: ObjectStateValid,
		Status:      ShipmentSuccess,
		AddressFrom: req.AddressFrom,
		AddressTo:   req.AddressTo,
		Parcels:     req.Parcels,
		Rates:       mockRates(),
	}, nil
}

// GetShipment returns a mock shipment with computed rates.
func (m *MockAPIClient) GetShipment(ctx context.Context, shipmentID string) (*Shipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetShipment != nil {
		return m.OnGetShipment(ctx, shipmentID)
	}

	return &Shipment{
		ObjectID:    shipmentID,
		ObjectState: ObjectStateValid,
		Status:      ShipmentSuccess,
		Rates:       mockRates(),
	}, nil
}

// GetRate returns a mock rate.
func (m *MockAPIClient) GetRate(ctx context.Context, rateID string) (*Rate, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetRate != nil {
		return m.OnGetRate(ctx, rateID)
	}

	rate := mockRates()[0]
	rate.ObjectID = rateID
	return &rate, nil
}

// CreateTransaction returns a mock successful label purchase.
func (m *MockAPIClient) CreateTransaction(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateTransaction != nil {
		return m.OnCreateTransaction(ctx, req)
	}

	return &Transaction{
		ObjectID:            "txn-" + uuid.New().String()[:8],
		Status:              TransactionSuccess,
		Rate:                req.Rate,
		LabelFileType:       req.LabelFileType,
		LabelURL:            "https://shippo-delivery.s3.amazonaws.com/label-" + uuid.New().String()[:8] + ".pdf",
		TrackingNumber:      "9205590164917312751089",
		TrackingURLProvider: "https://tools.usps.com/go/TrackConfirmAction",
	}, nil
}

// GetTransaction returns a mock transaction.
func (m *MockAPIClient) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetTransaction != nil {
		return m.OnGetTransaction(ctx, transactionID)
	}

	return &Transaction{
		ObjectID:       transactionID,
		Status:         TransactionSuccess,
		Rate:           "rate-" + uuid.New().String()[:8],
		LabelFileType:  "PDF",
		LabelURL:       "https://shippo-delivery.s3.amazonaws.com/label-" + transactionID + ".pdf",
		TrackingNumber: "9205590164917312751089",
	}, nil
}

// ListTransactions returns a mock transaction listing.
func (m *MockAPIClient) ListTransactions(ctx context.Context, filters map[string]string) (*TransactionList, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListTransactions != nil {
		return m.OnListTransactions(ctx, filters)
	}

	txn, _ := m.GetTransaction(ctx, "txn-"+uuid.New().String()[:8])
	return &TransactionList{Results: []Transaction{*txn}}, nil
}

// RefundTransaction returns a mock queued refund.
func (m *MockAPIClient) RefundTransaction(ctx context.Context, transactionID string) (*Refund, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnRefundTransaction != nil {
		return m.OnRefundTransaction(ctx, transactionID)
	}

	return &Refund{
		ObjectID:    "refund-" + uuid.New().String()[:8],
		Transaction: transactionID,
		Status:      "QUEUED",
	}, nil
}

// CreateAddress returns a mock created address.
func (m *MockAPIClient) CreateAddress(ctx context.Context, req *AddressRequest) (*Address, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateAddress != nil {
		return m.OnCreateAddress(ctx, req)
	}

	return &Address{
		ObjectID:     "addr-" + uuid.New().String()[:8],
		ObjectState:  ObjectStateValid,
		Name:         req.Name,
		Organization: req.Organization,
		Street1:      req.Street1,
		Street2:      req.Street2,
		City:         req.City,
		State:        req.State,
		Zip:          req.Zip,
		Country:      req.Country,
		IsComplete:   true,
	}, nil
}

// GetAddress returns a mock address.
func (m *MockAPIClient) GetAddress(ctx context.Context, addressID string) (*Address, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetAddress != nil {
		return m.OnGetAddress(ctx, addressID)
	}

	return &Address{
		ObjectID:    addressID,
		ObjectState: ObjectStateValid,
		Name:        "Shawn Ippotle",
		Street1:     "215 Clayton St.",
		City:        "San Francisco",
		State:       "CA",
		Zip:         "94117",
		Country:     "US",
		IsComplete:  true,
	}, nil
}

// ValidateAddress returns a mock validated address.
func (m *MockAPIClient) ValidateAddress(ctx context.Context, addressID string) (*Address, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnValidateAddress != nil {
		return m.OnValidateAddress(ctx, addressID)
	}

	addr, _ := m.GetAddress(ctx, addressID)
	addr.Messages = []Message{{Source: "USPS", Code: "Verified", Text: "Address validated"}}
	return addr, nil
}

func mockRates() []Rate {
	return []Rate{
		{
			ObjectID:         "rate-" + uuid.New().String()[:8],
			Provider:         "usps",
			ProviderImage75:  "https://shippo-static-v2.s3.amazonaws.com/providers/75/USPS.png",
			ProviderImage200: "https://shippo-static-v2.s3.amazonaws.com/providers/200/USPS.png",
			ServiceLevel:     ServiceLevel{Token: "usps_priority", Name: "Priority Mail"},
			Amount:           5.50,
			Currency:         "USD",
			EstimatedDays:    2,
			DurationTerms:    "Delivery within 1, 2, or 3 days based on where your package started and where it's being sent.",
		},
		{
			ObjectID:         "rate-" + uuid.New().String()[:8],
			Provider:         "usps",
			ProviderImage75:  "https://shippo-static-v2.s3.amazonaws.com/providers/75/USPS.png",
			ProviderImage200: "https://shippo-static-v2.s3.amazonaws.com/providers/200/USPS.png",
			ServiceLevel:     ServiceLevel{Token: "usps_express", Name: "Priority Mail Express"},
			Amount:           26.35,
			Currency:         "USD",
			EstimatedDays:    1,
			DurationTerms:    "Overnight delivery to most U.S. locations.",
		},
		{
			ObjectID:         "rate-" + uuid.New().String()[:8],
			Provider:         "dhl",
			ProviderImage75:  "https://shippo-static-v2.s3.amazonaws.com/providers/75/DHL.png",
			ProviderImage200: "https://shippo-static-v2.s3.amazonaws.com/providers/200/DHL.png",
			ServiceLevel:     ServiceLevel{Token: "dhl_express", Name: "DHL Worldwide Express"},
			Amount:           45.10,
			Currency:         "USD",
			EstimatedDays:    3,
			DurationTerms:    "Time-definite international delivery.",
		},
	}
}

func intPtr(v int) *int { return &v }

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
