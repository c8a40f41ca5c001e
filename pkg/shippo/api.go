// Package shippo provides access to the Shippo shipping API.
package shippo

import (
	"context"
	"fmt"
)

// APIClient defines the interface for Shippo API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// ListCarrierAccounts lists carrier accounts, optionally filtered by
	// carrier code and optionally expanded with service levels.
	ListCarrierAccounts(ctx context.Context, params CarrierAccountListParams) (*CarrierAccountList, error)

	// CreateShipment creates a shipment; with Async=false the response
	// carries computed rates.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*Shipment, error)

	// GetShipment retrieves a shipment by id, including its rates.
	GetShipment(ctx context.Context, shipmentID string) (*Shipment, error)

	// GetRate retrieves a single rate by id.
	GetRate(ctx context.Context, rateID string) (*Rate, error)

	// CreateTransaction purchases a label against a rate.
	CreateTransaction(ctx context.Context, req *TransactionRequest) (*Transaction, error)

	// GetTransaction retrieves a label-purchase transaction by id.
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)

	// ListTransactions lists transactions; filters are passed through verbatim
	// as query parameters.
	ListTransactions(ctx context.Context, filters map[string]string) (*TransactionList, error)

	// RefundTransaction requests cancellation of a purchased label.
	RefundTransaction(ctx context.Context, transactionID string) (*Refund, error)

	// CreateAddress creates an address object.
	CreateAddress(ctx context.Context, req *AddressRequest) (*Address, error)

	// GetAddress retrieves an address by id.
	GetAddress(ctx context.Context, addressID string) (*Address, error)

	// ValidateAddress runs carrier validation on a stored address.
	ValidateAddress(ctx context.Context, addressID string) (*Address, error)
}

// ============================================================================
// API Request/Response Types (match Shippo REST API v1 structure)
// ============================================================================

// ObjectState represents the lifecycle state of a Shippo object.
type ObjectState string

const (
	ObjectStateValid ObjectState = "VALID"
	ObjectStateError ObjectState = "ERROR"
)

// TransactionStatus represents the status of a label-purchase transaction.
type TransactionStatus string

const (
	TransactionQueued        TransactionStatus = "QUEUED"
	TransactionWaiting       TransactionStatus = "WAITING"
	TransactionSuccess       TransactionStatus = "SUCCESS"
	TransactionError         TransactionStatus = "ERROR"
	TransactionRefunded      TransactionStatus = "REFUNDED"
	TransactionRefundPending TransactionStatus = "REFUNDPENDING"
)

// Cancelled reports whether the status indicates the label purchase has been
// cancelled or a cancellation is already underway.
func (s TransactionStatus) Cancelled() bool {
	return s == TransactionRefunded || s == TransactionRefundPending
}

// Terminal reports whether no further status changes are expected.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionSuccess || s == TransactionError || s == TransactionRefunded
}

// Message is a human-readable message attached to an API response.
type Message struct {
	Source string `json:"source,omitempty"`
	Code   string `json:"code,omitempty"`
	Text   string `json:"text"`
}

// Address represents a Shippo address object.
type Address struct {
	ObjectID     string      `json:"object_id,omitempty"`
	ObjectState  ObjectState `json:"object_state,omitempty"`
	Name         string      `json:"name,omitempty"`
	Organization string      `json:"organization,omitempty"`
	Street1      string      `json:"street1,omitempty"`
	Street2      string      `json:"street2,omitempty"`
	City         string      `json:"city,omitempty"`
	State        string      `json:"state,omitempty"`
	Zip          string      `json:"zip,omitempty"`
	Country      string      `json:"country,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Email        string      `json:"email,omitempty"`
	IsComplete   bool        `json:"is_complete,omitempty"`
	Messages     []Message   `json:"messages,omitempty"`
}

// Empty reports whether no address fields are set. Response-only annotations
// (messages, completeness) do not count as address content.
func (a Address) Empty() bool {
	return a.ObjectID == "" && a.Name == "" && a.Organization == "" &&
		a.Street1 == "" && a.Street2 == "" && a.City == "" &&
		a.State == "" && a.Zip == "" && a.Country == "" &&
		a.Phone == "" && a.Email == ""
}

// AddressRequest is the payload for creating an address.
type AddressRequest struct {
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Street1      string `json:"street1"`
	Street2      string `json:"street2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Validate     bool   `json:"validate,omitempty"`
}

// Parcel represents package dimensions and weight. Shippo encodes the
// numeric fields as strings on the wire.
type Parcel struct {
	ObjectID     string `json:"object_id,omitempty"`
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"` // "cm", "in", "mm", "ft"
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"` // "g", "kg", "lb", "oz"
}

// ServiceLevel identifies a carrier's shipping product.
type ServiceLevel struct {
	Token         string `json:"token"`
	Name          string `json:"name"`
	Terms         string `json:"terms,omitempty"`
	EstimatedDays *int   `json:"estimated_days,omitempty"`
}

// Rate represents a priced shipping offer for a shipment.
type Rate struct {
	ObjectID         string       `json:"object_id"`
	Provider         string       `json:"provider"`
	ProviderImage75  string       `json:"provider_image_75,omitempty"`
	ProviderImage200 string       `json:"provider_image_200,omitempty"`
	ServiceLevel     ServiceLevel `json:"servicelevel"`
	Amount           float64      `json:"amount,string"`
	Currency         string       `json:"currency"`
	EstimatedDays    int          `json:"estimated_days"`
	DurationTerms    string       `json:"duration_terms,omitempty"`
	Attributes       []string     `json:"attributes,omitempty"`
}

// ShipmentStatus represents the processing status of a shipment.
type ShipmentStatus string

const (
	ShipmentQueued  ShipmentStatus = "QUEUED"
	ShipmentWaiting ShipmentStatus = "WAITING"
	ShipmentSuccess ShipmentStatus = "SUCCESS"
	ShipmentError   ShipmentStatus = "ERROR"
)

// Shipment represents a Shippo shipment with its computed rates.
type Shipment struct {
	ObjectID    string         `json:"object_id"`
	ObjectState ObjectState    `json:"object_state,omitempty"`
	Status      ShipmentStatus `json:"status"`
	AddressFrom Address        `json:"address_from"`
	AddressTo   Address        `json:"address_to"`
	Parcels     []Parcel       `json:"parcels"`
	Rates       []Rate         `json:"rates,omitempty"`
	Messages    []Message      `json:"messages,omitempty"`
}

// ShipmentRequest is the payload for creating a shipment.
// POST /shipments
type ShipmentRequest struct {
	AddressFrom     Address        `json:"address_from"`
	AddressTo       Address        `json:"address_to"`
	Parcels         []Parcel       `json:"parcels"`
	Async           bool           `json:"async"`
	CarrierAccounts []string       `json:"carrier_accounts,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Transaction represents a label purchase.
type Transaction struct {
	ObjectID            string            `json:"object_id"`
	Status              TransactionStatus `json:"status"`
	Rate                string            `json:"rate"`
	LabelFileType       string            `json:"label_file_type,omitempty"`
	LabelURL            string            `json:"label_url,omitempty"`
	TrackingNumber      string            `json:"tracking_number,omitempty"`
	TrackingURLProvider string            `json:"tracking_url_provider,omitempty"`
	Messages            []Message         `json:"messages,omitempty"`
}

// TransactionRequest is the payload for purchasing a label.
// POST /transactions
type TransactionRequest struct {
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Async         bool   `json:"async"`
}

// Refund represents a label cancellation request.
// POST /refunds
type Refund struct {
	ObjectID    string `json:"object_id"`
	Transaction string `json:"transaction"`
	Status      string `json:"status"` // "QUEUED", "PENDING", "SUCCESS", "ERROR"
}

// CarrierServiceLevel is a service level as returned on a carrier account.
type CarrierServiceLevel struct {
	Token         string `json:"token"`
	Name          string `json:"name"`
	EstimatedDays *int   `json:"estimated_days,omitempty"`
}

// CarrierAccount represents a configured carrier account.
type CarrierAccount struct {
	ObjectID      string                `json:"object_id"`
	Carrier       string                `json:"carrier"`
	AccountID     string                `json:"account_id,omitempty"`
	Active        bool                  `json:"active"`
	ServiceLevels []CarrierServiceLevel `json:"service_levels,omitempty"`
}

// CarrierAccountList is the paged carrier account listing.
// GET /carrier_accounts
type CarrierAccountList struct {
	Results []CarrierAccount `json:"results"`
}

// CarrierAccountListParams filters the carrier account listing.
type CarrierAccountListParams struct {
	Carrier       string
	ServiceLevels bool
}

// TransactionList is the paged transaction listing.
// GET /transactions
type TransactionList struct {
	Results []Transaction `json:"results"`
}

// APIError represents an error response from the Shippo API.
type APIError struct {
	StatusCode int       `json:"-"`
	Detail     string    `json:"detail,omitempty"`
	Messages   []Message `json:"messages,omitempty"`
}

func (e *APIError) Error() string {
	if msg := e.FirstMessage(); msg != "" {
		return msg
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("shippo: HTTP %d", e.StatusCode)
}

// FirstMessage returns the first human-readable message, if any. Shippo
// failure responses carry a list of messages and callers surface the first.
func (e *APIError) FirstMessage() string {
	if len(e.Messages) > 0 {
		return e.Messages[0].Text
	}
	return ""
}

// FirstMessageText returns the first message text from a message list, or the
// fallback when the list is empty.
func FirstMessageText(messages []Message, fallback string) string {
	if len(messages) > 0 && messages[0].Text != "" {
		return messages[0].Text
	}
	return fallback
}
