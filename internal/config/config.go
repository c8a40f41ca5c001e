package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service. Values are read once at
// startup and treated as immutable afterwards.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Shippo API
	ShippoAPIKey   string        `envconfig:"SHIPPO_API_KEY"`
	ShippoBaseURL  string        `envconfig:"SHIPPO_BASE_URL" default:"https://api.goshippo.com"`
	ShippoUseMock  bool          `envconfig:"SHIPPO_USE_MOCK" default:"false"`
	RequestTimeout time.Duration `envconfig:"SHIPPO_REQUEST_TIMEOUT" default:"30s"`

	// Response cache. TTL is expressed in minutes at the configuration
	// boundary; default is 24 hours.
	CacheEnabled    bool `envconfig:"SHIPPO_CACHE_ENABLED" default:"true"`
	CacheTTLMinutes int  `envconfig:"SHIPPO_CACHE_TTL" default:"1440"`

	// Carriers loaded when a listing is requested without an explicit set.
	DefaultCarriers []string `envconfig:"SHIPPO_DEFAULT_CARRIERS" default:"usps,dhl"`

	// Display toggles
	ShowEstimatedDays bool `envconfig:"SHIPPO_SHOW_ESTIMATED_DAYS" default:"true"`
	ShowCarrierLogo   bool `envconfig:"SHIPPO_SHOW_CARRIER_LOGO" default:"true"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shippo-bridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("cache.enabled", c.CacheEnabled),
		attribute.Int("cache.ttl_minutes", c.CacheTTLMinutes),
		attribute.StringSlice("carriers.default", c.DefaultCarriers),
	}
}
