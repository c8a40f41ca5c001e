// Package carriers builds an enriched carrier catalog from Shippo carrier
// accounts and their service levels.
package carriers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const component = "carriers"

// ServiceLevel is a carrier shipping product enriched with display metadata.
type ServiceLevel struct {
	ServiceCode   string `json:"service_code"`
	Name          string `json:"name"`
	Carrier       string `json:"carrier"`
	Token         string `json:"token"`
	Description   string `json:"description"`
	IsDomestic    bool   `json:"is_domestic"`
	EstimatedDays *int   `json:"estimated_days,omitempty"`
}

// CarrierAccount is a carrier account enriched with display metadata and its
// ordered service levels.
type CarrierAccount struct {
	Carrier       string         `json:"carrier"`
	CarrierName   string         `json:"carrier_name"`
	ObjectID      string         `json:"object_id"`
	ServiceLevels []ServiceLevel `json:"service_levels"`
	LogoURLs      []string       `json:"logo_urls,omitempty"`
}

// Config holds catalog configuration.
type Config struct {
	CacheEnabled      bool
	CacheTTL          time.Duration
	DefaultCarriers   []string
	ShowCarrierLogo   bool
	ShowEstimatedDays bool
}

// Catalog fetches carrier accounts with service levels and exposes enriched,
// grouped views over them. Remote responses are cached read-through.
type Catalog struct {
	api     shippo.APIClient
	store   cache.Store
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics

	mu          sync.Mutex
	writtenKeys map[string]struct{}
}

// New creates a catalog with its collaborators passed in explicitly.
func New(api shippo.APIClient, store cache.Store, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Catalog {
	return &Catalog{
		api:         api,
		store:       store,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		writtenKeys: make(map[string]struct{}),
	}
}

// ListCarriers returns the enriched catalog for the requested carrier codes.
// An empty set falls back to the configured default carriers. One remote call
// is issued per carrier; results keep the requested order and any single
// failure aborts the whole aggregation.
func (c *Catalog) ListCarriers(ctx context.Context, codes []string, forceRefresh bool) ([]CarrierAccount, error) {
	codes = c.resolveCarriers(codes)
	key := cache.CarrierCatalogKey(codes)

	if c.cfg.CacheEnabled && !forceRefresh {
		if value, ok := c.store.Get(key); ok {
			if accounts, ok := value.([]CarrierAccount); ok {
				c.metrics.RecordCacheHit(component)
				return accounts, nil
			}
		}
		c.metrics.RecordCacheMiss(component)
	}

	raw, err := c.fetchAccounts(ctx, codes, true)
	if err != nil {
		return nil, fmt.Errorf("fetching carrier service levels: %w", err)
	}

	accounts := make([]CarrierAccount, 0, len(raw))
	for _, account := range raw {
		accounts = append(accounts, c.enrich(account))
	}

	c.put(key, accounts)
	return accounts, nil
}

// ListCarriersOnly returns the raw carrier accounts without service levels.
func (c *Catalog) ListCarriersOnly(ctx context.Context, codes []string, forceRefresh bool) ([]shippo.CarrierAccount, error) {
	codes = c.resolveCarriers(codes)
	key := cache.CarrierOnlyKey(codes)

	if c.cfg.CacheEnabled && !forceRefresh {
		if value, ok := c.store.Get(key); ok {
			if accounts, ok := value.([]shippo.CarrierAccount); ok {
				c.metrics.RecordCacheHit(component)
				return accounts, nil
			}
		}
		c.metrics.RecordCacheMiss(component)
	}

	accounts, err := c.fetchAccounts(ctx, codes, false)
	if err != nil {
		return nil, fmt.Errorf("fetching carriers: %w", err)
	}

	c.put(key, accounts)
	return accounts, nil
}

// ServiceLevel returns the first service level in the catalog whose code
// matches, or false when no carrier offers it.
func (c *Catalog) ServiceLevel(ctx context.Context, serviceCode string) (ServiceLevel, bool, error) {
	accounts, err := c.ListCarriers(ctx, nil, false)
	if err != nil {
		return ServiceLevel{}, false, err
	}

	for _, account := range accounts {
		for _, service := range account.ServiceLevels {
			if service.ServiceCode == serviceCode {
				return service, true, nil
			}
		}
	}
	return ServiceLevel{}, false, nil
}

// GroupBy values accepted by FormattedForSelect.
const (
	GroupByCarrier = "carrier"
	GroupByType    = "type"
)

// FormattedForSelect formats the catalog for select dropdowns. Grouping by
// carrier maps carrier display name to service code/name pairs; grouping by
// type produces exactly the "Domestic" and "International" groups with
// "{carrier} - {service}" labels. Unrecognized groupings yield an empty
// result.
func (c *Catalog) FormattedForSelect(ctx context.Context, groupBy string) (map[string]map[string]string, error) {
	accounts, err := c.ListCarriers(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	options := make(map[string]map[string]string)

	switch groupBy {
	case GroupByCarrier:
		for _, account := range accounts {
			group := make(map[string]string, len(account.ServiceLevels))
			for _, service := range account.ServiceLevels {
				group[service.ServiceCode] = service.Name
			}
			options[account.CarrierName] = group
		}

	case GroupByType:
		domestic := make(map[string]string)
		international := make(map[string]string)
		for _, account := range accounts {
			for _, service := range account.ServiceLevels {
				label := fmt.Sprintf("%s - %s", account.CarrierName, service.Name)
				if service.IsDomestic {
					domestic[service.ServiceCode] = label
				} else {
					international[service.ServiceCode] = label
				}
			}
		}
		options["Domestic"] = domestic
		options["International"] = international
	}

	return options, nil
}

// ClearCache forgets every cache entry this catalog has written. The store
// offers no pattern deletion, so keys are enumerated explicitly.
func (c *Catalog) ClearCache() error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.writtenKeys))
	for key := range c.writtenKeys {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	// A key leaves the registry only once the store has forgotten it, so a
	// failed clear can be retried without losing track of live entries.
	for _, key := range keys {
		if err := c.store.Forget(key); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.writtenKeys, key)
		c.mu.Unlock()
	}
	return nil
}

// fetchAccounts issues one carrier-account listing per requested code,
// concurrently, and flattens the results in request order.
func (c *Catalog) fetchAccounts(ctx context.Context, codes []string, serviceLevels bool) ([]shippo.CarrierAccount, error) {
	results := make([][]shippo.CarrierAccount, len(codes))

	g, ctx := errgroup.WithContext(ctx)
	for i, code := range codes {
		g.Go(func() error {
			resp, err := c.api.ListCarrierAccounts(ctx, shippo.CarrierAccountListParams{
				Carrier:       code,
				ServiceLevels: serviceLevels,
			})
			if err != nil {
				c.metrics.RecordRemoteError("list_carrier_accounts")
				return fmt.Errorf("%s: %w", code, err)
			}
			results[i] = resp.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []shippo.CarrierAccount
	for _, accounts := range results {
		flat = append(flat, accounts...)
	}
	return flat, nil
}

// enrich applies static display metadata to a raw carrier account.
func (c *Catalog) enrich(account shippo.CarrierAccount) CarrierAccount {
	services := make([]ServiceLevel, 0, len(account.ServiceLevels))
	for _, service := range account.ServiceLevels {
		enriched := ServiceLevel{
			ServiceCode: service.Token,
			Name:        service.Name,
			Carrier:     account.Carrier,
			Token:       service.Token,
			Description: serviceDescription(account.Carrier, service.Token),
			IsDomestic:  !isInternationalService(service.Name),
		}
		if c.cfg.ShowEstimatedDays {
			enriched.EstimatedDays = service.EstimatedDays
		}
		services = append(services, enriched)
	}

	enriched := CarrierAccount{
		Carrier:       account.Carrier,
		CarrierName:   displayName(account.Carrier),
		ObjectID:      account.ObjectID,
		ServiceLevels: services,
	}
	if c.cfg.ShowCarrierLogo {
		enriched.LogoURLs = logoURLs(account.Carrier)
	}
	return enriched
}

// resolveCarriers applies the default carrier fallback and drops duplicates
// while keeping the requested order.
func (c *Catalog) resolveCarriers(codes []string) []string {
	if len(codes) == 0 {
		codes = c.cfg.DefaultCarriers
	}

	seen := make(map[string]struct{}, len(codes))
	ordered := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		ordered = append(ordered, code)
	}
	return ordered
}

// put writes a catalog result to the cache and remembers the key for
// ClearCache. Cache failures degrade to a miss on the next read.
func (c *Catalog) put(key string, value any) {
	if !c.cfg.CacheEnabled {
		return
	}
	if err := c.store.Put(key, value, c.cfg.CacheTTL); err != nil {
		c.logger.Warn("carrier cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.mu.Lock()
	c.writtenKeys[key] = struct{}{}
	c.mu.Unlock()
}
