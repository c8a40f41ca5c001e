package main

import (
	"context"

	"github.com/farmtoyou/shippo-go/internal/carriers"
	"github.com/farmtoyou/shippo-go/internal/config"
	"github.com/farmtoyou/shippo-go/internal/rates"
	"github.com/farmtoyou/shippo-go/internal/shipments"
	"github.com/farmtoyou/shippo-go/internal/telemetry"
	"github.com/farmtoyou/shippo-go/pkg/shippo"
	"github.com/farmtoyou/shippo-go/pkg/shippo/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

type components struct {
	catalog  *carriers.Catalog
	rates    *rates.Service
	gateway  *shipments.Gateway
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
}

func initComponents(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) components {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	var api shippo.APIClient
	if cfg.ShippoUseMock {
		api = shippo.NewMockAPIClient()
	} else {
		api = shippo.NewHTTPAPIClient(shippo.HTTPAPIClientConfig{
			BaseURL:  cfg.ShippoBaseURL,
			APIToken: cfg.ShippoAPIKey,
			Timeout:  cfg.RequestTimeout,
			Tracer:   tracer,
		})
	}

	store := cache.NewMemoryStore()

	catalog := carriers.New(api, store, carriers.Config{
		CacheEnabled:      cfg.CacheEnabled,
		CacheTTL:          cfg.CacheTTL(),
		DefaultCarriers:   cfg.DefaultCarriers,
		ShowCarrierLogo:   cfg.ShowCarrierLogo,
		ShowEstimatedDays: cfg.ShowEstimatedDays,
	}, logger, metrics)

	rateService := rates.New(api, store, rates.Config{
		CacheEnabled: cfg.CacheEnabled,
		CacheTTL:     cfg.CacheTTL(),
	}, logger, metrics)

	gateway := shipments.New(api, store, shipments.Config{
		CacheEnabled: cfg.CacheEnabled,
		CacheTTL:     cfg.CacheTTL(),
	}, logger, metrics)

	return components{
		catalog:  catalog,
		rates:    rateService,
		gateway:  gateway,
		metrics:  metrics,
		registry: registry,
	}
}
