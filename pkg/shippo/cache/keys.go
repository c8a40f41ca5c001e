package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Key prefixes. Each component owns the keys under its prefix and is
// responsible for forgetting them on invalidation.
const (
	carrierKeyPrefix     = "shippo_carriers_"
	carrierOnlyKeyPrefix = "shippo_carriers_only_"
	ratesKeyPrefix       = "shippo_rates_"
	addressKeyPrefix     = "shippo_address_"
)

// NormalizeCarriers deduplicates and sorts a carrier code set so that
// semantically identical requests derive identical cache keys regardless of
// input ordering.
func NormalizeCarriers(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	sort.Strings(normalized)
	return normalized
}

// CarrierCatalogKey derives the cache key for a carrier listing with service
// levels.
func CarrierCatalogKey(codes []string) string {
	return carrierKeyPrefix + hashJSON(NormalizeCarriers(codes))
}

// CarrierOnlyKey derives the cache key for a carrier listing without service
// levels.
func CarrierOnlyKey(codes []string) string {
	return carrierOnlyKeyPrefix + hashJSON(NormalizeCarriers(codes))
}

// RatesKey derives the cache key for a shipment's rate listing under a filter
// set. Map keys marshal in sorted order, so equal filter sets collide.
func RatesKey(shipmentID string, filters map[string]string) string {
	return ratesKeyPrefix + shipmentID + "_" + hashJSON(filters)
}

// AddressKey derives the cache key for a stored address.
func AddressKey(addressID string) string {
	return addressKeyPrefix + addressID
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable values reach here; keys are plain strings/maps.
		data = []byte("{}")
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
