// Package rates filters, sorts, groups, and formats shipping rates and
// exposes shipment-bound rate lookups.
package rates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/farmtoyou/shippo-go/pkg/shippo"
)

// Filters are field-equality constraints on rates. A rate survives only when
// every filter key exists on the rate and equals the given value; a key the
// rate does not carry excludes it.
type Filters map[string]string

// DefaultLabelFormat is the label template used when none is given.
const DefaultLabelFormat = "{carrier} - {service} ({amount} {currency})"

// Filter returns the rates matching every filter, keeping input order.
func Filter(rateList []shippo.Rate, filters Filters) []shippo.Rate {
	if len(filters) == 0 {
		return rateList
	}

	matched := make([]shippo.Rate, 0, len(rateList))
	for _, rate := range rateList {
		if matches(rate, filters) {
			matched = append(matched, rate)
		}
	}
	return matched
}

// Cheapest returns the filtered rate with the lowest amount. Ties keep the
// first-encountered rate. The second return is false when nothing survives
// the filters.
func Cheapest(rateList []shippo.Rate, filters Filters) (shippo.Rate, bool) {
	return reduce(rateList, filters, func(best, candidate shippo.Rate) bool {
		return candidate.Amount < best.Amount
	})
}

// Fastest returns the filtered rate with the fewest estimated days. Ties keep
// the first-encountered rate. The second return is false when nothing
// survives the filters.
func Fastest(rateList []shippo.Rate, filters Filters) (shippo.Rate, bool) {
	return reduce(rateList, filters, func(best, candidate shippo.Rate) bool {
		return candidate.EstimatedDays < best.EstimatedDays
	})
}

// FormatForSelect renders each rate into a label keyed by the rate's object
// id. The template tokens {carrier}, {service}, {amount}, and {currency} are
// substituted; anything else is left literal.
func FormatForSelect(rateList []shippo.Rate, labelFormat string) map[string]string {
	if labelFormat == "" {
		labelFormat = DefaultLabelFormat
	}

	formatted := make(map[string]string, len(rateList))
	for _, rate := range rateList {
		replacer := strings.NewReplacer(
			"{carrier}", rate.Provider,
			"{service}", rate.ServiceLevel.Name,
			"{amount}", formatAmount(rate.Amount),
			"{currency}", rate.Currency,
		)
		formatted[rate.ObjectID] = replacer.Replace(labelFormat)
	}
	return formatted
}

// GroupRates groups rates by the named field. Grouping by "servicelevel" uses
// the service level display name; any other value groups by the literal field
// of that name. A rate missing the grouping field is a usage error.
func GroupRates(rateList []shippo.Rate, groupBy string) (map[string][]shippo.Rate, error) {
	grouped := make(map[string][]shippo.Rate)
	for _, rate := range rateList {
		key, ok := fieldValue(rate, groupBy)
		if !ok {
			return nil, fmt.Errorf("unknown rate field %q", groupBy)
		}
		grouped[key] = append(grouped[key], rate)
	}
	return grouped, nil
}

func reduce(rateList []shippo.Rate, filters Filters, better func(best, candidate shippo.Rate) bool) (shippo.Rate, bool) {
	var best shippo.Rate
	found := false
	for _, rate := range Filter(rateList, filters) {
		if !found || better(best, rate) {
			best = rate
			found = true
		}
	}
	return best, found
}

func matches(rate shippo.Rate, filters Filters) bool {
	for key, want := range filters {
		got, ok := fieldValue(rate, key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// fieldValue resolves a filter/grouping key to the rate's field value. The
// second return is false for fields a rate does not carry.
func fieldValue(rate shippo.Rate, key string) (string, bool) {
	switch key {
	case "provider":
		return rate.Provider, true
	case "servicelevel":
		return rate.ServiceLevel.Name, true
	case "servicelevel_token":
		return rate.ServiceLevel.Token, true
	case "currency":
		return rate.Currency, true
	case "object_id":
		return rate.ObjectID, true
	case "amount":
		return formatAmount(rate.Amount), true
	case "estimated_days":
		return strconv.Itoa(rate.EstimatedDays), true
	case "duration_terms":
		if rate.DurationTerms == "" {
			return "", false
		}
		return rate.DurationTerms, true
	default:
		return "", false
	}
}

// formatAmount renders an amount without trailing zeros (5.50 -> "5.5").
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
