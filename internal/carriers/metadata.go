package carriers

import "strings"

// Static display metadata for known carriers. Carriers outside these tables
// fall back to a capitalized code, no logo, and the generic description.

const defaultServiceDescription = "Standard shipping service"

var carrierDisplayNames = map[string]string{
	"usps": "USPS",
	"dhl":  "DHL Express",
}

var carrierLogoURLs = map[string][]string{
	"usps": {
		"https://shippo-static-v2.s3.amazonaws.com/providers/75/USPS.png",
		"https://shippo-static-v2.s3.amazonaws.com/providers/200/USPS.png",
	},
	"dhl": {
		"https://shippo-static-v2.s3.amazonaws.com/providers/75/DHL.png",
		"https://shippo-static-v2.s3.amazonaws.com/providers/200/DHL.png",
	},
}

var serviceDescriptions = map[string]map[string]string{
	"usps": {
		"usps_priority": "On-Time Delivery Guarantee, Tracking, Delivery Confirmation, Coverage up to $100",
		"usps_express":  "Fastest domestic service, money-back guarantee, tracking and insurance included",
	},
	"dhl": {
		"dhl_express": "Time-definite international shipping with delivery confirmation and full tracking",
	},
}

// internationalKeywords mark a service as international when any of them
// appears in the service name.
var internationalKeywords = []string{"international", "world", "global", "overseas"}

func displayName(carrier string) string {
	if name, ok := carrierDisplayNames[carrier]; ok {
		return name
	}
	if carrier == "" {
		return ""
	}
	return strings.ToUpper(carrier[:1]) + carrier[1:]
}

func logoURLs(carrier string) []string {
	return carrierLogoURLs[carrier]
}

func serviceDescription(carrier, token string) string {
	if desc, ok := serviceDescriptions[carrier][token]; ok {
		return desc
	}
	return defaultServiceDescription
}

func isInternationalService(serviceName string) bool {
	lower := strings.ToLower(serviceName)
	for _, keyword := range internationalKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
