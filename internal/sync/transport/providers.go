package transport

import (
	"fmt"
	"strings"
)

// Provider selects an S3-compatible storage service.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderMinIO Provider = "minio"
	ProviderR2    Provider = "r2"
)

// Endpoint is the resolved connection target for a provider.
type Endpoint struct {
	URL            string // empty lets the SDK resolve the AWS regional endpoint
	Region         string
	ForcePathStyle bool
}

// ResolveEndpoint derives the endpoint, region and addressing style for cfg.
//
// AWS uses virtual-host style with SDK-resolved endpoints unless an explicit
// endpoint is configured. MinIO requires path-style URLs; a missing scheme is
// filled from UseSSL. R2 endpoints are derived from the Cloudflare account ID
// and always use region "auto".
func ResolveEndpoint(cfg S3Config) (Endpoint, error) {
	switch cfg.Provider {
	case "", ProviderAWS:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return Endpoint{URL: cfg.Endpoint, Region: region, ForcePathStyle: cfg.ForcePathStyle}, nil

	case ProviderMinIO:
		if cfg.Endpoint == "" {
			return Endpoint{}, fmt.Errorf("minio endpoint is required")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return Endpoint{URL: normalizeEndpoint(cfg.Endpoint, cfg.UseSSL), Region: region, ForcePathStyle: true}, nil

	case ProviderR2:
		if !IsValidR2AccountID(cfg.AccountID) {
			return Endpoint{}, fmt.Errorf("invalid R2 account ID %q", cfg.AccountID)
		}
		return Endpoint{URL: R2EndpointForAccount(cfg.AccountID), Region: "auto"}, nil

	default:
		return Endpoint{}, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// normalizeEndpoint adds a scheme when missing and strips a trailing slash.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return strings.TrimSuffix(endpoint, "/")
}

// R2EndpointForAccount returns the R2 endpoint for a given account ID.
func R2EndpointForAccount(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}

// IsValidR2AccountID reports whether accountID looks like a Cloudflare account ID
// (32 hex characters).
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
