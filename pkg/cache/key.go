package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies one cached detail response.
type CacheKey struct {
	// Endpoint is the request path relative to the portal base URL.
	Endpoint string

	// QueryParams are the request query parameters.
	QueryParams url.Values

	// Scope separates sessions; tokens of different brokers see different data.
	Scope string
}

// String generates a deterministic cache key string.
// Format: portal:endpoint:query1=val1:scope=name
//
// Example:
//
//	portal:Clientes/123/primeira-parcela/456/0:scope=Corretora Exemplo
func (k CacheKey) String() string {
	parts := []string{"portal"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// scopePattern returns the SCAN pattern matching every key of scope. Glob
// characters in the scope match literally.
func scopePattern(scope string) string {
	return "portal:*:scope=" + globEscaper.Replace(scope)
}
