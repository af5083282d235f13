package cache

import (
	"fmt"
	"sort"
	"strings"
)

// ProviderKey builds the canonical (provider, parameters) cache key. Params
// are sorted so equivalent requests hash to the same key.
func ProviderKey(provider string, params map[string]string) string {
	if len(params) == 0 {
		return provider
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(provider)
	for _, k := range names {
		fmt.Fprintf(&b, ":%s=%s", k, params[k])
	}
	return b.String()
}

// ProviderPattern matches every key a provider has written.
func ProviderPattern(provider string) string {
	return provider + "*"
}
