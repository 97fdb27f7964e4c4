// Package proxyenv implements environment-driven proxy resolution.
// Reading os.Getenv itself is the external collaborator; everything
// else here (scheme selection, no_proxy suffix matching,
// explicit-request precedence) is ordinary logic.
package proxyenv

import (
	"os"
	"strings"

	"github.com/go-httpc/httpc/internal/dialer"
)

// Resolve picks the proxy to use for a request to host over scheme,
// honoring an explicit request-level override (which always wins),
// then http_proxy/https_proxy, then no_proxy. Returns (nil, nil) when
// no proxy applies.
func Resolve(scheme, host, explicitProxy string) (*dialer.ProxyTarget, error) {
	if explicitProxy != "" {
		return dialer.ParseProxyURL(explicitProxy)
	}
	if bypassed(host) {
		return nil, nil
	}
	var raw string
	switch scheme {
	case "https":
		raw = getenvCI("https_proxy")
	default:
		raw = getenvCI("http_proxy")
	}
	if raw == "" {
		return nil, nil
	}
	return dialer.ParseProxyURL(raw)
}

// bypassed reports whether host is excluded from proxying by
// no_proxy: a comma-separated list of domain suffixes (each compared
// after prefixing with "."), "*" to bypass everything, matched
// case-insensitively.
func bypassed(host string) bool {
	list := getenvCI("no_proxy")
	if list == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(strings.ToLower(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		entry = strings.TrimPrefix(entry, ".")
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// getenvCI reads an environment variable trying both the lowercase
// name given and its uppercase form, lowercase taking precedence,
// matching the de facto convention curl, wget, and Go's own
// http.ProxyFromEnvironment all follow.
func getenvCI(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(name))
}
