// Package webhooks binds provider webhook endpoints to cloud functions.
package webhooks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/morezero/webhook-dispatcher/pkg/semver"
)

const routesLogPrefix = "webhooks:routes"

// DefaultPrefix is the path every provider endpoint is mounted under.
const DefaultPrefix = "/webhooks"

// DefaultRoutes maps the Sendbird endpoint to its handler function.
func DefaultRoutes() map[string]string {
	return map[string]string{"sendbird": "sbWebhook"}
}

// ParseRoutes parses "provider:function" pairs separated by commas, e.g.
// "sendbird:sbWebhook,stripe:stripeWebhook@^2". An empty string yields the
// default routes.
func ParseRoutes(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultRoutes(), nil
	}
	routes := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		provider, function, ok := strings.Cut(pair, ":")
		provider, function = strings.TrimSpace(provider), strings.TrimSpace(function)
		if !ok || provider == "" || function == "" {
			return nil, fmt.Errorf("%s - malformed route %q, want provider:function", routesLogPrefix, pair)
		}
		if strings.ContainsAny(provider, "/ {}") {
			return nil, fmt.Errorf("%s - invalid provider %q", routesLogPrefix, provider)
		}
		if _, err := semver.ParseFunctionRef(function); err != nil {
			return nil, fmt.Errorf("%s - route %s: %w", routesLogPrefix, provider, err)
		}
		if _, dup := routes[provider]; dup {
			return nil, fmt.Errorf("%s - duplicate provider %q", routesLogPrefix, provider)
		}
		routes[provider] = function
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%s - no routes in %q", routesLogPrefix, s)
	}
	return routes, nil
}

// Providers returns the provider names of routes, sorted.
func Providers(routes map[string]string) []string {
	out := make([]string, 0, len(routes))
	for p := range routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}
