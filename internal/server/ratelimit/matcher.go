package ratelimit

import (
	"strings"
)

// unlimited lists endpoints that are never rate limited, keyed by method and path.
var unlimited = map[string]bool{
	"GET /health": true,
}

var unlimitedConfig = EndpointConfig{}

// MatchEndpoint returns the configuration governing a request, or nil when
// the default limit applies. An exact path wins; otherwise the longest
// configured prefix ending in "/" matches, so "/api/assessment/" covers every
// assessment action that has no entry of its own. Unlimited endpoints match a
// config with Limit 0.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if unlimited[method+" "+path] {
		cfg := unlimitedConfig
		return &cfg
	}

	var prefix *EndpointConfig
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method != method {
			continue
		}
		if cfg.Path == path {
			return cfg
		}
		if strings.HasSuffix(cfg.Path, "/") && strings.HasPrefix(path, cfg.Path) {
			if prefix == nil || len(cfg.Path) > len(prefix.Path) {
				prefix = cfg
			}
		}
	}
	return prefix
}
