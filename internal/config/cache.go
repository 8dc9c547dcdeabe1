package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is disabled.
// Methods is a comma separated list of HTTP methods to cache. KeyStrategy
// determines which parts of the request contribute to the cache key.
type CacheConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Methods      string        `koanf:"methods"`
	TTL          time.Duration `koanf:"ttl"`
	KeyStrategy  string        `koanf:"key_strategy" validate:"omitempty,oneof=route method_route method_route_query route_query"`
	Prefix       string        `koanf:"prefix" validate:"required"`
	MaxBodyBytes int           `koanf:"max_body_bytes" validate:"min=0"`
}

// Cacheable reports whether responses to the given method are cached.
func (c CacheConfig) Cacheable(method string) bool {
	method = strings.ToUpper(method)
	for _, m := range strings.Split(c.Methods, ",") {
		if strings.TrimSpace(strings.ToUpper(m)) == method {
			return true
		}
	}
	return false
}
