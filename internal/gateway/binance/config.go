package binance

import (
	"strings"
	"time"
)

type Config struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string

	// Breaker settings for the venue circuit.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// InstrumentTTL bounds how long exchange-info metadata is cached.
	InstrumentTTL time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	if out.InstrumentTTL <= 0 {
		out.InstrumentTTL = time.Hour
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
