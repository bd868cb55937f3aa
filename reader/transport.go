package reader

import (
	"net/http"

	"golang.org/x/time/rate"

	appconfig "candleflow/config"
)

// UserAgent identifies outbound requests. Some vendors reject requests
// without a browser-like agent string.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds a pooled HTTP client from the reader configuration.
func NewHTTPClient(cfg appconfig.ReaderConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}
	return &http.Client{
		Transport: userAgentTransport{agent: UserAgent, base: transport},
		Timeout:   cfg.Timeout,
	}
}

// NewLimiter builds the request pacer shared by a provider adapter.
func NewLimiter(cfg appconfig.RateLimitConfig) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
}
