package reader

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"fundingflow/config"
)

const defaultUserAgent = "fundingflow/1.0"

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds the pooled HTTP client the REST adapters share.
// BitMEX and OKEx are fronted by CDNs that reject Go's default user agent,
// so every request goes out with a pinned one. A zero timeout keeps the
// transport default; a hung call then stalls only its own market.
func NewHTTPClient(pool config.ConnectionPoolConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
		DisableCompression:  false,
	}

	return &http.Client{
		Transport: userAgentTransport{agent: defaultUserAgent, base: transport},
		Timeout:   timeout,
	}
}

// NewLimiter builds the per-exchange request limiter from configuration,
// defaulting to 5 requests per second with no burst headroom.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Snippet truncates a response body for error messages and log lines.
func Snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
