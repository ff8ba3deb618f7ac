package reader

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundingflow/logger"
	"fundingflow/models"
)

// RateHeaders carries the request-budget state an exchange reported on a
// response. Remaining is -1 when the header was absent so an exhausted budget
// of zero stays distinguishable.
type RateHeaders struct {
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// ParseRateHeaders reads the X-RateLimit-* family BitMEX attaches to every
// response. Reset is the epoch second the budget refills at.
func ParseRateHeaders(h http.Header) RateHeaders {
	parsed := RateHeaders{Remaining: -1}

	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			parsed.Limit = n
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			parsed.Remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
			parsed.Reset = time.Unix(sec, 0)
		}
	}
	return parsed
}

// HeaderGuard slows the crawl down before an exchange starts rejecting it.
// It inspects the budget reported on each response and pauses until the
// advertised reset once the remaining allowance drops to the threshold.
type HeaderGuard struct {
	exchange  models.Exchange
	threshold int64
	maxPause  time.Duration
	log       *logger.Log
}

func NewHeaderGuard(exchange models.Exchange, threshold int64) *HeaderGuard {
	if threshold < 0 {
		threshold = 0
	}
	return &HeaderGuard{
		exchange:  exchange,
		threshold: threshold,
		maxPause:  time.Minute,
		log:       logger.GetLogger(),
	}
}

// Observe blocks until the reported reset when the budget is nearly spent.
// Responses without rate headers pass through untouched. The only error it
// returns is the context's, when cancellation interrupts the pause.
func (g *HeaderGuard) Observe(ctx context.Context, h http.Header) error {
	parsed := ParseRateHeaders(h)
	if parsed.Remaining < 0 || parsed.Remaining > g.threshold {
		return nil
	}

	wait := time.Second
	if !parsed.Reset.IsZero() {
		wait = time.Until(parsed.Reset)
	}
	if wait <= 0 {
		return nil
	}
	if wait > g.maxPause {
		wait = g.maxPause
	}

	g.log.WithComponent(strings.ToLower(string(g.exchange))+"_reader").WithFields(logger.Fields{
		"remaining": parsed.Remaining,
		"limit":     parsed.Limit,
		"pause":     wait.String(),
	}).Warn("request budget nearly spent, pausing")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
