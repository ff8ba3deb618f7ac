package reader

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"fundingflow/models"
)

func rateHeader(limit, remaining, resetUnix string) http.Header {
	h := http.Header{}
	if limit != "" {
		h.Set("X-RateLimit-Limit", limit)
	}
	if remaining != "" {
		h.Set("X-RateLimit-Remaining", remaining)
	}
	if resetUnix != "" {
		h.Set("X-RateLimit-Reset", resetUnix)
	}
	return h
}

func TestParseRateHeaders(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()

	parsed := ParseRateHeaders(rateHeader("120", "57", strconv.FormatInt(reset, 10)))
	if parsed.Limit != 120 || parsed.Remaining != 57 {
		t.Fatalf("unexpected budget: %#v", parsed)
	}
	if parsed.Reset.Unix() != reset {
		t.Fatalf("reset = %v, want unix %d", parsed.Reset, reset)
	}

	parsed = ParseRateHeaders(http.Header{})
	if parsed.Remaining != -1 {
		t.Fatalf("absent remaining should parse to -1, got %d", parsed.Remaining)
	}
	if !parsed.Reset.IsZero() {
		t.Fatalf("absent reset should stay zero, got %v", parsed.Reset)
	}

	parsed = ParseRateHeaders(rateHeader("x", "y", "z"))
	if parsed.Limit != 0 || parsed.Remaining != -1 || !parsed.Reset.IsZero() {
		t.Fatalf("garbage headers should parse to zero values: %#v", parsed)
	}
}

func TestHeaderGuardIgnoresHealthyBudget(t *testing.T) {
	guard := NewHeaderGuard(models.ExchangeBitMEX, 2)

	start := time.Now()
	if err := guard.Observe(context.Background(), rateHeader("120", "100", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("guard paused on a healthy budget")
	}
}

func TestHeaderGuardIgnoresMissingHeaders(t *testing.T) {
	guard := NewHeaderGuard(models.ExchangeHuobi, 2)

	if err := guard.Observe(context.Background(), http.Header{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHeaderGuardWaitsForReset(t *testing.T) {
	guard := NewHeaderGuard(models.ExchangeBitMEX, 2)
	// Two seconds out so the truncation to whole epoch seconds still leaves
	// at least a one second pause.
	reset := time.Now().Add(2 * time.Second).Unix()

	start := time.Now()
	if err := guard.Observe(context.Background(), rateHeader("120", "1", strconv.FormatInt(reset, 10))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatal("guard returned early, expected it to wait for the reset")
	}
}

func TestHeaderGuardHonorsCancellation(t *testing.T) {
	guard := NewHeaderGuard(models.ExchangeBitMEX, 2)
	reset := time.Now().Add(time.Hour).Unix()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := guard.Observe(ctx, rateHeader("120", "0", strconv.FormatInt(reset, 10)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation did not interrupt the pause promptly")
	}
}
