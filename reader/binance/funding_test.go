package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/models"
	"fundingflow/reader"
)

func newTestReader(t *testing.T, handler http.Handler) (*Binance_Funding_Reader, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.ExchangeSourceConfig{Enabled: true, URL: srv.URL}
	return Binance_Funding_NewReader(cfg, 5*time.Second), srv
}

func fundingPage(start int64, step int64, n int) []map[string]interface{} {
	page := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, map[string]interface{}{
			"symbol":      "BTCUSDT",
			"fundingRate": fmt.Sprintf("0.000%d", i%10),
			"fundingTime": start + int64(i)*step,
		})
	}
	return page
}

func swapMarket() models.Market {
	return models.Market{ID: "BTCUSDT", Pair: "BTC/USDT", BaseID: "BTC", Exchange: models.ExchangeBinance, Type: models.MarketTypeSwap}
}

func TestFetchPageFullPageContinues(t *testing.T) {
	const step = int64(8 * time.Hour / time.Millisecond)
	start := int64(1568073600000)

	r, _ := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/fapi/v1/fundingRate" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s, want BTCUSDT", got)
		}
		json.NewEncoder(w).Encode(fundingPage(start, step, pageLimit))
	}))

	records, next, more, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: start, Page: 1})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !more {
		t.Fatal("full page should signal more history")
	}
	if len(records) != pageLimit {
		t.Fatalf("got %d records, want %d", len(records), pageLimit)
	}
	wantNext := start + int64(pageLimit-1)*step + 1000
	if next.Start != wantNext {
		t.Errorf("next.Start = %d, want %d", next.Start, wantNext)
	}
}

func TestFetchPageShortPageEnds(t *testing.T) {
	start := int64(1568073600000)

	r, _ := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(fundingPage(start, 28800000, 3))
	}))

	records, _, more, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: start, Page: 1})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if more {
		t.Fatal("short page should end pagination")
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Exchange != models.ExchangeBinance || records[0].Pair != "BTC/USDT" || records[0].RawPair != "BTCUSDT" {
		t.Errorf("record identity = %+v", records[0])
	}
	if records[0].FundingTimeStr != "2019-09-10T00:00:00.000Z" {
		t.Errorf("FundingTimeStr = %s", records[0].FundingTimeStr)
	}
}

func TestFetchPageRejectsNonSwap(t *testing.T) {
	called := false
	r, _ := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		called = true
	}))

	m := swapMarket()
	m.Type = "Spot"
	_, _, _, err := r.FetchPage(context.Background(), m, reader.Cursor{Start: 0, Page: 1})
	if !errors.Is(err, reader.ErrMarketType) {
		t.Fatalf("err = %v, want ErrMarketType", err)
	}
	if called {
		t.Error("non-swap market must not reach the API")
	}
}
