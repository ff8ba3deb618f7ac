package huobi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/models"
	"fundingflow/reader"
)

func newTestReader(t *testing.T, handler http.Handler) *Huobi_Funding_Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.ExchangeSourceConfig{Enabled: true, URL: srv.URL}
	return Huobi_Funding_NewReader(cfg, 5*time.Second)
}

func swapMarket() models.Market {
	return models.Market{ID: "BTC-USD", Pair: "BTC/USD", BaseID: "BTC", Exchange: models.ExchangeHuobi, Type: models.MarketTypeSwap}
}

// pageBody renders a swap_historical_funding_rate response holding the given
// funding times, newest first as the live API orders them.
func pageBody(times ...int64) string {
	rows := make([]string, 0, len(times))
	for _, ms := range times {
		rows = append(rows, fmt.Sprintf(`{"symbol":"BTC","contract_code":"BTC-USD","funding_time":"%d","funding_rate":"0.000100","realized_rate":"0.000100","avg_premium_index":"0.000050"}`, ms))
	}
	return fmt.Sprintf(`{"status":"ok","data":{"total_page":3,"current_page":1,"total_size":120,"data":[%s]},"ts":1583729178755}`, strings.Join(rows, ","))
}

func TestFetchPageQueryAndDecode(t *testing.T) {
	r := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/swap-api/v1/swap_historical_funding_rate" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		q := req.URL.Query()
		if got := q.Get("contract_code"); got != "BTC-USD" {
			t.Errorf("contract_code = %s", got)
		}
		if got := q.Get("page_index"); got != "2" {
			t.Errorf("page_index = %s, want 2", got)
		}
		if got := q.Get("page_size"); got != "50" {
			t.Errorf("page_size = %s, want 50", got)
		}
		fmt.Fprint(w, pageBody(1568102400000, 1568073600000))
	}))

	records, next, more, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: 1568073600000, Page: 2})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if more {
		t.Error("short raw page should end pagination")
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].FundingRate != 0.0001 {
		t.Errorf("FundingRate = %v", records[0].FundingRate)
	}
	if records[0].RawPair != "BTC-USD" {
		t.Errorf("RawPair = %s", records[0].RawPair)
	}
	if next.Page != 3 || next.Start != 1568073600000 {
		t.Errorf("next = %+v, want page 3 with unchanged start", next)
	}
}

func TestFetchPageDropsAlreadySeen(t *testing.T) {
	// Resuming from 1568102400001: the page still carries the two older
	// settlements, which must not resurface.
	r := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, pageBody(1568131200000, 1568102400000, 1568073600000))
	}))

	records, _, more, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: 1568102400001, Page: 1})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if more {
		t.Error("raw page of 3 should end pagination")
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].FundingTime != 1568131200000 {
		t.Errorf("FundingTime = %d, want 1568131200000", records[0].FundingTime)
	}
}

func TestFetchPageContinuationUsesRawLength(t *testing.T) {
	// A full raw page signals more history even when every record on it is
	// filtered out as already seen.
	times := make([]int64, pageSize)
	for i := range times {
		times[i] = 1568073600000 + int64(i)*28800000
	}
	r := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, pageBody(times...))
	}))

	records, _, more, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: 1600000000000, Page: 1})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !more {
		t.Error("full raw page should signal more history")
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 after filtering", len(records))
	}
}

func TestFetchPageErrorStatus(t *testing.T) {
	r := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"status":"error","err_code":1014,"err_msg":"contract not found"}`)
	}))

	_, _, _, err := r.FetchPage(context.Background(), swapMarket(), reader.Cursor{Start: 0, Page: 1})
	if err == nil || !strings.Contains(err.Error(), "contract not found") {
		t.Fatalf("err = %v, want error status surfaced", err)
	}
}
