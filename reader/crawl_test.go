package reader

import (
	"context"
	"errors"
	"sort"
	"testing"

	"fundingflow/models"
)

func rec(t int64) models.FundingRecord {
	return models.FundingRecord{
		Exchange:       models.ExchangeBinance,
		Pair:           "BTC/USDT",
		RawPair:        "BTCUSDT",
		FundingRate:    0.0001,
		FundingTime:    t,
		FundingTimeStr: models.FundingTimeString(t),
	}
}

// fakePager serves canned pages keyed by call order and records the cursors
// it was invoked with.
type fakePager struct {
	pages   [][]models.FundingRecord
	cursors []Cursor
	failAt  int
	calls   int
}

func (f *fakePager) Exchange() models.Exchange { return models.ExchangeBinance }

func (f *fakePager) FetchPage(ctx context.Context, m models.Market, cur Cursor) ([]models.FundingRecord, Cursor, bool, error) {
	f.cursors = append(f.cursors, cur)
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, Cursor{}, false, errors.New("boom")
	}
	page := f.pages[f.calls-1]
	more := f.calls < len(f.pages)
	next := Cursor{Start: cur.Start, Page: cur.Page + 1}
	if len(page) > 0 {
		next.Start = page[len(page)-1].FundingTime + 1
	}
	return page, next, more, nil
}

func swapMarket() models.Market {
	return models.Market{ID: "BTCUSDT", Pair: "BTC/USDT", BaseID: "BTC", Exchange: models.ExchangeBinance, Type: models.MarketTypeSwap}
}

func TestCrawlAccumulatesUntilExhaustion(t *testing.T) {
	p := &fakePager{pages: [][]models.FundingRecord{
		{rec(1000), rec(2000)},
		{rec(3000), rec(4000)},
		{rec(5000)},
	}}

	got, err := Crawl(context.Background(), p, swapMarket(), 0)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 page fetches, got %d", p.calls)
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].FundingTime < got[j].FundingTime }) {
		t.Fatalf("result not sorted: %+v", got)
	}
}

func TestCrawlAdvancesCursor(t *testing.T) {
	p := &fakePager{pages: [][]models.FundingRecord{
		{rec(1000), rec(2000)},
		{rec(3000)},
	}}

	if _, err := Crawl(context.Background(), p, swapMarket(), 500); err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if p.cursors[0].Start != 500 || p.cursors[0].Page != 1 {
		t.Fatalf("first cursor = %+v, want Start 500 Page 1", p.cursors[0])
	}
	if p.cursors[1].Start != 2001 || p.cursors[1].Page != 2 {
		t.Fatalf("second cursor = %+v, want Start 2001 Page 2", p.cursors[1])
	}
}

func TestCrawlFiltersBeforeStart(t *testing.T) {
	// Exchanges that ignore the start parameter can return stale records;
	// the driver enforces the lower bound.
	p := &fakePager{pages: [][]models.FundingRecord{
		{rec(500), rec(1500), rec(2500)},
	}}

	got, err := Crawl(context.Background(), p, swapMarket(), 1000)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records at/after 1000, got %d: %+v", len(got), got)
	}
	for _, r := range got {
		if r.FundingTime < 1000 {
			t.Fatalf("record before start survived: %d", r.FundingTime)
		}
	}
}

func TestCrawlSortsNewestFirstPages(t *testing.T) {
	// Huobi and OKEx return history newest-first.
	p := &fakePager{pages: [][]models.FundingRecord{
		{rec(3000), rec(2000), rec(1000)},
	}}

	got, err := Crawl(context.Background(), p, swapMarket(), 0)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].FundingTime >= got[i].FundingTime {
			t.Fatalf("not strictly ascending at %d: %+v", i, got)
		}
	}
}

func TestCrawlPropagatesFetchError(t *testing.T) {
	p := &fakePager{pages: [][]models.FundingRecord{
		{rec(1000)},
		{rec(2000)},
	}, failAt: 2}

	if _, err := Crawl(context.Background(), p, swapMarket(), 0); err == nil {
		t.Fatalf("expected error from failing page")
	}
}

func TestCheckSwap(t *testing.T) {
	m := swapMarket()
	if err := CheckSwap(models.ExchangeBinance, m); err != nil {
		t.Fatalf("valid swap rejected: %v", err)
	}

	m.Type = "Futures"
	err := CheckSwap(models.ExchangeBinance, m)
	if !errors.Is(err, ErrMarketType) {
		t.Fatalf("expected ErrMarketType, got %v", err)
	}

	m = swapMarket()
	if err := CheckSwap(models.ExchangeHuobi, m); !errors.Is(err, ErrMarketType) {
		t.Fatalf("exchange mismatch should fail precondition, got %v", err)
	}
}
