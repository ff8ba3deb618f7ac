package bitmex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// pageLimit is the count parameter sent to /funding; a shorter page means
// the history is exhausted.
const pageLimit = 500

// fundingInterval is how far the cursor jumps past the last record. BitMEX
// settles funding every 8 hours, so an hour step cannot skip an event.
const fundingInterval = time.Hour

// guardThreshold is the remaining-request floor at which the reader waits
// out the window BitMEX reports instead of risking a 429.
const guardThreshold = 2

// Bitmex_Funding_Reader pages through funding settlements via the public
// REST API.
type Bitmex_Funding_Reader struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	guard   *reader.HeaderGuard
	log     *logger.Log
}

func Bitmex_Funding_NewReader(cfg config.ExchangeSourceConfig, timeout time.Duration) *Bitmex_Funding_Reader {
	return &Bitmex_Funding_Reader{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  reader.NewHTTPClient(cfg.ConnectionPool, timeout),
		limiter: reader.NewLimiter(cfg.RateLimit),
		guard:   reader.NewHeaderGuard(models.ExchangeBitMEX, guardThreshold),
		log:     logger.GetLogger(),
	}
}

func (r *Bitmex_Funding_Reader) Exchange() models.Exchange { return models.ExchangeBitMEX }

// FetchPage requests up to 500 settlements at or after cur.Start. The symbol
// filter uses the currency root with the ":perpetual" timeframe suffix, which
// restricts the response to the swap contract. The next cursor starts one
// hour after the page's last settlement.
func (r *Bitmex_Funding_Reader) FetchPage(ctx context.Context, market models.Market, cur reader.Cursor) ([]models.FundingRecord, reader.Cursor, bool, error) {
	if err := reader.CheckSwap(models.ExchangeBitMEX, market); err != nil {
		return nil, cur, false, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, cur, false, err
	}

	query := url.Values{}
	query.Set("symbol", market.BaseID+":perpetual")
	query.Set("count", fmt.Sprintf("%d", pageLimit))
	query.Set("startTime", models.FundingTimeString(cur.Start))
	endpoint := fmt.Sprintf("%s/funding?%s", r.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, cur, false, fmt.Errorf("bitmex funding request for %s: %w", market.ID, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, cur, false, fmt.Errorf("bitmex funding fetch for %s: %w", market.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, cur, false, fmt.Errorf("bitmex funding body for %s: %w", market.ID, err)
	}
	if err := r.guard.Observe(ctx, resp.Header); err != nil {
		return nil, cur, false, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, cur, false, &reader.StatusError{
			Exchange: models.ExchangeBitMEX,
			Endpoint: "/funding",
			Code:     resp.StatusCode,
			Body:     reader.Snippet(body),
		}
	}

	var rows []models.BitmexFunding
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, cur, false, fmt.Errorf("bitmex funding decode for %s: %w", market.ID, err)
	}

	records := make([]models.FundingRecord, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			return nil, cur, false, fmt.Errorf("bitmex funding timestamp %q for %s: %w", row.Timestamp, market.ID, err)
		}
		ms := ts.UnixMilli()
		records = append(records, models.FundingRecord{
			Exchange:       models.ExchangeBitMEX,
			Pair:           market.Pair,
			RawPair:        row.Symbol,
			FundingRate:    row.FundingRate,
			FundingTime:    ms,
			FundingTimeStr: models.FundingTimeString(ms),
		})
	}

	next := reader.Cursor{Start: cur.Start, Page: cur.Page + 1}
	if len(records) > 0 {
		next.Start = records[len(records)-1].FundingTime + fundingInterval.Milliseconds()
	}

	r.log.WithComponent("bitmex_reader").WithFields(logger.Fields{
		"symbol":  market.ID,
		"start":   cur.Start,
		"records": len(records),
	}).Debug("fetched funding page")

	return records, next, len(rows) == pageLimit, nil
}
