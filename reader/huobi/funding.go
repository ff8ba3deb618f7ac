package huobi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// pageSize is the page_size parameter of swap_historical_funding_rate; a raw
// page shorter than this means the history is exhausted.
const pageSize = 50

const fundingPath = "/swap-api/v1/swap_historical_funding_rate"

// Huobi_Funding_Reader pages through coin-margined swap funding history.
// Huobi paginates by page index rather than by time, newest first, so the
// same settlement can reappear across runs; records at or before the cursor
// start are dropped here rather than trusting the page boundaries.
type Huobi_Funding_Reader struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func Huobi_Funding_NewReader(cfg config.ExchangeSourceConfig, timeout time.Duration) *Huobi_Funding_Reader {
	return &Huobi_Funding_Reader{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  reader.NewHTTPClient(cfg.ConnectionPool, timeout),
		limiter: reader.NewLimiter(cfg.RateLimit),
		log:     logger.GetLogger(),
	}
}

func (r *Huobi_Funding_Reader) Exchange() models.Exchange { return models.ExchangeHuobi }

// FetchPage requests page cur.Page of the contract's funding history. The
// continuation signal is based on the raw page length, before the filter
// against cur.Start; the next cursor advances the page index and keeps the
// start unchanged.
func (r *Huobi_Funding_Reader) FetchPage(ctx context.Context, market models.Market, cur reader.Cursor) ([]models.FundingRecord, reader.Cursor, bool, error) {
	if err := reader.CheckSwap(models.ExchangeHuobi, market); err != nil {
		return nil, cur, false, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, cur, false, err
	}

	query := url.Values{}
	query.Set("contract_code", market.ID)
	query.Set("page_index", strconv.Itoa(cur.Page))
	query.Set("page_size", strconv.Itoa(pageSize))
	endpoint := fmt.Sprintf("%s%s?%s", r.baseURL, fundingPath, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, cur, false, fmt.Errorf("huobi funding request for %s: %w", market.ID, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, cur, false, fmt.Errorf("huobi funding fetch for %s: %w", market.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, cur, false, fmt.Errorf("huobi funding body for %s: %w", market.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, cur, false, &reader.StatusError{
			Exchange: models.ExchangeHuobi,
			Endpoint: fundingPath,
			Code:     resp.StatusCode,
			Body:     reader.Snippet(body),
		}
	}

	var page models.HuobiFundingPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, cur, false, fmt.Errorf("huobi funding decode for %s: %w", market.ID, err)
	}
	if page.Status != "ok" {
		return nil, cur, false, fmt.Errorf("huobi funding status %q for %s: %s", page.Status, market.ID, reader.Snippet(body))
	}

	raw := page.Data.Data
	records := make([]models.FundingRecord, 0, len(raw))
	for _, row := range raw {
		ms, err := strconv.ParseInt(row.FundingTime, 10, 64)
		if err != nil {
			return nil, cur, false, fmt.Errorf("huobi funding time %q for %s: %w", row.FundingTime, market.ID, err)
		}
		if ms < cur.Start {
			continue
		}
		fundingRate, err := strconv.ParseFloat(row.FundingRate, 64)
		if err != nil {
			return nil, cur, false, fmt.Errorf("huobi funding rate %q for %s: %w", row.FundingRate, market.ID, err)
		}
		records = append(records, models.FundingRecord{
			Exchange:       models.ExchangeHuobi,
			Pair:           market.Pair,
			RawPair:        row.ContractCode,
			FundingRate:    fundingRate,
			FundingTime:    ms,
			FundingTimeStr: models.FundingTimeString(ms),
		})
	}

	r.log.WithComponent("huobi_reader").WithFields(logger.Fields{
		"contract": market.ID,
		"page":     cur.Page,
		"raw":      len(raw),
		"kept":     len(records),
	}).Debug("fetched funding page")

	next := reader.Cursor{Start: cur.Start, Page: cur.Page + 1}
	return records, next, len(raw) == pageSize, nil
}
