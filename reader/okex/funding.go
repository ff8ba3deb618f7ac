package okex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// Okex_Funding_Reader reads swap funding history from the v3 REST API. OKEx
// has no paginated history: the first page is the bounded
// historical_funding_rate listing, the second is the funding_time probe for
// the rate pending settlement, and the crawl ends after that. The probe
// record may be revised before its slot becomes final history, which is why
// resume points never trust the last stored OKEx record.
type Okex_Funding_Reader struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func Okex_Funding_NewReader(cfg config.ExchangeSourceConfig, timeout time.Duration) *Okex_Funding_Reader {
	return &Okex_Funding_Reader{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  reader.NewHTTPClient(cfg.ConnectionPool, timeout),
		limiter: reader.NewLimiter(cfg.RateLimit),
		log:     logger.GetLogger(),
	}
}

func (r *Okex_Funding_Reader) Exchange() models.Exchange { return models.ExchangeOKEx }

func (r *Okex_Funding_Reader) FetchPage(ctx context.Context, market models.Market, cur reader.Cursor) ([]models.FundingRecord, reader.Cursor, bool, error) {
	if err := reader.CheckSwap(models.ExchangeOKEx, market); err != nil {
		return nil, cur, false, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, cur, false, err
	}

	next := reader.Cursor{Start: cur.Start, Page: cur.Page + 1}
	if cur.Page <= 1 {
		records, err := r.fetchHistory(ctx, market)
		return records, next, err == nil, err
	}
	records, err := r.fetchCurrent(ctx, market)
	return records, next, false, err
}

// fetchHistory lists the settled funding rates the API still exposes,
// newest first.
func (r *Okex_Funding_Reader) fetchHistory(ctx context.Context, market models.Market) ([]models.FundingRecord, error) {
	endpoint := fmt.Sprintf("/api/swap/v3/instruments/%s/historical_funding_rate", market.ID)
	body, err := r.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []models.OkexFundingEntry
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("okex funding history decode for %s: %w", market.ID, err)
	}

	records := make([]models.FundingRecord, 0, len(rows))
	for _, row := range rows {
		record, err := r.record(market, row.FundingTime, row.FundingRate)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	r.log.WithComponent("okex_reader").WithFields(logger.Fields{
		"instrument": market.ID,
		"records":    len(records),
	}).Debug("fetched funding history")

	return records, nil
}

// fetchCurrent probes the pending settlement. The settled rate is preferred;
// before settlement the API only carries an estimate, and when neither is
// present the probe contributes nothing.
func (r *Okex_Funding_Reader) fetchCurrent(ctx context.Context, market models.Market) ([]models.FundingRecord, error) {
	endpoint := fmt.Sprintf("/api/swap/v3/instruments/%s/funding_time", market.ID)
	body, err := r.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var row models.OkexFundingTime
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("okex funding time decode for %s: %w", market.ID, err)
	}

	raw := row.FundingRate
	if raw == "" {
		raw = row.EstimatedRate
	}
	if raw == "" || row.FundingTime == "" {
		r.log.WithComponent("okex_reader").WithFields(logger.Fields{"instrument": market.ID}).
			Debug("funding time probe carried no rate")
		return nil, nil
	}

	record, err := r.record(market, row.FundingTime, raw)
	if err != nil {
		return nil, err
	}
	return []models.FundingRecord{record}, nil
}

func (r *Okex_Funding_Reader) record(market models.Market, isoTime, rawRate string) (models.FundingRecord, error) {
	ts, err := time.Parse(time.RFC3339, isoTime)
	if err != nil {
		return models.FundingRecord{}, fmt.Errorf("okex funding time %q for %s: %w", isoTime, market.ID, err)
	}
	fundingRate, err := strconv.ParseFloat(rawRate, 64)
	if err != nil {
		return models.FundingRecord{}, fmt.Errorf("okex funding rate %q for %s: %w", rawRate, market.ID, err)
	}
	ms := ts.UnixMilli()
	return models.FundingRecord{
		Exchange:       models.ExchangeOKEx,
		Pair:           market.Pair,
		RawPair:        market.ID,
		FundingRate:    fundingRate,
		FundingTime:    ms,
		FundingTimeStr: models.FundingTimeString(ms),
	}, nil
}

func (r *Okex_Funding_Reader) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("okex funding request %s: %w", endpoint, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okex funding fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("okex funding body %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &reader.StatusError{
			Exchange: models.ExchangeOKEx,
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     reader.Snippet(body),
		}
	}
	return body, nil
}
