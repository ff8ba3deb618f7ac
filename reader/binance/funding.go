package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// pageLimit is the maximum page size of /fapi/v1/fundingRate; a shorter page
// means the history is exhausted.
const pageLimit = 1000

// Binance_Funding_Reader pages through USDⓈ-M futures funding history using
// the binance-go futures client.
type Binance_Funding_Reader struct {
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// Binance_Funding_NewReader creates the Binance adapter. The futures client
// gets a pooled HTTP client and is pointed at the configured base URL, which
// is also how tests redirect it at a local server.
func Binance_Funding_NewReader(cfg config.ExchangeSourceConfig, timeout time.Duration) *Binance_Funding_Reader {
	client := futures.NewClient("", "")
	client.HTTPClient = reader.NewHTTPClient(cfg.ConnectionPool, timeout)

	if parsed, err := url.Parse(cfg.URL); err == nil && parsed.Host != "" {
		client.SetApiEndpoint(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host))
	}

	return &Binance_Funding_Reader{
		client:  client,
		limiter: reader.NewLimiter(cfg.RateLimit),
		log:     logger.GetLogger(),
	}
}

func (r *Binance_Funding_Reader) Exchange() models.Exchange { return models.ExchangeBinance }

// FetchPage requests up to 1000 funding events starting at cur.Start
// (inclusive). The next cursor begins one second after the page's last
// event.
func (r *Binance_Funding_Reader) FetchPage(ctx context.Context, market models.Market, cur reader.Cursor) ([]models.FundingRecord, reader.Cursor, bool, error) {
	if err := reader.CheckSwap(models.ExchangeBinance, market); err != nil {
		return nil, cur, false, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, cur, false, err
	}

	rows, err := r.client.NewFundingRateService().
		Symbol(market.ID).
		StartTime(cur.Start).
		Limit(pageLimit).
		Do(ctx)
	if err != nil {
		return nil, cur, false, fmt.Errorf("binance funding fetch for %s: %w", market.ID, err)
	}

	records := make([]models.FundingRecord, 0, len(rows))
	for _, row := range rows {
		fundingRate, err := strconv.ParseFloat(row.FundingRate, 64)
		if err != nil {
			return nil, cur, false, fmt.Errorf("binance funding rate %q for %s: %w", row.FundingRate, market.ID, err)
		}
		records = append(records, models.FundingRecord{
			Exchange:       models.ExchangeBinance,
			Pair:           market.Pair,
			RawPair:        market.ID,
			FundingRate:    fundingRate,
			FundingTime:    row.FundingTime,
			FundingTimeStr: models.FundingTimeString(row.FundingTime),
		})
	}

	next := reader.Cursor{Start: cur.Start, Page: cur.Page + 1}
	if len(records) > 0 {
		next.Start = records[len(records)-1].FundingTime + 1000
	}

	r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol":  market.ID,
		"start":   cur.Start,
		"records": len(records),
	}).Debug("fetched funding page")

	return records, next, len(rows) == pageLimit, nil
}
