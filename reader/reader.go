package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fundingflow/logger"
	"fundingflow/models"
)

// ErrMarketType reports a market descriptor an adapter cannot serve. The
// supervisor treats it as a precondition failure rather than a transient
// fetch error: the offending market is aborted, not retried.
var ErrMarketType = errors.New("market is not a crawlable perpetual swap")

// Cursor marks where the next page request starts. Start is an epoch
// millisecond lower bound; Page is the page index for exchanges that
// paginate by index and a call counter for fixed-call adapters.
type Cursor struct {
	Start int64
	Page  int
}

// Pager fetches one page of funding-rate history for a single market.
// Implementations normalize records, advance the cursor according to their
// exchange's pagination idiom and signal exhaustion through more=false.
// Page calls for one market are strictly sequential; implementations are
// safe for concurrent use across markets.
type Pager interface {
	Exchange() models.Exchange
	FetchPage(ctx context.Context, market models.Market, cur Cursor) (records []models.FundingRecord, next Cursor, more bool, err error)
}

// CheckSwap validates the shared adapter precondition: the market belongs to
// the adapter's exchange and is a perpetual swap.
func CheckSwap(exchange models.Exchange, m models.Market) error {
	if m.Exchange != exchange || m.Type != models.MarketTypeSwap {
		return fmt.Errorf("%w: %s %s type %q", ErrMarketType, m.Exchange, m.ID, m.Type)
	}
	return nil
}

// StatusError is returned when an exchange answers with a non-success HTTP
// status. The body snippet is kept for the retry log line.
type StatusError struct {
	Exchange models.Exchange
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d for %s: %s", e.Exchange, e.Code, e.Endpoint, e.Body)
}

// Crawl drives p through every page of market's funding history, starting at
// since (epoch ms). Pages are requested sequentially until the adapter
// signals exhaustion. The accumulated result is filtered to
// fundingTime >= since, because some exchanges ignore the start parameter,
// and sorted ascending by fundingTime.
func Crawl(ctx context.Context, p Pager, market models.Market, since int64) ([]models.FundingRecord, error) {
	cur := Cursor{Start: since, Page: 1}

	var fetched []models.FundingRecord
	for {
		records, next, more, err := p.FetchPage(ctx, market, cur)
		if err != nil {
			return nil, err
		}
		logger.IncrementPage(string(market.Exchange))
		fetched = append(fetched, records...)
		if !more {
			break
		}
		cur = next
	}

	kept := make([]models.FundingRecord, 0, len(fetched))
	for _, r := range fetched {
		if r.FundingTime >= since {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].FundingTime < kept[j].FundingTime })
	return kept, nil
}
