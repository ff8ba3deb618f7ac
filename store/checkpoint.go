package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// Checkpoint reads and replaces the persisted funding sequence of a single
// market. Every market owns its own key, so concurrent crawls never touch
// the same blob.
type Checkpoint struct {
	blob         Blob
	defaultStart int64
	log          *logger.Log
}

// NewCheckpoint wraps blob. defaultStart is the epoch-millisecond crawl
// start used when a market has no usable history; zero selects the earliest
// funding data the supported exchanges expose.
func NewCheckpoint(blob Blob, defaultStart int64) *Checkpoint {
	if defaultStart <= 0 {
		defaultStart = config.DefaultStartTimeMs
	}
	return &Checkpoint{
		blob:         blob,
		defaultStart: defaultStart,
		log:          logger.GetLogger(),
	}
}

// Key maps a market onto its blob key: the exchange as directory, the pair
// with the slash flattened as file name.
func Key(m models.Market) string {
	return fmt.Sprintf("%s/%s.json", m.Exchange, strings.ReplaceAll(m.Pair, "/", "-"))
}

// History returns the previously persisted sequence for m, oldest first.
// A missing blob is a first crawl; unreadable or unparsable content is
// logged and treated as empty so one corrupt file cannot take the market
// out of rotation.
func (c *Checkpoint) History(ctx context.Context, m models.Market) []models.FundingRecord {
	data, err := c.blob.Get(ctx, Key(m))
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	if err != nil {
		c.log.WithComponent("checkpoint").WithMarket(string(m.Exchange), m.Pair).
			WithError(err).Warn("stored history unreadable, treating as empty")
		return nil
	}

	var records []models.FundingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.log.WithComponent("checkpoint").WithMarket(string(m.Exchange), m.Pair).
			WithError(err).Warn("stored history unparsable, treating as empty")
		return nil
	}
	return records
}

// ResumeTime computes where the next crawl starts: one millisecond past the
// newest trusted record. The newest stored OKEx record may stem from the
// funding_time probe and can still be revised before settlement, so OKEx
// resumes from the record before it.
func (c *Checkpoint) ResumeTime(m models.Market, history []models.FundingRecord) int64 {
	trusted := len(history)
	if m.Exchange == models.ExchangeOKEx {
		trusted--
	}
	if trusted <= 0 {
		return c.defaultStart
	}
	return history[trusted-1].FundingTime + 1
}

// Persist atomically replaces the stored sequence with records, pretty
// printed and newline terminated. It reports the number of bytes written.
func (c *Checkpoint) Persist(ctx context.Context, m models.Market, records []models.FundingRecord) (int, error) {
	if records == nil {
		records = []models.FundingRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal history for %s %s: %w", m.Exchange, m.Pair, err)
	}
	data = append(data, '\n')

	if err := c.blob.Put(ctx, Key(m), data); err != nil {
		return 0, err
	}
	return len(data), nil
}
