// Package crawler runs the funding-history crawl: one supervised task per
// market, fanned out per exchange.
package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/processor"
	"fundingflow/reader"
	"fundingflow/store"
)

// Archiver mirrors a successfully persisted sequence into long-term
// storage. Archiving is best effort and never blocks the crawl.
type Archiver interface {
	Archive(ctx context.Context, market models.Market, records []models.FundingRecord) error
}

// Supervisor drives one market's crawl to its terminal state: resume point
// from the checkpoint, paged fetch, merge, persist. Transient failures are
// retried with the configured delay; by default there is no attempt limit,
// so a dead source blocks only its own market. A market-type precondition
// failure aborts the task instead of retrying.
type Supervisor struct {
	pager      reader.Pager
	checkpoint *store.Checkpoint
	retry      config.RetryConfig
	archive    Archiver
	log        *logger.Log
}

// NewSupervisor builds a supervisor for one exchange's markets. archive may
// be nil when no archive storage is configured.
func NewSupervisor(p reader.Pager, cp *store.Checkpoint, retry config.RetryConfig, archive Archiver) *Supervisor {
	return &Supervisor{
		pager:      p,
		checkpoint: cp,
		retry:      retry,
		archive:    archive,
		log:        logger.GetLogger(),
	}
}

// Run returns nil once the market's merged history is persisted. It returns
// a non-nil error only when the task is aborted: market-type violation,
// cancelled context, or a configured attempt limit running out.
func (s *Supervisor) Run(ctx context.Context, market models.Market) error {
	log := s.log.WithComponent("crawler").WithMarket(string(market.Exchange), market.Pair)
	delay := &backoff.Backoff{
		Min:    s.retry.BaseDelay,
		Max:    s.retry.MaxDelay,
		Factor: s.retry.BackoffMultiplier,
	}

	for attempt := 1; ; attempt++ {
		err := s.crawlOnce(ctx, market, log)
		if err == nil {
			logger.IncrementMarketDone(string(market.Exchange))
			return nil
		}
		if errors.Is(err, reader.ErrMarketType) {
			logger.IncrementMarketFailed(string(market.Exchange))
			log.WithError(err).Error("market fails the adapter precondition, aborting")
			return err
		}
		if ctx.Err() != nil {
			logger.IncrementMarketFailed(string(market.Exchange))
			log.WithError(ctx.Err()).Warn("crawl cancelled")
			return ctx.Err()
		}
		if s.retry.MaxAttempts > 0 && attempt >= s.retry.MaxAttempts {
			logger.IncrementMarketFailed(string(market.Exchange))
			log.WithError(err).Error("crawl failed, attempt limit reached")
			return err
		}

		logger.IncrementRetry(string(market.Exchange))
		wait := delay.Duration()
		log.WithError(err).WithFields(logger.Fields{
			"attempt":  attempt,
			"retry_in": wait.String(),
		}).Warn("crawl failed, retrying")

		select {
		case <-ctx.Done():
			logger.IncrementMarketFailed(string(market.Exchange))
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Supervisor) crawlOnce(ctx context.Context, market models.Market, log *logger.Entry) error {
	history := s.checkpoint.History(ctx, market)
	since := s.checkpoint.ResumeTime(market, history)

	fresh, err := reader.Crawl(ctx, s.pager, market, since)
	if err != nil {
		return err
	}

	merged := processor.Merge(history, fresh)
	bytes, err := s.checkpoint.Persist(ctx, market, merged)
	if err != nil {
		return err
	}
	logger.AddRecordsPersisted(string(market.Exchange), len(merged), bytes)

	if s.archive != nil && len(merged) != len(history) {
		// The checkpoint is already durable; a failed mirror upload is
		// not worth re-crawling the market.
		if err := s.archive.Archive(ctx, market, merged); err != nil {
			log.WithError(err).Warn("archive upload failed")
		}
	}

	log.WithFields(logger.Fields{
		"since": since,
		"new":   len(merged) - len(history),
		"total": len(merged),
	}).Info("funding history persisted")
	return nil
}
