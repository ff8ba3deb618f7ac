package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/markets"
	"fundingflow/models"
	"fundingflow/reader"
	"fundingflow/store"
)

// Orchestrator fans the crawl out across exchanges: it resolves each enabled
// exchange's swap markets, then launches one supervised task per market.
// Tasks share nothing but the checkpoint backend, and every market owns its
// own key there.
type Orchestrator struct {
	provider   markets.Provider
	pagers     map[models.Exchange]reader.Pager
	checkpoint *store.Checkpoint
	crawl      config.CrawlerConfig
	archive    Archiver
	log        *logger.Log
}

// NewOrchestrator wires the crawl together. archive may be nil when no
// archive storage is configured.
func NewOrchestrator(provider markets.Provider, pagers map[models.Exchange]reader.Pager, cp *store.Checkpoint, crawl config.CrawlerConfig, archive Archiver) *Orchestrator {
	return &Orchestrator{
		provider:   provider,
		pagers:     pagers,
		checkpoint: cp,
		crawl:      crawl,
		archive:    archive,
		log:        logger.GetLogger(),
	}
}

// Run resolves markets for every exchange with a registered pager and crawls
// them all. A provider failure aborts the run before any task launches; once
// tasks are running, no market's failure crosses to another, and Run returns
// nil after every task reaches its terminal state.
func (o *Orchestrator) Run(ctx context.Context) error {
	type task struct {
		sup    *Supervisor
		market models.Market
	}
	var tasks []task
	for _, exchange := range models.Exchanges {
		pager, ok := o.pagers[exchange]
		if !ok {
			continue
		}
		found, err := o.provider.Markets(ctx, exchange)
		if err != nil {
			return fmt.Errorf("resolve %s markets: %w", exchange, err)
		}
		logger.AddMarkets(string(exchange), len(found))

		sup := NewSupervisor(pager, o.checkpoint, o.crawl.Retry, o.archive)
		for _, m := range found {
			tasks = append(tasks, task{sup: sup, market: m})
		}
	}

	o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"markets":   len(tasks),
		"exchanges": len(o.pagers),
	}).Info("starting crawl run")

	var sem chan struct{}
	if o.crawl.MaxConcurrent > 0 {
		sem = make(chan struct{}, o.crawl.MaxConcurrent)
	}

	var (
		wg      sync.WaitGroup
		aborted int64
	)
	for _, tk := range tasks {
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					atomic.AddInt64(&aborted, 1)
					return
				}
			}
			if err := tk.sup.Run(ctx, tk.market); err != nil {
				atomic.AddInt64(&aborted, 1)
			}
		}(tk)
	}
	wg.Wait()

	o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"markets": len(tasks),
		"aborted": atomic.LoadInt64(&aborted),
	}).Info("crawl run complete")
	return nil
}
