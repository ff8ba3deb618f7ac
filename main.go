package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/crawler"
	"fundingflow/internal/dashboard"
	"fundingflow/logger"
	"fundingflow/markets"
	"fundingflow/models"
	"fundingflow/reader"
	"fundingflow/reader/binance"
	"fundingflow/reader/bitmex"
	"fundingflow/reader/huobi"
	"fundingflow/reader/okex"
	"fundingflow/store"
	"fundingflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An interrupt cancels the run; in-flight persists still complete, so
	// every checkpoint stays whole.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, "")
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to configure dashboard")
		os.Exit(1)
	}
	if dash != nil {
		go func() {
			if err := dash.Run(ctx, cfg.Fundingflow.Name); err != nil {
				log.WithComponent("dashboard").WithError(err).Warn("dashboard server exited")
			}
		}()
		log.WithComponent("dashboard").WithFields(logger.Fields{
			"address": dash.Address(),
		}).Info("dashboard listening")
	}

	timeout := cfg.Crawler.Timeout

	pagers := make(map[models.Exchange]reader.Pager)
	if cfg.Source.Binance.Enabled {
		pagers[models.ExchangeBinance] = binance.Binance_Funding_NewReader(cfg.Source.Binance, timeout)
	}
	if cfg.Source.Bitmex.Enabled {
		pagers[models.ExchangeBitMEX] = bitmex.Bitmex_Funding_NewReader(cfg.Source.Bitmex, timeout)
	}
	if cfg.Source.Huobi.Enabled {
		pagers[models.ExchangeHuobi] = huobi.Huobi_Funding_NewReader(cfg.Source.Huobi, timeout)
	}
	if cfg.Source.Okex.Enabled {
		pagers[models.ExchangeOKEx] = okex.Okex_Funding_NewReader(cfg.Source.Okex, timeout)
	}
	if len(pagers) == 0 {
		log.WithComponent("main").Error("no exchange sources enabled")
		os.Exit(1)
	}

	var blob store.Blob
	if cfg.Storage.S3.Enabled {
		blob, err = store.NewS3Blob(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 store")
			os.Exit(1)
		}
	} else {
		blob = store.NewFileBlob(cfg.Storage.Data.Directory)
	}
	checkpoint := store.NewCheckpoint(blob, cfg.Crawler.StartTimeMs)

	var archive crawler.Archiver
	if cfg.Storage.Archive.Enabled {
		archiver, err := writer.NewArchiver(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		archive = archiver
	} else {
		log.WithComponent("main").Info("archive storage disabled; skipping parquet mirror")
	}

	provider := markets.NewDiscovery(cfg, timeout)
	orchestrator := crawler.NewOrchestrator(provider, pagers, checkpoint, cfg.Crawler, archive)

	if err := orchestrator.Run(ctx); err != nil {
		log.WithError(err).Error("crawl run failed to start")
		os.Exit(1)
	}

	log.Info("fundingflow finished")
}
