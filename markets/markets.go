// Package markets resolves which perpetual-swap markets each exchange
// currently lists, normalized into the shared Market descriptor.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// Provider lists the crawlable swap markets of an exchange.
type Provider interface {
	Markets(ctx context.Context, exchange models.Exchange) ([]models.Market, error)
}

// Discovery implements Provider against the public instrument listings. One
// request per exchange, at startup; an unreachable listing is a startup
// failure, not something to retry per market.
type Discovery struct {
	sources *config.SourceConfig
	client  *http.Client
	log     *logger.Log
}

func NewDiscovery(cfg *config.Config, timeout time.Duration) *Discovery {
	return &Discovery{
		sources: &cfg.Source,
		client:  reader.NewHTTPClient(config.ConnectionPoolConfig{}, timeout),
		log:     logger.GetLogger(),
	}
}

func (d *Discovery) Markets(ctx context.Context, exchange models.Exchange) ([]models.Market, error) {
	src, ok := d.sources.Exchange(strings.ToLower(string(exchange)))
	if !ok || src.URL == "" {
		return nil, fmt.Errorf("no source configured for exchange %s", exchange)
	}
	base := strings.TrimRight(src.URL, "/")

	var (
		found []models.Market
		err   error
	)
	switch exchange {
	case models.ExchangeBinance:
		found, err = d.binanceMarkets(ctx, base)
	case models.ExchangeBitMEX:
		found, err = d.bitmexMarkets(ctx, base)
	case models.ExchangeHuobi:
		found, err = d.huobiMarkets(ctx, base)
	case models.ExchangeOKEx:
		found, err = d.okexMarkets(ctx, base)
	default:
		return nil, fmt.Errorf("unsupported exchange %s", exchange)
	}
	if err != nil {
		return nil, err
	}

	d.log.WithComponent("markets").WithFields(logger.Fields{
		"exchange": exchange,
		"markets":  len(found),
	}).Info("discovered swap markets")

	return found, nil
}

// binanceMarkets lists USDⓈ-M futures symbols and keeps the tradable
// perpetuals; delivery contracts share the same listing.
func (d *Discovery) binanceMarkets(ctx context.Context, base string) ([]models.Market, error) {
	var payload struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			ContractType string `json:"contractType"`
			Status       string `json:"status"`
			BaseAsset    string `json:"baseAsset"`
			QuoteAsset   string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := d.get(ctx, models.ExchangeBinance, base+"/fapi/v1/exchangeInfo", &payload); err != nil {
		return nil, err
	}

	found := make([]models.Market, 0, len(payload.Symbols))
	for _, s := range payload.Symbols {
		if s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		found = append(found, models.Market{
			ID:       s.Symbol,
			Pair:     symbols.Pair("binance", s.BaseAsset, s.QuoteAsset),
			BaseID:   s.BaseAsset,
			Exchange: models.ExchangeBinance,
			Type:     models.MarketTypeSwap,
		})
	}
	return found, nil
}

// bitmexMarkets lists active instruments and keeps the perpetual contracts,
// identified by the FFWCSX instrument type.
func (d *Discovery) bitmexMarkets(ctx context.Context, base string) ([]models.Market, error) {
	var payload []struct {
		Symbol        string `json:"symbol"`
		RootSymbol    string `json:"rootSymbol"`
		Typ           string `json:"typ"`
		QuoteCurrency string `json:"quoteCurrency"`
	}
	if err := d.get(ctx, models.ExchangeBitMEX, base+"/instrument/active", &payload); err != nil {
		return nil, err
	}

	found := make([]models.Market, 0, len(payload))
	for _, s := range payload {
		if s.Typ != "FFWCSX" {
			continue
		}
		found = append(found, models.Market{
			ID:       s.Symbol,
			Pair:     symbols.Pair("bitmex", s.RootSymbol, s.QuoteCurrency),
			BaseID:   s.RootSymbol,
			Exchange: models.ExchangeBitMEX,
			Type:     models.MarketTypeSwap,
		})
	}
	return found, nil
}

// huobiMarkets lists the coin-margined swap contracts; they all quote in USD.
func (d *Discovery) huobiMarkets(ctx context.Context, base string) ([]models.Market, error) {
	var payload struct {
		Status string `json:"status"`
		Data   []struct {
			Symbol         string `json:"symbol"`
			ContractCode   string `json:"contract_code"`
			ContractStatus int    `json:"contract_status"`
		} `json:"data"`
	}
	if err := d.get(ctx, models.ExchangeHuobi, base+"/swap-api/v1/swap_contract_info", &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("huobi contract listing status %q", payload.Status)
	}

	found := make([]models.Market, 0, len(payload.Data))
	for _, s := range payload.Data {
		if s.ContractStatus != 1 {
			continue
		}
		found = append(found, models.Market{
			ID:       s.ContractCode,
			Pair:     symbols.Pair("huobi", s.Symbol, "USD"),
			BaseID:   s.Symbol,
			Exchange: models.ExchangeHuobi,
			Type:     models.MarketTypeSwap,
		})
	}
	return found, nil
}

func (d *Discovery) okexMarkets(ctx context.Context, base string) ([]models.Market, error) {
	var payload []struct {
		InstrumentID    string `json:"instrument_id"`
		UnderlyingIndex string `json:"underlying_index"`
		QuoteCurrency   string `json:"quote_currency"`
	}
	if err := d.get(ctx, models.ExchangeOKEx, base+"/api/swap/v3/instruments", &payload); err != nil {
		return nil, err
	}

	found := make([]models.Market, 0, len(payload))
	for _, s := range payload {
		found = append(found, models.Market{
			ID:       s.InstrumentID,
			Pair:     symbols.Pair("okex", s.UnderlyingIndex, s.QuoteCurrency),
			BaseID:   s.UnderlyingIndex,
			Exchange: models.ExchangeOKEx,
			Type:     models.MarketTypeSwap,
		})
	}
	return found, nil
}

func (d *Discovery) get(ctx context.Context, exchange models.Exchange, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s instrument request: %w", exchange, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s instrument fetch: %w", exchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%s instrument body: %w", exchange, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &reader.StatusError{
			Exchange: exchange,
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     reader.Snippet(body),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s instrument decode: %w", exchange, err)
	}
	return nil
}
