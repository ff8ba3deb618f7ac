package models

// Exchange identifies one of the supported derivatives venues. Values match
// the names used in persisted records and file paths.
type Exchange string

const (
	ExchangeBinance Exchange = "Binance"
	ExchangeBitMEX  Exchange = "BitMEX"
	ExchangeHuobi   Exchange = "Huobi"
	ExchangeOKEx    Exchange = "OKEx"
)

// Exchanges lists every supported venue in crawl order.
var Exchanges = []Exchange{ExchangeBinance, ExchangeBitMEX, ExchangeHuobi, ExchangeOKEx}

// Valid reports whether e is one of the supported exchanges.
func (e Exchange) Valid() bool {
	switch e {
	case ExchangeBinance, ExchangeBitMEX, ExchangeHuobi, ExchangeOKEx:
		return true
	}
	return false
}

// MarketTypeSwap is the only market type this service crawls: perpetual
// (non-expiring) swap contracts.
const MarketTypeSwap = "Swap"

// Market describes one tradable instrument as reported by the metadata
// provider.
type Market struct {
	ID       string   `json:"id"`     // exchange-native instrument id, e.g. "BTCUSDT", "BTC-USD-SWAP"
	Pair     string   `json:"pair"`   // normalized pair, e.g. "BTC/USDT"
	BaseID   string   `json:"baseId"` // exchange-native base currency id, e.g. "XBT" on BitMEX
	Exchange Exchange `json:"exchange"`
	Type     string   `json:"type"` // "Swap" for perpetual contracts
}
