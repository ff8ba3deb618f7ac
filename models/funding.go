package models

import "time"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// FundingRecord is one settled (or, for OKEx's current-rate probe, pending)
// funding event for a perpetual swap. Records are immutable; a persisted
// sequence for one (exchange, pair) is sorted ascending by FundingTime and
// contains no duplicate FundingTime values.
type FundingRecord struct {
	Exchange       Exchange `json:"exchange"`
	Pair           string   `json:"pair"`
	RawPair        string   `json:"rawPair"`
	FundingRate    float64  `json:"fundingRate"`
	FundingTime    int64    `json:"fundingTime"`
	FundingTimeStr string   `json:"fundingTimeStr"`
}

// FundingTimeString renders an epoch-millisecond instant as the canonical
// ISO-8601 string stored in FundingTimeStr, e.g. "2019-09-10T00:00:00.000Z".
func FundingTimeString(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BITMEX ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BitmexFunding mirrors one entry of BitMEX's GET /api/v1/funding response.
// Timestamps are ISO-8601 strings; the rate is a plain JSON number.
type BitmexFunding struct {
	Timestamp        string  `json:"timestamp"`
	Symbol           string  `json:"symbol"`
	FundingInterval  string  `json:"fundingInterval"`
	FundingRate      float64 `json:"fundingRate"`
	FundingRateDaily float64 `json:"fundingRateDaily"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// HUOBI /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// HuobiFundingPage mirrors Huobi's swap_historical_funding_rate response.
// The payload nests the page inside data.data; numeric values, including
// the epoch-millisecond funding_time, arrive as strings.
type HuobiFundingPage struct {
	Status string `json:"status"`
	Data   struct {
		TotalPage   int                `json:"total_page"`
		CurrentPage int                `json:"current_page"`
		TotalSize   int                `json:"total_size"`
		Data        []HuobiFundingRate `json:"data"`
	} `json:"data"`
	Ts int64 `json:"ts"`
}

// HuobiFundingRate is a single entry of a Huobi funding-rate page.
type HuobiFundingRate struct {
	Symbol       string `json:"symbol"`
	ContractCode string `json:"contract_code"`
	FundingTime  string `json:"funding_time"`
	FundingRate  string `json:"funding_rate"`
	RealizedRate string `json:"realized_rate"`
	AvgPremium   string `json:"avg_premium_index"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// OKEX //////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// OkexFundingEntry mirrors one entry of OKEx v3's historical_funding_rate
// response. funding_time is an ISO-8601 string.
type OkexFundingEntry struct {
	InstrumentID string `json:"instrument_id"`
	FundingRate  string `json:"funding_rate"`
	RealizedRate string `json:"realized_rate"`
	InterestRate string `json:"interest_rate"`
	FundingTime  string `json:"funding_time"`
}

// OkexFundingTime mirrors OKEx v3's funding_time response: the pending
// settlement for the instrument, not yet final history.
type OkexFundingTime struct {
	InstrumentID   string `json:"instrument_id"`
	FundingTime    string `json:"funding_time"`
	FundingRate    string `json:"funding_rate"`
	EstimatedRate  string `json:"estimated_rate"`
	SettlementTime string `json:"settlement_time"`
}
