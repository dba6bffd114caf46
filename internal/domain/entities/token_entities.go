package entities

import "time"

// TokenData is the price snapshot returned for a single token.
type TokenData struct {
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	Volume24h float64 `json:"volume24h"`
	Change24h float64 `json:"change24h"`
}

// CachedTokenData is a TokenData stamped with when it was fetched and whether
// its market cap came from a real supply figure.
type CachedTokenData struct {
	TokenData
	Timestamp  int64 `json:"timestamp"`
	IsAccurate bool  `json:"isAccurate"`
}

// Age returns how old the entry is relative to now.
func (c CachedTokenData) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.Timestamp))
}

// FailedFetchRecord tracks the last failed lookup of an address.
type FailedFetchRecord struct {
	Timestamp    int64 `json:"timestamp"`
	AttemptCount int   `json:"attemptCount"`
}

// TokenSupply is a cached circulating/total supply figure.
type TokenSupply struct {
	Supply    float64 `json:"supply"`
	Timestamp int64   `json:"timestamp"`
}

// SupplySource names where a supply figure came from.
type SupplySource string

const (
	SupplySourceRPC      SupplySource = "rpc"
	SupplySourceBirdeye  SupplySource = "birdeye"
	SupplySourceEstimate SupplySource = "estimate"
	SupplySourceCache    SupplySource = "cache"
)

// BirdeyePrice is the upstream price payload for one token.
type BirdeyePrice struct {
	Value           float64  `json:"value"`
	UpdateUnixTime  int64    `json:"updateUnixTime,omitempty"`
	UpdateHumanTime string   `json:"updateHumanTime,omitempty"`
	PriceChange24h  float64  `json:"priceChange24h"`
	Liquidity       *float64 `json:"liquidity,omitempty"`
	Volume24hUSD    *float64 `json:"v24hUSD,omitempty"`
}

// TokenOverview is the subset of Birdeye's token overview used for supply.
type TokenOverview struct {
	Address           string  `json:"address"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Decimals          int     `json:"decimals"`
	Price             float64 `json:"price"`
	Supply            float64 `json:"supply"`
	CirculatingSupply float64 `json:"circulatingSupply"`
	MarketCap         float64 `json:"mc"`
	Volume24hUSD      float64 `json:"v24hUSD"`
	PriceChange24h    float64 `json:"priceChange24hPercent"`
	LogoURI           string  `json:"logoURI"`
}

// PriceResult is one entry of the aggregation response: nil means the
// upstream chunk holding this address failed.
type PriceResult struct {
	Success bool         `json:"success"`
	Data    BirdeyePrice `json:"data"`
}

// CacheStats counts entries held by each tier of the price cache.
type CacheStats struct {
	Prices        int `json:"prices"`
	AccuratePrice int `json:"accuratePrices"`
	Failed        int `json:"failed"`
	Supplies      int `json:"supplies"`
	Tracked       int `json:"tracked"`
}
