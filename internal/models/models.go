// Package models provides domain models for quote tracking.
package models

import (
	"time"
)

// AssetClass is the instrument category a symbol is classified into.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetIndex  AssetClass = "index"
	AssetFX     AssetClass = "fx"
	AssetCrypto AssetClass = "crypto"
)

// SessionState is the coarse trading-session badge shown next to prices.
type SessionState string

const (
	SessionOpen       SessionState = "open"
	SessionPreMarket  SessionState = "pre-market"
	SessionAfterHours SessionState = "after-hours"
	SessionClosed     SessionState = "closed"
)

// MarketState is the provider-reported state of the quoted market.
type MarketState string

const (
	MarketStateRegular MarketState = "REGULAR"
	MarketStatePre     MarketState = "PRE"
	MarketStatePost    MarketState = "POST"
	MarketStateClosed  MarketState = "CLOSED"
)

// Quote is an immutable market snapshot. Values are replaced, never mutated.
type Quote struct {
	Symbol        string      `json:"symbol"`
	Price         float64     `json:"price"`
	Change        float64     `json:"change"`
	ChangePercent float64     `json:"change_percent"`
	Open          float64     `json:"open"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	PreviousClose float64     `json:"previous_close"`
	Volume        int64       `json:"volume"`
	Currency      string      `json:"currency"`
	MarketState   MarketState `json:"market_state"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ExchangeRate is a cached conversion rate for an ordered currency pair.
type ExchangeRate struct {
	From      string
	To        string
	Rate      float64
	FetchedAt time.Time
}

// Holding is a portfolio position.
type Holding struct {
	Symbol    string
	Quantity  float64
	CostBasis float64 // per unit, in Currency
	Currency  string
	CreatedAt time.Time
}
