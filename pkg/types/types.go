// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the maker — credentials,
// market profiles, orders, and the exchange's wire row shapes. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Environment & credentials
// ————————————————————————————————————————————————————————————————————————

// Environment selects which exchange host a session talks to.
type Environment string

const (
	Demo Environment = "demo"
	Prod Environment = "prod"
)

// Host returns the exchange base URL for this environment.
func (e Environment) Host() string {
	switch e {
	case Prod:
		return "https://trading-api.kalshi.com"
	default:
		return "https://demo-api.kalshi.co"
	}
}

// Credentials are immutable once loaded from disk.
type Credentials struct {
	Email       string
	Password    string
	AdvancedAPI bool
}

// ————————————————————————————————————————————————————————————————————————
// Order side
// ————————————————————————————————————————————————————————————————————————

// Side is which side of a binary market an order rests on.
type Side string

const (
	Yes Side = "yes"
	No  Side = "no"
)

// ————————————————————————————————————————————————————————————————————————
// Profiles (spec.md §3)
// ————————————————————————————————————————————————————————————————————————

// MarketProfile holds the per-market quoting parameters. Immutable once
// loaded; a fresh PerMarketState is created lazily per market_id.
type MarketProfile struct {
	MarketTicker          string `mapstructure:"market_ticker"`
	InstantLiquidityCents int    `mapstructure:"instant_liquidity_cents"`
	MaxExposureCents      int    `mapstructure:"max_exposure_cents"`
	PriceStickyness       int    `mapstructure:"price_stickyness"`
	Spread                int    `mapstructure:"spread"`
	Depth                 int    `mapstructure:"depth"`

	MaxSpread        *int   `mapstructure:"max_spread"`
	MaxYesPrice      *int   `mapstructure:"max_yes_price"`
	MinYesPrice      *int   `mapstructure:"min_yes_price"`
	SnipeTimeoutSecs *int   `mapstructure:"snipe_timeout_seconds"`
	ClearTimeRaw     string `mapstructure:"clear_time"` // RFC3339, empty = unset
}

// ClearTime parses ClearTimeRaw as RFC3339. ok is false when ClearTimeRaw is
// empty (no clear_time configured for this market).
func (p *MarketProfile) ClearTime() (t time.Time, ok bool, err error) {
	if p.ClearTimeRaw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, p.ClearTimeRaw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// StrategyProfile is one named strategy: an environment plus an ordered
// sequence of markets to quote.
type StrategyProfile struct {
	Env     Environment     `mapstructure:"env"`
	Markets []MarketProfile `mapstructure:"markets"`
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// Order is a placement request (spec.md §3). Prices are integer cents;
// price(yes) + price(no) = 100 by market convention.
type Order struct {
	MarketID           string `json:"market_id"`
	Side               Side   `json:"side"`
	Price              int    `json:"price"`
	Count              int    `json:"count"`
	ExpirationUnixTS   int64  `json:"expiration_unix_ts"`
	SellPositionCapped bool   `json:"sell_position_capped"`
}

// ————————————————————————————————————————————————————————————————————————
// Per-market controller state (spec.md §3)
// ————————————————————————————————————————————————————————————————————————

// PerMarketState is owned by the market controller, one row per market_id.
type PerMarketState struct {
	FairValue    int        `json:"fair_value"`    // 0 = unset/unseeded
	LastPosition int        `json:"last_position"` // signed contracts
	LastSnipeAt  *time.Time `json:"last_snipe_at,omitempty"`
	ExpirationTS int64      `json:"expiration_ts"` // 0 if no clear_time
}

// Seeded reports whether FairValue has been initialised.
func (s *PerMarketState) Seeded() bool {
	return s.FairValue != 0
}

// ————————————————————————————————————————————————————————————————————————
// Exchange wire rows (spec.md §6)
// ————————————————————————————————————————————————————————————————————————

// MarketRow is a row from GET /v1/markets.
type MarketRow struct {
	ID         string `json:"id"`
	TickerName string `json:"ticker_name"`
	Status     string `json:"status"`
}

// MarketDetails is the body of GET /v1/markets_by_ticker/<ticker>.
type MarketDetails struct {
	Status    string `json:"status"`
	Volume    int    `json:"volume"`
	YesBid    int    `json:"yes_bid"`
	YesAsk    int    `json:"yes_ask"`
	LastPrice int    `json:"last_price"`
}

// PositionRow is one entry of GET /v1/users/<user_id>/positions.
type PositionRow struct {
	MarketID     string `json:"market_id"`
	Position     int    `json:"position"`      // signed; + long yes, - long no
	PositionCost int    `json:"position_cost"` // absolute cents invested, >= 0
}

// OrderRow is one resting order from GET .../orders?status=resting.
type OrderRow struct {
	OrderID        string `json:"order_id"`
	Price          int    `json:"price"`
	IsYes          bool   `json:"is_yes"`
	RemainingCount int    `json:"remaining_count"`
}

// PlacedOrderRow is the exchange's echo of a placed order.
type PlacedOrderRow struct {
	OrderID string `json:"order_id"`
	Price   int    `json:"price"`
	IsYes   bool   `json:"is_yes"`
	Count   int    `json:"count"`
}

// PriceLevel is one [price, quantity] pair as returned by the public
// order-book endpoint.
type PriceLevel [2]int

// OrderBookResponse is the body of GET .../order_book.
type OrderBookResponse struct {
	OrderBook struct {
		Yes []PriceLevel `json:"yes"`
		No  []PriceLevel `json:"no"`
	} `json:"order_book"`
}
