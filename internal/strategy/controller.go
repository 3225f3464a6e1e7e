package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketmaker/internal/exchange"
	"marketmaker/internal/market"
	"marketmaker/internal/metrics"
	"marketmaker/pkg/types"
)

// cancelRetryPause is how long the controller waits before retrying a
// failed cancel batch once (spec §4.6 step 8).
const cancelRetryPause = time.Second

// TickResult reports what a single market's tick did, so the scheduler
// knows whether to retire the market from the active set.
type TickResult struct {
	Retire bool
	Reason string // human-readable line for stdout, per spec §7
}

// Controller runs the quoting control loop for one market at a time. It
// owns no market-specific state itself — that lives in the PerMarketState
// passed in, which the scheduler loads and persists around each call — so
// one Controller can serve every market in the active set sequentially.
type Controller struct {
	client      *exchange.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
	advancedAPI bool
}

// NewController wires a Controller to its exchange client and metrics sink.
func NewController(client *exchange.Client, m *metrics.Metrics, logger *slog.Logger, advancedAPI bool) *Controller {
	return &Controller{client: client, metrics: m, logger: logger, advancedAPI: advancedAPI}
}

// Tick runs one pass of the quoting loop for one market, per spec §4.6.
// positions is the cycle-wide snapshot taken once by the scheduler; state
// is mutated in place and should be persisted by the caller afterward.
func (c *Controller) Tick(ctx context.Context, now time.Time, profile types.MarketProfile, state *types.PerMarketState, positions map[string]types.PositionRow) TickResult {
	marketID := profile.MarketTicker

	// 1. Retirement check.
	details, err := c.client.GetMarket(ctx, profile.MarketTicker)
	if err != nil {
		c.logger.Warn("market read failed, skipping tick", "market", marketID, "err", err)
		return TickResult{}
	}

	if clearTime, ok, err := profile.ClearTime(); err == nil && ok && now.After(clearTime) {
		c.CancelAllResting(ctx, marketID)
		return TickResult{Retire: true, Reason: fmt.Sprintf("Clearing: %s (passed clear time)", profile.MarketTicker)}
	}
	if details.Status != "active" {
		return TickResult{Retire: true, Reason: fmt.Sprintf("Stopping: %s (closed)", profile.MarketTicker)}
	}

	// 2. Snipe cool-down.
	if state.LastSnipeAt != nil {
		cooldown := 0
		if profile.SnipeTimeoutSecs != nil {
			cooldown = *profile.SnipeTimeoutSecs
		}
		if now.Sub(*state.LastSnipeAt) < time.Duration(cooldown)*time.Second {
			return TickResult{}
		}
	}

	// 3. Quiescence guard.
	if details.Volume == 0 {
		return TickResult{}
	}

	// 4. Public-spread guard.
	spreadSize := details.YesAsk - details.YesBid
	mid := details.YesBid + spreadSize/2
	if profile.MaxSpread != nil && spreadSize > *profile.MaxSpread {
		return TickResult{}
	}

	// 5. Snipe detection.
	if state.Seeded() && abs(state.FairValue-mid) > spreadSize/2 {
		state.FairValue = 0
		state.LastPosition = 0
		state.LastSnipeAt = &now
		if c.metrics != nil {
			c.metrics.Snipes.WithLabelValues(marketID).Inc()
		}
		return TickResult{}
	}

	position := Position{}
	if row, ok := positions[marketID]; ok {
		position.Position = row.Position
		position.PositionCost = row.PositionCost
	}

	// 6. Seed.
	if !state.Seeded() {
		state.FairValue = mid
		state.LastPosition = position.Position
	}

	// 7. Inventory-driven fair-value adjustment.
	deltaPos := position.Position - state.LastPosition
	deltaFV := -(deltaPos / profile.PriceStickyness)
	state.FairValue += deltaFV
	state.LastPosition -= deltaFV * profile.PriceStickyness

	if c.metrics != nil {
		c.metrics.FairValue.WithLabelValues(marketID).Set(float64(state.FairValue))
	}

	// 8. Plan and reconcile.
	c.planAndReconcile(ctx, profile, position, state, marketID)

	return TickResult{}
}

func (c *Controller) planAndReconcile(ctx context.Context, profile types.MarketProfile, position Position, state *types.PerMarketState, marketID string) {
	restingOrders, err := c.client.ListRestingOrders(ctx, marketID)
	if err != nil {
		c.logger.Warn("failed to read resting orders, skipping tick", "market", marketID, "err", err)
		return
	}

	desiredYes, desiredNo := Plan(profile, position, restingOrders, state.FairValue)
	ownYes, ownNo, yesIDs, noIDs := market.BuildOwnBook(restingOrders)

	var expiration int64
	if t, ok, err := profile.ClearTime(); err == nil && ok {
		expiration = t.Unix()
	}
	state.ExpirationTS = expiration

	cancelYes, placeYes := Reconcile(desiredYes, ownYes, yesIDs, marketID, types.Yes, expiration)
	cancelNo, placeNo := Reconcile(desiredNo, ownNo, noIDs, marketID, types.No, expiration)

	cancelIDs := append(cancelYes, cancelNo...)
	if len(cancelIDs) > 0 {
		if err := c.client.CancelOrders(ctx, cancelIDs, c.advancedAPI); err != nil {
			time.Sleep(cancelRetryPause)
			if err := c.client.CancelOrders(ctx, cancelIDs, c.advancedAPI); err != nil {
				c.logger.Error("cancel failed after retry, skipping placement", "market", marketID, "err", err)
				return
			}
		}
		if c.metrics != nil {
			c.metrics.OrdersCancelled.WithLabelValues(marketID, "yes").Add(float64(len(cancelYes)))
			c.metrics.OrdersCancelled.WithLabelValues(marketID, "no").Add(float64(len(cancelNo)))
		}
	}

	toPlace := append(placeYes, placeNo...)
	if len(toPlace) == 0 {
		return
	}
	if _, err := c.client.PlaceOrders(ctx, toPlace, c.advancedAPI); err != nil {
		c.logger.Error(fmt.Sprintf("Failed to place orders in %s: %v", profile.MarketTicker, err))
		return
	}
	if c.metrics != nil {
		c.metrics.OrdersPlaced.WithLabelValues(marketID, "yes").Add(float64(len(placeYes)))
		c.metrics.OrdersPlaced.WithLabelValues(marketID, "no").Add(float64(len(placeNo)))
	}
}

// CancelAllResting fetches every resting order in a market and cancels it.
// Used for market retirement (spec §4.6 step 1) and the top-level clear
// operation (spec §4.7).
func (c *Controller) CancelAllResting(ctx context.Context, marketID string) {
	orders, err := c.client.ListRestingOrders(ctx, marketID)
	if err != nil {
		c.logger.Warn("failed to read resting orders during clear", "market", marketID, "err", err)
		return
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	if err := c.client.CancelOrders(ctx, ids, c.advancedAPI); err != nil {
		c.logger.Error("failed to cancel orders during clear", "market", marketID, "err", err)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
