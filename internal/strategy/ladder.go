// Package strategy implements the quoting control loop: the ladder
// planner, the reconciler, and the per-market controller that ties them
// to the exchange client.
package strategy

import "marketmaker/pkg/types"

// Position is the maker's current holding in one market, as reported by
// list_positions. A zero-value Position (no row) means flat.
type Position struct {
	Position     int // signed; + long yes, - long no
	PositionCost int // absolute cents invested, always >= 0
}

// Plan derives the desired yes/no ladders from a market's profile, current
// position, currently-resting orders, and fair value. It is a pure
// function: identical inputs always produce identical ladders, which is
// what lets the reconciler (ladder.go's companion, reconcile.go) find exact
// equality with a previously-placed ladder and do nothing.
func Plan(profile types.MarketProfile, position Position, restingOrders []types.OrderRow, fairValue int) (desiredYes, desiredNo map[int]int) {
	holdsYes := position.Position > 0
	exposureCents := position.PositionCost

	var yesOrderExposure, noOrderExposure int
	for _, o := range restingOrders {
		if o.IsYes {
			yesOrderExposure += o.Price * o.RemainingCount
		} else {
			noOrderExposure += o.Price * o.RemainingCount
		}
	}

	desiredYes = planSide(profile, fairValue, yesSideExposure(holdsYes, exposureCents)+yesOrderExposure, true)
	noFair := 100 - fairValue
	desiredNo = planSide(profile, noFair, noSideExposure(holdsYes, exposureCents)+noOrderExposure, false)

	return desiredYes, desiredNo
}

// yesSideExposure: being long yes increases the cost of adding more yes
// exposure; being long no subsidises it.
func yesSideExposure(holdsYes bool, exposureCents int) int {
	if holdsYes {
		return exposureCents
	}
	return -exposureCents
}

// noSideExposure: holding yes subsidises no quoting; holding no charges it
// (spec §9 open question, adopted as specified).
func noSideExposure(holdsYes bool, exposureCents int) int {
	if holdsYes {
		return -exposureCents
	}
	return exposureCents
}

// planSide computes one side's ladder. fairPrice is fair_value for the yes
// side, 100-fair_value for the no side; isYes controls which direction the
// max_yes_price/min_yes_price clamps are applied in.
func planSide(profile types.MarketProfile, fairPrice, cumulativeExposure int, isYes bool) map[int]int {
	if profile.Depth <= 0 || fairPrice <= 0 {
		return map[int]int{}
	}

	perLevelQty := profile.InstantLiquidityCents / profile.Depth / fairPrice
	topPrice := fairPrice - (profile.Spread-1)/2

	desired := make(map[int]int, profile.Depth)
	for i := 0; i < profile.Depth; i++ {
		p := topPrice - i
		if p < 1 {
			break
		}

		equivYesPrice := p
		if !isYes {
			equivYesPrice = 100 - p
		}
		if profile.MaxYesPrice != nil && equivYesPrice > *profile.MaxYesPrice {
			break
		}
		if profile.MinYesPrice != nil && equivYesPrice < *profile.MinYesPrice {
			break
		}
		if p*perLevelQty+cumulativeExposure > profile.MaxExposureCents {
			break
		}

		desired[p] = perLevelQty
	}
	return desired
}
