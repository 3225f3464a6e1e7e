package strategy

import (
	"marketmaker/internal/market"
	"marketmaker/pkg/types"
)

// Reconcile diffs a desired ladder against the currently-resting book for
// one side and returns the minimal (cancel-set, place-set) that moves the
// book to match. The comparison is the corrected current_resting ==
// desired[price] (spec §9 open question: an earlier source variant compared
// desired[current_resting], which is a bug).
//
// Cancel-set correctness: any resting price either absent from desired or
// at the wrong quantity is cancelled in full (every order_id at that
// price). A price at the exact desired quantity is left alone and marked
// consistent, so it is never re-emitted in the place-set.
func Reconcile(desired map[int]int, currentBook market.DenseBook, currentIDs map[int][]string, marketID string, side types.Side, expirationUnixTS int64) (cancelIDs []string, toPlace []types.Order) {
	consistent := make(map[int]bool)

	for p := 1; p <= 99; p++ {
		restingQty := currentBook[p]
		if restingQty <= 0 {
			continue
		}
		if want, ok := desired[p]; ok && want == restingQty {
			consistent[p] = true
			continue
		}
		cancelIDs = append(cancelIDs, currentIDs[p]...)
	}

	for p, qty := range desired {
		if consistent[p] {
			continue
		}
		toPlace = append(toPlace, types.Order{
			MarketID:         marketID,
			Side:             side,
			Price:            p,
			Count:            qty,
			ExpirationUnixTS: expirationUnixTS,
		})
	}

	return cancelIDs, toPlace
}
