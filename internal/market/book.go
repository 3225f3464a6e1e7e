// Package market builds the dense price->quantity order-book views the
// ladder planner and reconciler diff against. A binary market's price
// domain is exactly the integers 1..99 cents, so "dense" here means every
// price in that range has an entry, zero-filled where nothing rests.
package market

import "marketmaker/pkg/types"

// DenseBook is a fully-populated price->quantity map over [1,99].
type DenseBook map[int]int

// NewDenseBook returns a DenseBook with every price in [1,99] set to zero.
func NewDenseBook() DenseBook {
	b := make(DenseBook, 99)
	for p := 1; p <= 99; p++ {
		b[p] = 0
	}
	return b
}

// BuildPublicBook turns the raw [price,quantity] levels from the public
// order-book endpoint into zero-filled dense yes/no maps.
func BuildPublicBook(resp *types.OrderBookResponse) (yes, no DenseBook) {
	yes, no = NewDenseBook(), NewDenseBook()
	for _, lvl := range resp.OrderBook.Yes {
		price, qty := lvl[0], lvl[1]
		if price >= 1 && price <= 99 {
			yes[price] += qty
		}
	}
	for _, lvl := range resp.OrderBook.No {
		price, qty := lvl[0], lvl[1]
		if price >= 1 && price <= 99 {
			no[price] += qty
		}
	}
	return yes, no
}

// BuildOwnBook groups the maker's own resting orders by (price, is_yes),
// summing remaining_count into dense yes/no maps, and returns the order_ids
// resting at each price so the reconciler can build its cancel-set (spec §4.5).
func BuildOwnBook(orders []types.OrderRow) (yes, no DenseBook, yesIDs, noIDs map[int][]string) {
	yes, no = NewDenseBook(), NewDenseBook()
	yesIDs, noIDs = make(map[int][]string), make(map[int][]string)

	for _, o := range orders {
		if o.Price < 1 || o.Price > 99 {
			continue
		}
		if o.IsYes {
			yes[o.Price] += o.RemainingCount
			yesIDs[o.Price] = append(yesIDs[o.Price], o.OrderID)
		} else {
			no[o.Price] += o.RemainingCount
			noIDs[o.Price] = append(noIDs[o.Price], o.OrderID)
		}
	}
	return yes, no, yesIDs, noIDs
}

// NonZero lists the (price, quantity) pairs with quantity > 0, ascending
// by price. It is the inverse of building a book from a list of orders —
// used to round-trip dense books back to the sparse form tests compare.
func (b DenseBook) NonZero() []types.PriceLevel {
	var levels []types.PriceLevel
	for p := 1; p <= 99; p++ {
		if qty := b[p]; qty > 0 {
			levels = append(levels, types.PriceLevel{p, qty})
		}
	}
	return levels
}
