package orderbook

import (
	"sort"

	"github.com/uhyunpark/matchpipe/pkg/app/core"
)

type PriceLevel struct {
	Price int64
	Qty   int64 // total qty at this price level
}

// Book is the resting book owned by the matching engine. Entries are kept in
// insertion order and matched first-fit; price improvement elsewhere in the
// book is ignored.
//
// Book is not safe for concurrent use. The engine goroutine is its only owner.
type Book struct {
	open      []core.ValidatedOrder
	lastPrice int64
}

func NewBook() *Book {
	return &Book{}
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// firstCross returns the index of the earliest resting order v crosses.
func (b *Book) firstCross(v core.ValidatedOrder) int {
	for i, r := range b.open {
		if v.Crosses(r) {
			return i
		}
	}
	return -1
}

// Match attempts a single cross of incoming order v.
//
// With no crossing entry v rests at the tail and ok is false. Otherwise one
// trade is produced at the maker's price and the book is updated:
//   - maker larger: maker shrinks in place, v is consumed
//   - taker larger: maker removed, v's remainder rests at the tail
//   - equal: maker removed, v is consumed
//
// The remainder is not matched further in the same step.
func (b *Book) Match(v core.ValidatedOrder) (trade core.Trade, ok bool) {
	i := b.firstCross(v)
	if i < 0 {
		b.open = append(b.open, v)
		return core.Trade{}, false
	}

	maker := &b.open[i]
	q := min(v.Qty, maker.Qty)

	trade = core.Trade{Qty: q, Price: maker.Price}
	if v.Side == core.Buy {
		trade.BuyOrderID, trade.SellOrderID = v.OrderID, maker.OrderID
	} else {
		trade.BuyOrderID, trade.SellOrderID = maker.OrderID, v.OrderID
	}
	b.lastPrice = maker.Price

	switch {
	case maker.Qty > v.Qty:
		maker.Qty -= q
	case v.Qty > maker.Qty:
		b.remove(i)
		rem := v
		rem.Qty = v.Qty - q
		b.open = append(b.open, rem)
	default:
		b.remove(i)
	}
	return trade, true
}

func (b *Book) remove(i int) {
	copy(b.open[i:], b.open[i+1:])
	b.open[len(b.open)-1] = core.ValidatedOrder{}
	b.open = b.open[:len(b.open)-1]
}

// Orders returns a copy of the resting orders in book order.
func (b *Book) Orders() []core.ValidatedOrder {
	out := make([]core.ValidatedOrder, len(b.open))
	copy(out, b.open)
	return out
}

func (b *Book) Len() int { return len(b.open) }

// LastPrice returns the price of the most recent cross, 0 if none.
func (b *Book) LastPrice() int64 { return b.lastPrice }

// BidLevels returns resting buy qty aggregated per price, best (highest) first.
func (b *Book) BidLevels() []PriceLevel {
	levels := b.levels(core.Buy)
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price > levels[j].Price
	})
	return levels
}

// AskLevels returns resting sell qty aggregated per price, best (lowest) first.
func (b *Book) AskLevels() []PriceLevel {
	levels := b.levels(core.Sell)
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price < levels[j].Price
	})
	return levels
}

func (b *Book) levels(side core.Side) []PriceLevel {
	byPrice := make(map[int64]int64)
	for _, o := range b.open {
		if o.Side == side {
			byPrice[o.Price] += o.Qty
		}
	}
	levels := make([]PriceLevel, 0, len(byPrice))
	for price, qty := range byPrice {
		levels = append(levels, PriceLevel{Price: price, Qty: qty})
	}
	return levels
}
