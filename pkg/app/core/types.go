package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int8(s))
	}
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side an order of this side crosses against.
func (s Side) Opposite() Side { return -s }

// NewOrder is an unvalidated submission. It has no identifier yet.
type NewOrder struct {
	UserID int64 `json:"userId"`
	Side   Side  `json:"side"`
	Qty    int64 `json:"qty"`   // integer lots
	Price  int64 `json:"price"` // integer ticks
}

// ValidatedOrder is an accepted order carrying a Gateway-minted id.
// Qty > 0, Price > 0, OrderID > 0.
type ValidatedOrder struct {
	OrderID uint64
	UserID  int64
	Side    Side
	Qty     int64
	Price   int64
}

func (o ValidatedOrder) String() string {
	return fmt.Sprintf("order(id=%d user=%d %s %d@%d)", o.OrderID, o.UserID, o.Side, o.Qty, o.Price)
}

// Crosses reports whether incoming order o would trade against resting order r.
func (o ValidatedOrder) Crosses(r ValidatedOrder) bool {
	switch {
	case o.Side == Buy && r.Side == Sell:
		return r.Price <= o.Price
	case o.Side == Sell && r.Side == Buy:
		return r.Price >= o.Price
	default:
		return false
	}
}

type Trade struct {
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Qty         int64  `json:"qty"`
	Price       int64  `json:"price"` // maker price
}

func (t Trade) IsValid() bool { return t.Qty > 0 && t.Price > 0 }

func (t Trade) String() string {
	return fmt.Sprintf("trade(buy=%d sell=%d %d@%d)", t.BuyOrderID, t.SellOrderID, t.Qty, t.Price)
}

// Summary is the terminal record Audit emits on shutdown.
type Summary struct {
	TotalVolume   int64       `json:"totalVolume"`
	TradeCount    int         `json:"tradeCount"`
	RejectedCount int         `json:"rejectedCount"`
	LastPrice     int64       `json:"lastPrice"` // 0 if no trades
	Digest        common.Hash `json:"digest"`    // keccak chain over recorded trades
}
