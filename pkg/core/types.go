package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Side is the direction of an order
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide parses "BUY"/"SELL" (case-sensitive, API wire format)
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// OrderKind is the tagged order variant. A Limit order carries a price,
// a Market order does not (Order.Price is ignored for Market).
type OrderKind int8

const (
	Limit OrderKind = iota
	Market
)

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus int8

const (
	StatusNew OrderStatus = iota
	StatusPartiallyExecuted
	StatusExecuted
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case StatusExecuted:
		return "EXECUTED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// DeriveStatus computes order status from fill progress.
// CANCELLED is terminal and freezes filled at whatever it was.
func DeriveStatus(filled, qty int64, cancelled bool) OrderStatus {
	if cancelled {
		return StatusCancelled
	}
	switch {
	case filled == 0:
		return StatusNew
	case filled < qty:
		return StatusPartiallyExecuted
	default:
		return StatusExecuted
	}
}

// Order is a spot order. Prices are integer cash units per unit of the
// instrument; quantities are integer units.
type Order struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Ticker string
	Side   Side
	Kind   OrderKind

	Price  int64 // limit price; meaningless for Market orders
	Qty    int64 // original quantity
	Filled int64 // quantity filled so far

	Status OrderStatus

	CreatedAt int64  // Unix nanoseconds
	Seq       uint64 // arrival sequence, FIFO tie-break within a price level
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// IsOpen reports whether the order can still rest on or match against the book
func (o *Order) IsOpen() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyExecuted
}

// Trade is one fill between a buy order and a sell order. Immutable once
// recorded. Price is always the resting order's price.
type Trade struct {
	ID          uuid.UUID
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	Buyer       uuid.UUID
	Seller      uuid.UUID
	Ticker      string
	Qty         int64
	Price       int64
	Timestamp   int64 // Unix nanoseconds
}

// PriceLevel is one aggregated level of book depth
type PriceLevel struct {
	Price int64
	Qty   int64
}

// Depth is an L2 order book snapshot: bids high to low, asks low to high
type Depth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}
