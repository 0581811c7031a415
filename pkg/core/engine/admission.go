package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/book"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
)

// OrderRequest is an incoming order before admission. Price is only
// meaningful for Limit orders; the variant is resolved here, once.
type OrderRequest struct {
	UserID uuid.UUID
	Ticker string
	Side   core.Side
	Kind   core.OrderKind
	Qty    int64
	Price  int64
}

func (r OrderRequest) validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user", core.ErrInvalidOrder)
	}
	if r.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", core.ErrInvalidOrder)
	}
	if r.Kind == core.Limit && r.Price <= 0 {
		return fmt.Errorf("%w: limit price must be positive", core.ErrInvalidOrder)
	}
	// No resting order may carry a qty*price that wraps int64; every later
	// fill cost is bounded by it.
	if r.Kind == core.Limit && r.Qty > math.MaxInt64/r.Price {
		return fmt.Errorf("%w: qty*price overflows", core.ErrInvalidOrder)
	}
	return nil
}

// reservationEntry computes what admission must earmark before the order may
// touch the book:
//
//	LIMIT BUY   qty*price of cash
//	LIMIT SELL  qty of the instrument
//	MARKET SELL qty of the instrument
//	MARKET BUY  the exact cost of the fills the matching loop will perform,
//	            computed from the planned fills (admission and matching share
//	            one critical section, so the plan cannot go stale). An empty
//	            opposing book therefore reserves nothing and the order is
//	            cancelled unfilled rather than rejected.
//
// The entry fails the whole Transact with ErrInsufficientFunds if available
// balance does not cover it, leaving no side effects.
//
// Each fill term is bounded by its maker's validated qty*price, but the sum
// across levels can still wrap; that rejects the order as invalid before
// anything is reserved.
func (e *Engine) reservationEntry(o *core.Order, fills []book.Fill) (ledger.Entry, error) {
	if o.Side == core.Sell {
		return ledger.ReserveEntry(o.UserID, o.Ticker, o.Qty), nil
	}
	if o.Kind == core.Limit {
		return ledger.ReserveEntry(o.UserID, e.cash, o.Qty*o.Price), nil
	}

	var cost int64
	for _, f := range fills {
		c := f.Qty * f.Price
		if cost > math.MaxInt64-c {
			return ledger.Entry{}, fmt.Errorf("%w: order cost overflows", core.ErrInvalidOrder)
		}
		cost += c
	}
	return ledger.ReserveEntry(o.UserID, e.cash, cost), nil
}
