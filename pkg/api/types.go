package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
)

// Wire types for the REST API. Shapes follow the exchange's original public
// contract: snake_case fields, Ok envelopes, L2 order book levels.

type Ok struct {
	Success bool `json:"success"`
}

var okResponse = Ok{Success: true}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type NewUserBody struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

type UserOut struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key"`
}

type InstrumentOut struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	Status string `json:"status"`
}

type InstrumentBody struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

type L2OrderBook struct {
	BidLevels []Level `json:"bid_levels"`
	AskLevels []Level `json:"ask_levels"`
}

type TransactionOut struct {
	Ticker    string    `json:"ticker"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBody is the union of limit and market order bodies: a present,
// positive price makes it a limit order.
type OrderBody struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

type OrderOut struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Body      OrderBody `json:"body"`
	Filled    int64     `json:"filled"`
}

type CreateOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

type DepositBody struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

type WithdrawBody struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

func orderOut(o core.Order) OrderOut {
	body := OrderBody{
		Direction: o.Side.String(),
		Ticker:    o.Ticker,
		Qty:       o.Qty,
	}
	if o.Kind == core.Limit {
		price := o.Price
		body.Price = &price
	}
	return OrderOut{
		ID:        o.ID,
		Status:    o.Status.String(),
		UserID:    o.UserID,
		Timestamp: time.Unix(0, o.CreatedAt).UTC(),
		Body:      body,
		Filled:    o.Filled,
	}
}

func transactionOut(t core.Trade) TransactionOut {
	return TransactionOut{
		Ticker:    t.Ticker,
		Amount:    t.Qty,
		Price:     t.Price,
		Timestamp: time.Unix(0, t.Timestamp).UTC(),
	}
}
