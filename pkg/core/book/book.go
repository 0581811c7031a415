package book

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
)

// Fill is one planned match between the incoming order and a resting maker.
// Price is always the maker's (resting) price.
type Fill struct {
	Maker *core.Order
	Qty   int64
	Price int64
}

// Book is the price-time-priority structure of one instrument's resting
// orders: a price heap per side for O(1) best-price peeks, a FIFO queue per
// price level, and an order index for O(1) cancellation. It holds only orders
// with status NEW or PARTIALLY_EXECUTED and remaining quantity > 0; an order
// leaves the instant its remainder hits zero or it is cancelled, and empty
// price levels are pruned eagerly.
//
// The Book is not self-locking: the matching engine serializes all access
// per instrument.
type Book struct {
	bidHeap *priceHeap
	askHeap *priceHeap

	bids map[int64][]*core.Order // price -> FIFO queue
	asks map[int64][]*core.Order

	index map[uuid.UUID]int64 // order ID -> resting price
}

// New creates an empty book
func New() *Book {
	return &Book{
		bidHeap: newBidHeap(),
		askHeap: newAskHeap(),
		bids:    make(map[int64][]*core.Order),
		asks:    make(map[int64][]*core.Order),
		index:   make(map[uuid.UUID]int64),
	}
}

// Len returns the number of resting orders
func (b *Book) Len() int {
	return len(b.index)
}

// Contains reports whether an order is resting in the book
func (b *Book) Contains(id uuid.UUID) bool {
	_, ok := b.index[id]
	return ok
}

// Insert places a resting order at the back of its price level's FIFO queue.
// Only limit orders rest, so o.Price is the resting price.
func (b *Book) Insert(o *core.Order) {
	if o.Side == core.Buy {
		if len(b.bids[o.Price]) == 0 {
			b.bidHeap.push(o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
	} else {
		if len(b.asks[o.Price]) == 0 {
			b.askHeap.push(o.Price)
		}
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
	b.index[o.ID] = o.Price
}

// Remove takes a resting order out of the book (cancellation or full fill)
func (b *Book) Remove(id uuid.UUID) (*core.Order, bool) {
	price, ok := b.index[id]
	if !ok {
		return nil, false
	}

	if o := b.removeFromLevel(b.bids, b.bidHeap, price, id); o != nil {
		return o, true
	}
	if o := b.removeFromLevel(b.asks, b.askHeap, price, id); o != nil {
		return o, true
	}
	return nil, false
}

func (b *Book) removeFromLevel(side map[int64][]*core.Order, levels *priceHeap, price int64, id uuid.UUID) *core.Order {
	queue, exists := side[price]
	if !exists {
		return nil
	}
	for i, o := range queue {
		if o.ID == id {
			side[price] = append(queue[:i], queue[i+1:]...)
			if len(side[price]) == 0 {
				delete(side, price)
				levels.remove(price)
			}
			delete(b.index, id)
			return o
		}
	}
	return nil
}

// BestBid returns the front order of the highest bid level, or nil
func (b *Book) BestBid() *core.Order {
	if b.bidHeap.Len() == 0 {
		return nil
	}
	return b.bids[b.bidHeap.peek()][0]
}

// BestAsk returns the front order of the lowest ask level, or nil
func (b *Book) BestAsk() *core.Order {
	if b.askHeap.Len() == 0 {
		return nil
	}
	return b.asks[b.askHeap.peek()][0]
}

// Plan computes, without mutating the book, the fills an incoming order would
// produce under price-time priority: best price first, FIFO within a level,
// walking as many levels as the order crosses. limitPrice is ignored for
// Market orders. The caller applies the fills only after durable commit.
func (b *Book) Plan(side core.Side, kind core.OrderKind, limitPrice, qty int64) []Fill {
	var fills []Fill
	remaining := qty

	for _, price := range b.crossedPrices(side, kind, limitPrice) {
		var queue []*core.Order
		if side == core.Buy {
			queue = b.asks[price]
		} else {
			queue = b.bids[price]
		}
		for _, maker := range queue {
			if remaining == 0 {
				return fills
			}
			match := maker.Remaining()
			if remaining < match {
				match = remaining
			}
			fills = append(fills, Fill{Maker: maker, Qty: match, Price: price})
			remaining -= match
		}
		if remaining == 0 {
			break
		}
	}
	return fills
}

// crossedPrices returns the opposing side's price levels the order crosses,
// in matching priority order (asks ascending for a buy, bids descending for
// a sell).
func (b *Book) crossedPrices(side core.Side, kind core.OrderKind, limitPrice int64) []int64 {
	var prices []int64
	if side == core.Buy {
		for price := range b.asks {
			if kind == core.Market || price <= limitPrice {
				prices = append(prices, price)
			}
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	} else {
		for price := range b.bids {
			if kind == core.Market || price >= limitPrice {
				prices = append(prices, price)
			}
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	}
	return prices
}

// Depth aggregates resting quantity by price level, best levels first,
// truncated to levels per side. Levels are pruned eagerly on removal, so no
// post-filtering of empty levels is needed here.
func (b *Book) Depth(levels int) core.Depth {
	return core.Depth{
		Bids: aggregate(b.bids, levels, func(i, j int64) bool { return i > j }),
		Asks: aggregate(b.asks, levels, func(i, j int64) bool { return i < j }),
	}
}

func aggregate(side map[int64][]*core.Order, levels int, better func(i, j int64) bool) []core.PriceLevel {
	prices := make([]int64, 0, len(side))
	for price := range side {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return better(prices[i], prices[j]) })

	if levels > 0 && len(prices) > levels {
		prices = prices[:levels]
	}

	out := make([]core.PriceLevel, 0, len(prices))
	for _, price := range prices {
		var total int64
		for _, o := range side[price] {
			total += o.Remaining()
		}
		out = append(out, core.PriceLevel{Price: price, Qty: total})
	}
	return out
}

// Orders returns every resting order (no particular order)
func (b *Book) Orders() []*core.Order {
	out := make([]*core.Order, 0, len(b.index))
	for _, queue := range b.bids {
		out = append(out, queue...)
	}
	for _, queue := range b.asks {
		out = append(out, queue...)
	}
	return out
}

// UserOrders returns every resting order owned by user
func (b *Book) UserOrders(user uuid.UUID) []*core.Order {
	var out []*core.Order
	for _, o := range b.Orders() {
		if o.UserID == user {
			out = append(out, o)
		}
	}
	return out
}
