package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dmelnik/spotcore/pkg/core"
)

// Order returns a snapshot of one order. userID scopes the lookup to the
// order's owner; uuid.Nil bypasses the ownership check.
func (e *Engine) Order(orderID, userID uuid.UUID) (core.Order, error) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok || (userID != uuid.Nil && o.UserID != userID) {
		return core.Order{}, core.ErrOrderNotFound
	}

	ms := e.market(o.Ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return *o, nil
}

// UserOrders returns snapshots of all orders (open and closed) owned by user,
// oldest first.
func (e *Engine) UserOrders(userID uuid.UUID) []core.Order {
	byTicker := make(map[string][]*core.Order)
	e.mu.RLock()
	for _, o := range e.orders {
		if o.UserID == userID {
			byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
		}
	}
	e.mu.RUnlock()

	var out []core.Order
	for ticker, orders := range byTicker {
		ms := e.market(ticker)
		ms.mu.Lock()
		for _, o := range orders {
			out = append(out, *o)
		}
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Depth returns the aggregated L2 snapshot of an instrument's book, truncated
// to levels per side (levels <= 0 means no truncation).
func (e *Engine) Depth(ticker string, levels int) (core.Depth, error) {
	if _, err := e.reg.Get(ticker); err != nil {
		return core.Depth{}, err
	}

	ms := e.market(ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.book.Depth(levels), nil
}

// RecentTrades returns up to limit trades for an instrument, newest first
func (e *Engine) RecentTrades(ticker string, limit int) ([]core.Trade, error) {
	if _, err := e.reg.Get(ticker); err != nil {
		return nil, err
	}

	ms := e.market(ticker)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n := len(ms.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, ms.trades[i])
	}
	return out, nil
}
