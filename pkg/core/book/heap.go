package book

import "container/heap"

// priceHeap keeps one side's price levels ordered by its comparator
// (descending for bids, ascending for asks). Manipulate through
// container/heap plus the helpers below.
type priceHeap struct {
	prices []int64
	better func(a, b int64) bool
}

func newBidHeap() *priceHeap {
	return &priceHeap{better: func(a, b int64) bool { return a > b }}
}

func newAskHeap() *priceHeap {
	return &priceHeap{better: func(a, b int64) bool { return a < b }}
}

func (h *priceHeap) Len() int           { return len(h.prices) }
func (h *priceHeap) Less(i, j int) bool { return h.better(h.prices[i], h.prices[j]) }
func (h *priceHeap) Swap(i, j int)      { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(int64))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// push adds a price level
func (h *priceHeap) push(price int64) {
	heap.Push(h, price)
}

// remove drops a price level wherever it sits (O(N) scan, levels are few)
func (h *priceHeap) remove(price int64) {
	for i, p := range h.prices {
		if p == price {
			heap.Remove(h, i)
			return
		}
	}
}

// peek returns the best price without removing it
func (h *priceHeap) peek() int64 {
	if len(h.prices) == 0 {
		return 0
	}
	return h.prices[0]
}
