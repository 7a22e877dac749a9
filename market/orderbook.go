package market

import (
	"sync"
	"time"
)

// OrderBook 维护单个交易对最新的部分深度（由 WS 推送整体替换）。
type OrderBook struct {
	mu      sync.RWMutex
	bids    []Level
	asks    []Level
	updated time.Time
}

func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Replace 用一份新的部分深度替换当前盘口，数量为 0 的档位被丢弃。
func (ob *OrderBook) Replace(bids, asks []Level, ts time.Time) {
	nb := filterEmpty(bids)
	na := filterEmpty(asks)
	SortLevels(nb, na)
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids = nb
	ob.asks = na
	ob.updated = ts
}

// Top 返回前 n 档的拷贝；n <= 0 返回全部。
func (ob *OrderBook) Top(n int) (bids []Level, asks []Level) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return copyTop(ob.bids, n), copyTop(ob.asks, n)
}

// Best 返回最好买/卖价；若不存在则为 0。
func (ob *OrderBook) Best() (bestBid float64, bestAsk float64) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.bids) > 0 {
		bestBid = ob.bids[0].Price
	}
	if len(ob.asks) > 0 {
		bestAsk = ob.asks[0].Price
	}
	return bestBid, bestAsk
}

// Mid 返回中间价；若缺失任一侧返回 0。
func (ob *OrderBook) Mid() float64 {
	bid, ask := ob.Best()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// UpdatedAt 返回最近一次 Replace 的时间；从未更新时为零值。
func (ob *OrderBook) UpdatedAt() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.updated
}

func filterEmpty(levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if l.Qty == 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

func copyTop(side []Level, n int) []Level {
	if n <= 0 || n > len(side) {
		n = len(side)
	}
	out := make([]Level, n)
	copy(out, side[:n])
	return out
}
