package market

import (
	"testing"
	"time"
)

func TestOrderBookReplaceAndMid(t *testing.T) {
	ob := NewOrderBook()
	if mid := ob.Mid(); mid != 0 {
		t.Fatalf("expected empty mid 0 got %f", mid)
	}
	now := time.Now()
	ob.Replace(
		[]Level{{99.5, 2}, {100, 1}, {99, 0}},
		[]Level{{102, 3}, {101, 1.5}},
		now,
	)
	bid, ask := ob.Best()
	if bid != 100 || ask != 101 {
		t.Fatalf("unexpected best bid/ask: %f/%f", bid, ask)
	}
	if mid := ob.Mid(); mid != 100.5 {
		t.Fatalf("unexpected mid %f", mid)
	}
	if !ob.UpdatedAt().Equal(now) {
		t.Fatalf("unexpected updated time %v", ob.UpdatedAt())
	}
}

func TestOrderBookTop(t *testing.T) {
	ob := NewOrderBook()
	ob.Replace(
		[]Level{{100, 1}, {99, 2}, {98, 3}},
		[]Level{{101, 1}, {102, 2}},
		time.Now(),
	)
	bids, asks := ob.Top(2)
	if len(bids) != 2 || bids[1].Price != 99 {
		t.Fatalf("unexpected bids %+v", bids)
	}
	if len(asks) != 2 {
		t.Fatalf("unexpected asks %+v", asks)
	}
	// 返回的是拷贝
	bids[0].Qty = 42
	again, _ := ob.Top(1)
	if again[0].Qty != 1 {
		t.Fatalf("Top must return a copy, got %+v", again)
	}
	all, _ := ob.Top(0)
	if len(all) != 3 {
		t.Fatalf("expected all 3 bids got %d", len(all))
	}
}
