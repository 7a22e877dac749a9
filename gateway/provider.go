package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frvi-monitor/market"
)

// ErrStaleBook 表示 WS 盘口长时间未更新。
var ErrStaleBook = errors.New("order book is stale")

// OpenInterestSource 提供多/空未平仓量。
type OpenInterestSource interface {
	OpenInterest(ctx context.Context, symbol string) (float64, error)
	LongShortRatio(ctx context.Context, symbol, period string) (long float64, short float64, err error)
}

// RESTProvider 通过 REST 拉取未平仓量、多空比与盘口，组合为一个快照。
type RESTProvider struct {
	Client      *BinanceRESTClient
	RatioPeriod string
	Now         func() time.Time
}

// Fetch 实现 engine.Provider。
func (p *RESTProvider) Fetch(ctx context.Context, symbol string, levels int) (market.Snapshot, error) {
	long, short, err := splitOpenInterest(ctx, p.Client, symbol, p.RatioPeriod)
	if err != nil {
		return market.Snapshot{}, err
	}
	bids, asks, err := p.Client.Depth(ctx, symbol, levels)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("fetch depth: %w", err)
	}
	market.SortLevels(bids, asks)
	return market.Snapshot{
		Symbol:    symbol,
		OILong:    long,
		OIShort:   short,
		Bids:      bids,
		Asks:      asks,
		Timestamp: now(p.Now),
	}, nil
}

// WSProvider 未平仓量走 REST，盘口取自 WS 维护的 OrderBook。
type WSProvider struct {
	OI           OpenInterestSource
	Book         *market.OrderBook
	RatioPeriod  string
	MaxStaleness time.Duration
	Now          func() time.Time
}

// Fetch 实现 engine.Provider；盘口为空或过期时返回 ErrStaleBook。
func (p *WSProvider) Fetch(ctx context.Context, symbol string, levels int) (market.Snapshot, error) {
	ts := now(p.Now)
	updated := p.Book.UpdatedAt()
	if updated.IsZero() {
		return market.Snapshot{}, fmt.Errorf("%w: no depth received yet", ErrStaleBook)
	}
	if p.MaxStaleness > 0 && ts.Sub(updated) > p.MaxStaleness {
		return market.Snapshot{}, fmt.Errorf("%w: last update %s ago", ErrStaleBook, ts.Sub(updated))
	}
	long, short, err := splitOpenInterest(ctx, p.OI, symbol, p.RatioPeriod)
	if err != nil {
		return market.Snapshot{}, err
	}
	bids, asks := p.Book.Top(levels)
	return market.Snapshot{
		Symbol:    symbol,
		OILong:    long,
		OIShort:   short,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}, nil
}

// splitOpenInterest 用账户多空占比把总未平仓量拆成多/空两部分。
func splitOpenInterest(ctx context.Context, src OpenInterestSource, symbol, period string) (float64, float64, error) {
	if period == "" {
		period = "5m"
	}
	total, err := src.OpenInterest(ctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch open interest: %w", err)
	}
	longFrac, shortFrac, err := src.LongShortRatio(ctx, symbol, period)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch long/short ratio: %w", err)
	}
	return total * longFrac, total * shortFrac, nil
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now().UTC()
}
