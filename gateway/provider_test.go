package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frvi-monitor/config"
	"frvi-monitor/market"
)

type fakeOI struct {
	total       float64
	long, short float64
	err         error
}

func (f fakeOI) OpenInterest(context.Context, string) (float64, error) { return f.total, f.err }

func (f fakeOI) LongShortRatio(context.Context, string, string) (float64, float64, error) {
	return f.long, f.short, f.err
}

func TestRESTProviderFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/openInterest":
			io.WriteString(w, `{"openInterest":"100","symbol":"BTCUSDT"}`)
		case "/futures/data/globalLongShortAccountRatio":
			io.WriteString(w, `[{"symbol":"BTCUSDT","longAccount":"0.6","shortAccount":"0.4"}]`)
		case "/fapi/v1/depth":
			// 乱序返回，Provider 负责排序
			io.WriteString(w, `{"bids":[["99","3"],["100","5"]],"asks":[["102","2"],["101","4"]]}`)
		}
	}))
	defer ts.Close()

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &RESTProvider{Client: newTestClient(ts), Now: func() time.Time { return fixed }}
	snap, err := p.Fetch(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	assert.InDelta(t, 60, snap.OILong, 1e-9)
	assert.InDelta(t, 40, snap.OIShort, 1e-9)
	assert.Equal(t, 100.0, snap.Bids[0].Price)
	assert.Equal(t, 101.0, snap.Asks[0].Price)
	assert.Equal(t, fixed, snap.Timestamp)

	score, err := market.NewCalculator(2).Update(snap.OILong, snap.OIShort, snap.Bids, snap.Asks)
	require.NoError(t, err)
	assert.InDelta(t, 1/3.5, score, 1e-9)
}

func TestWSProviderFetch(t *testing.T) {
	book := market.NewOrderBook()
	now := time.Now()
	p := &WSProvider{
		OI:           fakeOI{total: 200, long: 0.7, short: 0.3},
		Book:         book,
		MaxStaleness: time.Second,
		Now:          func() time.Time { return now },
	}

	_, err := p.Fetch(context.Background(), "BTCUSDT", 2)
	require.ErrorIs(t, err, ErrStaleBook)

	book.Replace(
		[]market.Level{{Price: 100, Qty: 5}, {Price: 99, Qty: 3}, {Price: 98, Qty: 1}},
		[]market.Level{{Price: 101, Qty: 4}},
		now.Add(-100*time.Millisecond),
	)
	snap, err := p.Fetch(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	assert.InDelta(t, 140, snap.OILong, 1e-9)
	assert.InDelta(t, 60, snap.OIShort, 1e-9)
	assert.Len(t, snap.Bids, 2)
	assert.Len(t, snap.Asks, 1)

	book.Replace(snap.Bids, snap.Asks, now.Add(-2*time.Second))
	_, err = p.Fetch(context.Background(), "BTCUSDT", 2)
	assert.ErrorIs(t, err, ErrStaleBook)
}

func TestWSProviderOIError(t *testing.T) {
	book := market.NewOrderBook()
	book.Replace([]market.Level{{Price: 1, Qty: 1}}, []market.Level{{Price: 2, Qty: 1}}, time.Now())
	boom := errors.New("boom")
	p := &WSProvider{OI: fakeOI{err: boom}, Book: book}
	_, err := p.Fetch(context.Background(), "BTCUSDT", 5)
	assert.ErrorIs(t, err, boom)
}

func TestReplayProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
snapshots:
  - oiLong: 60
    oiShort: 40
    bids: [{price: 100, qty: 5}, {price: 99, qty: 3}]
    asks: [{price: 101, qty: 4}, {price: 102, qty: 2}]
  - symbol: BTCUSDT
    oiLong: 70
    oiShort: 30
    bids: [{price: 100, qty: 5}, {price: 99, qty: 3}]
    asks: [{price: 101, qty: 4}, {price: 102, qty: 2}]
  - symbol: ETHUSDT
    oiLong: 1
    oiShort: 1
`), 0o644))

	p, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Remaining())

	ctx := context.Background()
	first, err := p.Fetch(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, 60.0, first.OILong)
	require.Len(t, first.Asks, 2)
	assert.Equal(t, 4.0, first.Asks[0].Qty)

	second, err := p.Fetch(ctx, "btcusdt", 2)
	require.NoError(t, err)
	assert.Equal(t, 70.0, second.OILong)

	_, err = p.Fetch(ctx, "BTCUSDT", 2)
	assert.Error(t, err)

	_, err = p.Fetch(ctx, "BTCUSDT", 2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestProviderConstructors(t *testing.T) {
	cfg := config.Default()
	rp := NewRESTProvider(cfg)
	require.NotNil(t, rp.Client)
	assert.Equal(t, cfg.Gateway.RestURL, rp.Client.BaseURL)
	assert.Equal(t, "5m", rp.RatioPeriod)

	cfg.Source = config.SourceWS
	wp, ws := NewWSProvider(cfg)
	require.NotNil(t, ws)
	assert.Same(t, ws.Book, wp.Book)
	assert.Equal(t, 5*time.Second, wp.MaxStaleness)
	assert.Equal(t, "BTCUSDT", ws.Symbol)

	_, err := LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
