package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frvi-monitor/market"
)

func TestBinanceWSStreamURL(t *testing.T) {
	ws := NewBinanceWS("", "BTCUSDT", market.NewOrderBook())
	u, err := ws.StreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt%40depth20%40100ms", u)

	ws.Symbol = ""
	_, err = ws.StreamURL()
	assert.Error(t, err)
}

func TestBinanceWSFeedsOrderBook(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		assert.Equal(t, "btcusdt@depth20@100ms", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@depth20@100ms","data":{"s":"BTCUSDT","E":1700000000000,"b":[["100","5"],["99","3"]],"a":[["101","4"],["102","2"]]}}`))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	book := market.NewOrderBook()
	ws := NewBinanceWS("ws"+strings.TrimPrefix(srv.URL, "http"), "BTCUSDT", book)
	ws.ReconnectDelay = 10 * time.Millisecond
	received := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ws.Now = func() time.Time { return received }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Run(ctx) }()

	require.Eventually(t, func() bool {
		bid, ask := book.Best()
		return bid == 100 && ask == 101
	}, 2*time.Second, 10*time.Millisecond)

	bids, asks := book.Top(5)
	assert.Len(t, bids, 2)
	assert.Len(t, asks, 2)
	// 使用本地接收时间而非交易所事件时间 E
	assert.Equal(t, received, book.UpdatedAt())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ws run did not stop after cancel")
	}
}

func TestBinanceWSRequiresBook(t *testing.T) {
	ws := NewBinanceWS("", "BTCUSDT", nil)
	assert.Error(t, ws.Run(context.Background()))
}

func depthFrame(bid, ask string) []byte {
	return []byte(`{"stream":"btcusdt@depth20@100ms","data":{"s":"BTCUSDT","b":[["` + bid + `","1"]],"a":[["` + ask + `","1"]]}}`)
}

func TestBinanceWSReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&conns, 1) == 1 {
			// 第一次连接发送一帧后断开
			_ = conn.WriteMessage(websocket.TextMessage, depthFrame("100", "101"))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, depthFrame("200", "201"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	book := market.NewOrderBook()
	ws := NewBinanceWS("ws"+strings.TrimPrefix(srv.URL, "http"), "BTCUSDT", book)
	ws.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Run(ctx) }()

	require.Eventually(t, func() bool {
		bid, ask := book.Best()
		return bid == 200 && ask == 201
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&conns))

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ws run did not stop after cancel")
	}
}

func TestBinanceWSBackoffGrowsOnFlappingServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&conns, 1)
		_ = conn.WriteMessage(websocket.TextMessage, depthFrame("100", "101"))
	}))
	defer srv.Close()

	ws := NewBinanceWS("ws"+strings.TrimPrefix(srv.URL, "http"), "BTCUSDT", market.NewOrderBook())
	ws.ReconnectDelay = 20 * time.Millisecond
	ws.StableAfter = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := ws.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 线性退避 20+40+60+80+100ms 累计约 300ms，固定间隔时会超过 10 次
	got := atomic.LoadInt32(&conns)
	assert.GreaterOrEqual(t, got, int32(2))
	assert.Less(t, got, int32(10))
}
