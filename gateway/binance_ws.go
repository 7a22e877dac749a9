package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"frvi-monitor/market"
	"frvi-monitor/metrics"
)

// BinanceFuturesWSEndpoint 是 U 本位合约 WS 默认地址。
const BinanceFuturesWSEndpoint = "wss://fstream.binance.com"

// BinanceWS 订阅 <symbol>@depth20@100ms，把部分深度写入 OrderBook，断线后自动重连。
// 盘口以本地接收时间打戳，过期判断不依赖交易所与本机的时钟差。
type BinanceWS struct {
	BaseEndpoint   string
	Symbol         string
	Book           *market.OrderBook
	Dialer         *websocket.Dialer
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
	StableAfter    time.Duration // 连接保持至少该时长才清零退避计数
	OnError        func(error)
	Now            func() time.Time
}

func NewBinanceWS(endpoint, symbol string, book *market.OrderBook) *BinanceWS {
	if endpoint == "" {
		endpoint = BinanceFuturesWSEndpoint
	}
	return &BinanceWS{
		BaseEndpoint:   endpoint,
		Symbol:         symbol,
		Book:           book,
		Dialer:         websocket.DefaultDialer,
		ReadTimeout:    30 * time.Second,
		ReconnectDelay: time.Second,
		StableAfter:    10 * time.Second,
	}
}

// StreamURL 构建 combined stream 地址。
func (b *BinanceWS) StreamURL() (string, error) {
	if b.Symbol == "" {
		return "", fmt.Errorf("symbol required")
	}
	u, err := url.Parse(b.BaseEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse ws endpoint: %w", err)
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("streams", strings.ToLower(b.Symbol)+"@depth20@100ms")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 持续读取深度直到 ctx 结束；连接失败或读错误后按 ReconnectDelay 线性退避重连。
func (b *BinanceWS) Run(ctx context.Context) error {
	if b.Book == nil {
		return fmt.Errorf("order book not set")
	}
	endpoint, err := b.StreamURL()
	if err != nil {
		return err
	}
	failures := 0
	for {
		started := time.Now()
		received, err := b.runOnce(ctx, endpoint)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received && time.Since(started) >= b.StableAfter {
			failures = 0
		}
		failures++
		metrics.WSReconnects.Inc()
		if err != nil && b.OnError != nil {
			b.OnError(err)
		}
		delay := b.ReconnectDelay * time.Duration(failures)
		if limit := 30 * time.Second; delay > limit {
			delay = limit
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

// runOnce 建立一次连接并读取到出错为止；received 表示本次是否收到过有效消息。
func (b *BinanceWS) runOnce(ctx context.Context, endpoint string) (received bool, err error) {
	dialer := b.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if b.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read depth: %w", err)
		}
		ev, err := ParseDepth(message)
		if err != nil {
			if b.OnError != nil {
				b.OnError(err)
			}
			continue
		}
		b.Book.Replace(ev.Bids, ev.Asks, now(b.Now))
		received = true
	}
}
