package gateway

import (
	"time"

	"frvi-monitor/config"
	"frvi-monitor/market"
)

// NewRESTClient 根据配置构建带限流与重试的 REST 客户端。
func NewRESTClient(gc config.GatewayConfig) *BinanceRESTClient {
	return &BinanceRESTClient{
		BaseURL:    gc.RestURL,
		HTTPClient: NewDefaultHTTPClient(time.Duration(gc.TimeoutMs) * time.Millisecond),
		Limiter:    NewTokenBucketLimiter(gc.Rate, gc.Burst),
		MaxRetries: gc.MaxRetries,
		Backoff:    time.Duration(gc.BackoffMs) * time.Millisecond,
	}
}

// NewRESTProvider 构建纯 REST 行情源。
func NewRESTProvider(cfg config.AppConfig) *RESTProvider {
	return &RESTProvider{Client: NewRESTClient(cfg.Gateway), RatioPeriod: cfg.Gateway.RatioPeriod}
}

// NewWSProvider 构建 WS 盘口 + REST 未平仓量的行情源，返回的 BinanceWS 需由调用方在后台运行。
func NewWSProvider(cfg config.AppConfig) (*WSProvider, *BinanceWS) {
	book := market.NewOrderBook()
	ws := NewBinanceWS(cfg.Gateway.WSEndpoint, cfg.Symbol, book)
	return &WSProvider{
		OI:           NewRESTClient(cfg.Gateway),
		Book:         book,
		RatioPeriod:  cfg.Gateway.RatioPeriod,
		MaxStaleness: time.Duration(cfg.Gateway.MaxStaleMs) * time.Millisecond,
	}, ws
}
