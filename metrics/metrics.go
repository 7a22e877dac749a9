// Package metrics provides Prometheus metrics for the FRVI monitor
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frvi-monitor/market"
)

var (
	Score = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_score",
		Help: "最新 FRVI 分数（深度为 0 时为 +Inf）",
	}, []string{"symbol"})
	Imbalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_oi_imbalance",
		Help: "未平仓量不平衡 S_t",
	}, []string{"symbol"})
	ImbalanceDelta = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_oi_imbalance_delta",
		Help: "不平衡变化 ΔS_t",
	}, []string{"symbol"})
	Spread = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_spread",
		Help: "最优价差",
	}, []string{"symbol"})
	Depth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_depth",
		Help: "前 N 档平均深度",
	}, []string{"symbol"})
	LiquidityRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frvi_liquidity_ratio",
		Help: "流动性脆弱度 spread/depth",
	}, []string{"symbol"})
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frvi_updates_total",
		Help: "成功计算次数",
	}, []string{"symbol"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frvi_errors_total",
		Help: "失败次数，按阶段区分",
	}, []string{"symbol", "stage"})
	Resets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frvi_resets_total",
		Help: "计算器状态重置次数",
	}, []string{"symbol"})
	FetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frvi_fetch_latency_seconds",
		Help:    "行情快照拉取耗时",
		Buckets: prometheus.DefBuckets,
	})
	WSReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frvi_ws_reconnects_total",
		Help: "WS 重连次数",
	})
	RESTRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frvi_rest_retries_total",
		Help: "REST 重试次数",
	}, []string{"endpoint"})
)

// Observe 记录一次成功计算的全部分量。
func Observe(symbol string, r market.Result) {
	Score.WithLabelValues(symbol).Set(r.Score)
	Imbalance.WithLabelValues(symbol).Set(r.Imbalance)
	ImbalanceDelta.WithLabelValues(symbol).Set(r.Delta)
	Spread.WithLabelValues(symbol).Set(r.Spread)
	Depth.WithLabelValues(symbol).Set(r.Depth)
	LiquidityRatio.WithLabelValues(symbol).Set(r.LiquidityRatio)
	Updates.WithLabelValues(symbol).Inc()
}

// IncError 按阶段（fetch/validate/compute）累计错误。
func IncError(symbol, stage string) {
	Errors.WithLabelValues(symbol, stage).Inc()
}

func IncReset(symbol string) {
	Resets.WithLabelValues(symbol).Inc()
}

func ObserveFetch(d time.Duration) {
	FetchLatency.Observe(d.Seconds())
}

// StartMetricsServer 启动Prometheus指标服务器；addr 为空时返回 nil。
func StartMetricsServer(addr string, onErr func(error)) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && onErr != nil {
			onErr(err)
		}
	}()
	return srv
}
