package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"frvi-monitor/infrastructure/logger"
	"frvi-monitor/market"
	"frvi-monitor/metrics"
	"frvi-monitor/monitor/logschema"
)

// Provider 提供行情快照（未平仓量 + 盘口）。
type Provider interface {
	Fetch(ctx context.Context, symbol string, levels int) (market.Snapshot, error)
}

// Config 引擎配置
type Config struct {
	Symbol     string        // 交易对
	Interval   time.Duration // 取样间隔
	ResetAfter time.Duration // 成功快照间隔超过该值时重置 ΔS 基准，0 表示关闭
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime   time.Time
	TotalSteps  int64
	TotalErrors int64
	TotalResets int64
	LastScore   float64
	LastStepAt  time.Time
}

// Engine 按固定间隔拉取快照并计算 FRVI。计算器只在 mu 保护下访问。
type Engine struct {
	config   Config
	provider Provider
	logger   *logger.Logger

	mu       sync.Mutex
	calc     *market.Calculator
	lastSnap time.Time
	stats    Statistics

	intervalCh chan time.Duration
}

// New 创建引擎
func New(cfg Config, provider Provider, calc *market.Calculator, log *logger.Logger) (*Engine, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if calc == nil {
		return nil, errors.New("calculator is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Engine{
		config:     cfg,
		provider:   provider,
		logger:     log,
		calc:       calc,
		intervalCh: make(chan time.Duration, 1),
	}, nil
}

// Run 立即执行一次，之后按间隔循环；provider 返回 io.EOF 时正常结束，其它错误记录后跳过本周期。
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.stats.StartTime = time.Now()
	interval := e.config.Interval
	e.mu.Unlock()

	e.logger.Info("FRVI engine starting",
		zap.String("symbol", e.config.Symbol),
		zap.Int("levels", e.calc.Levels()),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.Step(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("Provider exhausted, stopping engine")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping engine")
			return ctx.Err()
		case d := <-e.intervalCh:
			ticker.Reset(d)
			e.logger.Info("Poll interval updated", zap.Duration("interval", d))
			// 等待新周期
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		case <-ticker.C:
		}
	}
}

// Step 执行一次取样与计算；失败时计算器状态不变。
func (e *Engine) Step(ctx context.Context) (market.Result, error) {
	symbol := e.config.Symbol

	start := time.Now()
	snap, err := e.provider.Fetch(ctx, symbol, e.calc.Levels())
	metrics.ObserveFetch(time.Since(start))
	if err != nil {
		if !errors.Is(err, io.EOF) {
			e.fail("fetch", err)
		}
		return market.Result{}, err
	}
	if err := snap.Validate(); err != nil {
		e.fail("validate", err)
		return market.Result{}, err
	}
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	e.mu.Lock()
	if e.config.ResetAfter > 0 && !e.lastSnap.IsZero() && ts.Sub(e.lastSnap) > e.config.ResetAfter {
		gap := ts.Sub(e.lastSnap)
		e.resetLocked(fmt.Sprintf("data gap %s", gap))
	}
	res, err := e.calc.Compute(snap)
	if err != nil {
		e.mu.Unlock()
		e.fail("compute", err)
		return market.Result{}, fmt.Errorf("compute frvi: %w", err)
	}
	e.lastSnap = ts
	e.stats.TotalSteps++
	e.stats.LastScore = res.Score
	e.stats.LastStepAt = ts
	e.mu.Unlock()

	metrics.Observe(symbol, res)
	e.event("frvi_update", map[string]interface{}{
		"symbol":    symbol,
		"frvi":      res.Score,
		"imbalance": res.Imbalance,
		"delta":     res.Delta,
		"spread":    res.Spread,
		"depth":     res.Depth,
		"ratio":     res.LiquidityRatio,
		"snapshot":  ts.Format(time.RFC3339Nano),
	})
	return res, nil
}

// Reset 清空计算器状态，下一次计算 ΔS = 0。
func (e *Engine) Reset(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked(reason)
}

// SetInterval 运行时调整取样间隔（配置热更新），可在其它 goroutine 调用。
func (e *Engine) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	if d == e.config.Interval {
		e.mu.Unlock()
		return
	}
	e.config.Interval = d
	e.mu.Unlock()
	// 只保留最新的一次调整
	select {
	case <-e.intervalCh:
	default:
	}
	e.intervalCh <- d
}

// Interval 返回当前取样间隔
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Interval
}

// Stats 返回统计信息快照
func (e *Engine) Stats() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) resetLocked(reason string) {
	e.calc.Reset()
	e.lastSnap = time.Time{}
	e.stats.TotalResets++
	metrics.IncReset(e.config.Symbol)
	e.event("frvi_reset", map[string]interface{}{
		"symbol": e.config.Symbol,
		"reason": reason,
	})
}

func (e *Engine) fail(stage string, err error) {
	e.mu.Lock()
	e.stats.TotalErrors++
	e.mu.Unlock()
	metrics.IncError(e.config.Symbol, stage)
	fields := map[string]interface{}{
		"symbol": e.config.Symbol,
		"stage":  stage,
	}
	if verr := logschema.Validate("frvi_error", fields); verr != nil {
		e.logger.Warn("log schema mismatch", zap.String("event", "frvi_error"), zap.Error(verr))
	}
	e.logger.LogError("frvi_error", err, fields)
}

func (e *Engine) event(name string, fields map[string]interface{}) {
	if err := logschema.Validate(name, fields); err != nil {
		e.logger.Warn("log schema mismatch", zap.String("event", name), zap.Error(err))
	}
	e.logger.LogEvent(name, fields)
}
