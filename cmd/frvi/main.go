package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"frvi-monitor/config"
	"frvi-monitor/gateway"
	"frvi-monitor/infrastructure/logger"
	"frvi-monitor/internal/engine"
	"frvi-monitor/market"
	"frvi-monitor/metrics"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "永续合约代号（覆盖配置，例如 BTCUSDT）")
	source := flag.String("source", "", "行情来源 rest|ws|replay（覆盖配置）")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址（覆盖配置）")
	watch := flag.Bool("watch", true, "监听配置文件变化并热更新")
	flag.Parse()

	if err := run(*cfgPath, *symbol, *source, *metricsAddr, *watch); err != nil {
		fmt.Fprintf(os.Stderr, "frvi: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, symbol, source, metricsAddr string, watch bool) error {
	cfg, err := config.LoadWithEnvOverrides(cfgPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if symbol != "" {
		cfg.Symbol = strings.ToUpper(symbol)
	}
	if source != "" {
		cfg.Source = source
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	// stdout 的 Sync 在部分平台返回 EINVAL，忽略
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := metrics.StartMetricsServer(cfg.Metrics.Addr, func(err error) {
		log.Error("metrics server failed", zap.Error(err))
	})
	if srv != nil {
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	provider, ws, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("初始化行情源失败: %w", err)
	}
	if ws != nil {
		ws.OnError = func(err error) {
			log.Warn("depth stream error", zap.Error(err))
		}
		go func() {
			if err := ws.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("depth stream stopped", zap.Error(err))
			}
		}()
	}

	eng, err := engine.New(engine.Config{
		Symbol:     cfg.Symbol,
		Interval:   cfg.PollInterval(),
		ResetAfter: cfg.ResetAfter(),
	}, provider, market.NewCalculator(cfg.Levels), log)
	if err != nil {
		return err
	}

	if watch && cfg.Source != config.SourceReplay {
		go watchConfig(ctx, cfgPath, cfg, eng, log)
	}
	go notifyWatchdog(ctx, log)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		log.Info("sd_notify ready sent")
	}

	log.Info("开始监控 FRVI 指数",
		zap.String("symbol", cfg.Symbol),
		zap.String("source", cfg.Source),
		zap.Int("levels", cfg.Levels))

	runErr := eng.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var shutdownErr error
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr = fmt.Errorf("metrics shutdown: %w", err)
		}
	}
	stats := eng.Stats()
	log.Info("FRVI monitor stopped",
		zap.Int64("steps", stats.TotalSteps),
		zap.Int64("errors", stats.TotalErrors),
		zap.Int64("resets", stats.TotalResets),
		zap.Float64("lastScore", stats.LastScore))
	return multierr.Append(runErr, shutdownErr)
}

// buildProvider 按 source 选择行情源；ws 模式额外返回需要后台运行的深度流。
func buildProvider(cfg config.AppConfig) (engine.Provider, *gateway.BinanceWS, error) {
	switch cfg.Source {
	case config.SourceREST:
		return gateway.NewRESTProvider(cfg), nil, nil
	case config.SourceWS:
		p, ws := gateway.NewWSProvider(cfg)
		return p, ws, nil
	case config.SourceReplay:
		p, err := gateway.LoadReplay(cfg.ReplayFile)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// watchConfig 应用可热更新的字段：pollIntervalMs 与 log.level；levels 需重启生效。
func watchConfig(ctx context.Context, path string, current config.AppConfig, eng *engine.Engine, log *logger.Logger) {
	err := config.Watch(ctx, path, func(next config.AppConfig) {
		eng.SetInterval(next.PollInterval())
		if next.Log.Level != "" && next.Log.Level != log.Level() {
			if err := log.SetLevel(next.Log.Level); err != nil {
				log.Warn("invalid log level in reload", zap.Error(err))
			}
		}
		if next.Levels != current.Levels {
			log.Warn("levels change requires restart, ignored",
				zap.Int("current", current.Levels),
				zap.Int("requested", next.Levels))
		}
		if next.Symbol != current.Symbol || next.Source != current.Source {
			log.Warn("symbol/source change requires restart, ignored")
		}
		log.LogEvent("config_reload", map[string]interface{}{
			"path":           path,
			"pollIntervalMs": next.PollIntervalMs,
		})
	}, func(err error) {
		log.Warn("config reload failed, keeping previous config", zap.Error(err))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("config watcher stopped", zap.Error(err))
	}
}

// notifyWatchdog 在 systemd 启用 WatchdogSec 时按一半周期发送心跳。
func notifyWatchdog(ctx context.Context, log *logger.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("sd watchdog check failed", zap.Error(err))
		return
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
