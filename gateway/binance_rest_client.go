package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"frvi-monitor/market"
	"frvi-monitor/metrics"
)

// ErrHTTPStatus 表示交易所返回了非 2xx 状态码。
var ErrHTTPStatus = errors.New("unexpected http status")

// depthLimits 是 /fapi/v1/depth 接受的 limit 取值。
var depthLimits = []int{5, 10, 20, 50, 100, 500, 1000}

// BinanceRESTClient 访问 U 本位合约公开行情接口，无需签名；HTTPClient 可注入 httptest。
type BinanceRESTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    RateLimiter
	MaxRetries int
	Backoff    time.Duration
}

type openInterestResp struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
}

type longShortResp struct {
	Symbol       string `json:"symbol"`
	LongAccount  string `json:"longAccount"`
	ShortAccount string `json:"shortAccount"`
}

type depthResp struct {
	LastUpdateID int64            `json:"lastUpdateId"`
	Bids         [][2]json.Number `json:"bids"`
	Asks         [][2]json.Number `json:"asks"`
}

// OpenInterest 调用 /fapi/v1/openInterest 获取总未平仓量。
func (c *BinanceRESTClient) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var out openInterestResp
	if err := c.get(ctx, "/fapi/v1/openInterest", url.Values{"symbol": {symbol}}, &out); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(out.OpenInterest, 64)
	if err != nil {
		return 0, fmt.Errorf("parse openInterest %q: %w", out.OpenInterest, err)
	}
	return v, nil
}

// LongShortRatio 调用 /futures/data/globalLongShortAccountRatio，返回最近一期多/空账户占比。
func (c *BinanceRESTClient) LongShortRatio(ctx context.Context, symbol, period string) (long float64, short float64, err error) {
	var out []longShortResp
	q := url.Values{"symbol": {symbol}, "period": {period}, "limit": {"1"}}
	if err = c.get(ctx, "/futures/data/globalLongShortAccountRatio", q, &out); err != nil {
		return 0, 0, err
	}
	if len(out) == 0 {
		return 0, 0, fmt.Errorf("empty long/short ratio for %s", symbol)
	}
	last := out[len(out)-1]
	if long, err = strconv.ParseFloat(last.LongAccount, 64); err != nil {
		return 0, 0, fmt.Errorf("parse longAccount %q: %w", last.LongAccount, err)
	}
	if short, err = strconv.ParseFloat(last.ShortAccount, 64); err != nil {
		return 0, 0, fmt.Errorf("parse shortAccount %q: %w", last.ShortAccount, err)
	}
	return long, short, nil
}

// Depth 调用 /fapi/v1/depth，返回至少 levels 档（交易所有则）的盘口。
func (c *BinanceRESTClient) Depth(ctx context.Context, symbol string, levels int) (bids []market.Level, asks []market.Level, err error) {
	var out depthResp
	q := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(DepthLimit(levels))}}
	if err = c.get(ctx, "/fapi/v1/depth", q, &out); err != nil {
		return nil, nil, err
	}
	if bids, err = parseLevels(out.Bids); err != nil {
		return nil, nil, fmt.Errorf("parse bids: %w", err)
	}
	if asks, err = parseLevels(out.Asks); err != nil {
		return nil, nil, fmt.Errorf("parse asks: %w", err)
	}
	return bids, asks, nil
}

// DepthLimit 返回不小于 levels 的最小合法 limit。
func DepthLimit(levels int) int {
	for _, l := range depthLimits {
		if l >= levels {
			return l
		}
	}
	return depthLimits[len(depthLimits)-1]
}

func (c *BinanceRESTClient) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	endpoint := c.BaseURL + path + "?" + q.Encode()
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RESTRetries.WithLabelValues(path).Inc()
			if err := sleepCtx(ctx, c.Backoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		retry, err := c.doOnce(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("%s: giving up after %d retries: %w", path, c.MaxRetries, lastErr)
}

// doOnce 发起一次请求；retry 表示该错误是否值得重试（网络错误、429、5xx）。
func (c *BinanceRESTClient) doOnce(ctx context.Context, endpoint string, out interface{}) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, fmt.Errorf("%w %d: %s", ErrHTTPStatus, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

func parseLevels(raw [][2]json.Number) ([]market.Level, error) {
	out := make([]market.Level, 0, len(raw))
	for _, lv := range raw {
		price, err := lv[0].Float64()
		if err != nil {
			return nil, err
		}
		qty, err := lv[1].Float64()
		if err != nil {
			return nil, err
		}
		out = append(out, market.Level{Price: price, Qty: qty})
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
