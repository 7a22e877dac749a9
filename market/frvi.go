package market

import (
	"errors"
	"math"
)

// DefaultLevels 默认用于深度平均的委托档位数（买卖各 N 层）。
const DefaultLevels = 5

// ErrInvalidInput is returned when a snapshot cannot produce a spread/depth.
var ErrInvalidInput = errors.New("invalid input")

// Result 保存一次计算的各个分量，便于日志与指标输出。
type Result struct {
	Imbalance      float64
	Delta          float64
	Spread         float64
	Depth          float64
	LiquidityRatio float64
	Score          float64
}

// Calculator computes the Funding Rate Volatility Index:
//
//	FRVI_t = sqrt(ΔS_t^2 + (Spread_t / Depth_t)^2)
//
// It keeps the previous open-interest imbalance between calls and is not
// safe for concurrent use.
type Calculator struct {
	levels int
	last   *float64
}

// NewCalculator creates a calculator averaging depth over the top levels of
// each side. Non-positive levels fall back to DefaultLevels.
func NewCalculator(levels int) *Calculator {
	if levels <= 0 {
		levels = DefaultLevels
	}
	return &Calculator{levels: levels}
}

// Levels 返回构造时固定的档位数。
func (c *Calculator) Levels() int { return c.levels }

// LastImbalance 返回上一次的不平衡值；若尚无状态 ok 为 false。
func (c *Calculator) LastImbalance() (float64, bool) {
	if c.last == nil {
		return 0, false
	}
	return *c.last, true
}

// Reset 清空上一次的不平衡值，下一次 Update 的 ΔS 将为 0。
func (c *Calculator) Reset() {
	c.last = nil
}

// Update returns the FRVI score for one snapshot. On error the stored
// imbalance is left unchanged.
func (c *Calculator) Update(oiLong, oiShort float64, bids, asks []Level) (float64, error) {
	res, err := c.Compute(Snapshot{OILong: oiLong, OIShort: oiShort, Bids: bids, Asks: asks})
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// Compute 与 Update 相同，但返回完整分量。
func (c *Calculator) Compute(s Snapshot) (Result, error) {
	imb := OIImbalance(s.OILong, s.OIShort)

	delta := 0.0
	if c.last != nil {
		delta = imb - *c.last
	}

	spread, depth, err := SpreadAndDepth(s.Bids, s.Asks, c.levels)
	if err != nil {
		return Result{}, err
	}

	ratio := math.Inf(1)
	if depth > 0 {
		ratio = spread / depth
	}
	score := math.Sqrt(delta*delta + ratio*ratio)

	c.last = &imb
	return Result{
		Imbalance:      imb,
		Delta:          delta,
		Spread:         spread,
		Depth:          depth,
		LiquidityRatio: ratio,
		Score:          score,
	}, nil
}
