package market

import "fmt"

// SpreadAndDepth 计算最优价差与前 levels 档的平均深度。
//
// Spread = asks[0].Price - bids[0].Price
// Depth  = (sum(top N bid qty) + sum(top N ask qty)) / (2 * N)
//
// 分母固定为 2*levels，即使实际档位少于 levels，薄盘口会因此得到更低的深度。
func SpreadAndDepth(bids, asks []Level, levels int) (spread float64, depth float64, err error) {
	if len(bids) == 0 || len(asks) == 0 {
		return 0, 0, fmt.Errorf("%w: bids and asks must not be empty (bids=%d asks=%d)", ErrInvalidInput, len(bids), len(asks))
	}
	if levels <= 0 {
		return 0, 0, fmt.Errorf("%w: levels must be > 0, got %d", ErrInvalidInput, levels)
	}
	spread = asks[0].Price - bids[0].Price

	total := sumQty(bids, levels) + sumQty(asks, levels)
	depth = total / float64(2*levels)
	return spread, depth, nil
}

func sumQty(side []Level, levels int) float64 {
	if len(side) > levels {
		side = side[:levels]
	}
	sum := 0.0
	for _, l := range side {
		sum += l.Qty
	}
	return sum
}
