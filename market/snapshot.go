package market

import (
	"fmt"
	"sort"
	"time"
)

// Level 表示一档委托：价格与数量。
type Level struct {
	Price float64 `yaml:"price" json:"price"`
	Qty   float64 `yaml:"qty" json:"qty"`
}

// Snapshot represents one market observation handed to the calculator.
// Bids must be sorted by price descending, asks ascending.
type Snapshot struct {
	Symbol    string    `yaml:"symbol"`
	OILong    float64   `yaml:"oiLong"`
	OIShort   float64   `yaml:"oiShort"`
	Bids      []Level   `yaml:"bids"`
	Asks      []Level   `yaml:"asks"`
	Timestamp time.Time `yaml:"ts"`
}

// Validate 检查买卖两侧非空，且未平仓量与委托档位为非负数。
func (s Snapshot) Validate() error {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return fmt.Errorf("%w: bids and asks must not be empty (bids=%d asks=%d)", ErrInvalidInput, len(s.Bids), len(s.Asks))
	}
	if s.OILong < 0 || s.OIShort < 0 {
		return fmt.Errorf("%w: negative open interest long=%f short=%f", ErrInvalidInput, s.OILong, s.OIShort)
	}
	for i, l := range s.Bids {
		if l.Price < 0 || l.Qty < 0 {
			return fmt.Errorf("%w: bid[%d] price=%f qty=%f", ErrInvalidInput, i, l.Price, l.Qty)
		}
	}
	for i, l := range s.Asks {
		if l.Price < 0 || l.Qty < 0 {
			return fmt.Errorf("%w: ask[%d] price=%f qty=%f", ErrInvalidInput, i, l.Price, l.Qty)
		}
	}
	return nil
}

// SortLevels 将 bids 按价格降序、asks 按价格升序原地排序。
func SortLevels(bids, asks []Level) {
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
}
