package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"frvi-monitor/market"
)

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdate 提取 depth20@100ms 消息的核心字段。
type DepthUpdate struct {
	Symbol    string           `json:"s"`
	EventTime int64            `json:"E"`
	Bids      [][2]json.Number `json:"b"`
	Asks      [][2]json.Number `json:"a"`
}

// DepthEvent 是解析后的部分深度。
type DepthEvent struct {
	Symbol string
	Bids   []market.Level
	Asks   []market.Level
	Time   time.Time
}

// ParseDepth 解析 depth 消息，兼容 combined stream 包装与裸 payload。
func ParseDepth(raw []byte) (DepthEvent, error) {
	var ev DepthEvent
	payload := raw
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ev, fmt.Errorf("decode depth message: %w", err)
	}
	if len(msg.Data) > 0 {
		payload = msg.Data
	}
	var depth DepthUpdate
	if err := json.Unmarshal(payload, &depth); err != nil {
		return ev, fmt.Errorf("decode depth payload: %w", err)
	}
	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return ev, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return ev, fmt.Errorf("parse asks: %w", err)
	}
	ev.Symbol = depth.Symbol
	ev.Bids = bids
	ev.Asks = asks
	if depth.EventTime > 0 {
		ev.Time = time.UnixMilli(depth.EventTime).UTC()
	}
	return ev, nil
}
