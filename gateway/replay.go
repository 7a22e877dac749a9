package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"frvi-monitor/market"
)

// ReplayProvider 按顺序回放 YAML 文件中的快照，用于离线计算与测试。
type ReplayProvider struct {
	mu        sync.Mutex
	snapshots []market.Snapshot
	next      int
}

// LoadReplay 读取形如 `snapshots: [...]` 的 YAML 文件。
func LoadReplay(path string) (*ReplayProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	var doc struct {
		Snapshots []market.Snapshot `yaml:"snapshots"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse replay yaml: %w", err)
	}
	return NewReplayProvider(doc.Snapshots), nil
}

func NewReplayProvider(snapshots []market.Snapshot) *ReplayProvider {
	return &ReplayProvider{snapshots: snapshots}
}

// Fetch 返回下一条快照；symbol 为空的快照视为匹配任意交易对，全部回放完返回 io.EOF。
func (p *ReplayProvider) Fetch(ctx context.Context, symbol string, levels int) (market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.snapshots) {
		return market.Snapshot{}, io.EOF
	}
	s := p.snapshots[p.next]
	p.next++
	if s.Symbol != "" && !strings.EqualFold(s.Symbol, symbol) {
		return market.Snapshot{}, fmt.Errorf("replay snapshot %d is for %s, want %s", p.next-1, s.Symbol, symbol)
	}
	s.Symbol = symbol
	return s, nil
}

// Remaining 返回尚未回放的快照数量。
func (p *ReplayProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots) - p.next
}
