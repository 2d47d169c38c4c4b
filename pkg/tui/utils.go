// Package tui 工具函数
package tui

import (
	"fmt"
	"math"
	"slices"

	"github.com/Kevin-Rudy/zzping/pkg/core"
)

var colorSequence = []string{
	"[green]", "[yellow]", "[blue]", "[magenta]", "[cyan]", "[red]",
	"[orange]", "[purple]", "[lime]", "[pink]",
	"[darkcyan]", "[darkgreen]", "[darkblue]", "[darkmagenta]",
}

// formatLatency 自适应的延迟格式化，输入单位为ms
func formatLatency(latency float64) string {
	switch {
	case math.IsNaN(latency):
		return "N/A"
	case latency < 1.0:
		return fmt.Sprintf("%.0fµs", latency*1000)
	case latency < 1000.0:
		return fmt.Sprintf("%.1fms", latency)
	default:
		return fmt.Sprintf("%.2fs", latency/1000)
	}
}

// getTargetColor 按目标顺序分配颜色，表格与图表一致
func (t *TUI) getTargetColor(identifier string) string {
	for i, target := range t.targets {
		if target == identifier {
			return colorSequence[i%len(colorSequence)]
		}
	}
	return "[white]"
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// visibleIdentifiers 按目标顺序返回已有数据的目标，调用方持有 statsMu
func (t *TUI) visibleIdentifiers() []string {
	var identifiers []string
	for _, target := range t.targets {
		if _, exists := t.statsData[target]; exists {
			identifiers = append(identifiers, target)
		}
	}
	return identifiers
}

// updateIdentifiersForTest 测试模式下只更新标识符列表
func (t *TUI) updateIdentifiersForTest() {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	t.identifiers = t.visibleIdentifiers()
	if t.selectedRow >= len(t.identifiers) {
		t.selectedRow = len(t.identifiers) - 1
	}
}

// getOrCreateStats 获取或创建统计，调用方持有 statsMu 写锁
// 不在目标列表中的标识符（例如守护进程新增的目标）追加到末尾
func (t *TUI) getOrCreateStats(identifier string) *core.Stats {
	stats, exists := t.statsData[identifier]
	if !exists {
		stats = core.NewStats(identifier)
		t.statsData[identifier] = stats
		if !slices.Contains(t.targets, identifier) {
			t.targets = append(t.targets, identifier)
		}
	}
	return stats
}
