// Package tui 数据处理模块
package tui

import (
	"fmt"
	"math"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
)

// 表格列，按 columnOrder 顺序显示
const (
	colLast     = "当前"
	colAvg      = "平均"
	colMin      = "最小"
	colMax      = "最大"
	colStdDev   = "标准差"
	colBand     = "分布"
	colLoss     = "丢包率"
	colInflight = "在途"
	colSentRecv = "发送/接收"
)

var columnOrder = []string{colLast, colAvg, colMin, colMax, colStdDev, colBand, colLoss, colInflight, colSentRecv}

// updateStatsWithTime 按发送时间把结果放进历史并更新统计
func (t *TUI) updateStatsWithTime(result core.PingResult) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	stats := t.getOrCreateStats(result.Identifier)

	dataPoint := core.DataPoint{
		Timestamp: result.SendTime,
		Value:     result.Latency,
		Status:    core.PointSuccess,
	}
	if math.IsNaN(result.Latency) {
		dataPoint.Status = core.PointTimeout
	}
	if r := result.Report; r != nil {
		dataPoint.Low, dataPoint.High = r.BandLow, r.BandHigh
	}
	t.insertDataPointByTime(stats, dataPoint)

	stats.PacketsSent++
	if result.Report != nil {
		r := *result.Report
		stats.LastReport = &r
	}
	if !math.IsNaN(result.Latency) {
		stats.PacketsRecv++
		t.updateWelfordAccumulator(stats, result.Latency)
		stats.MinLatency = math.Min(stats.MinLatency, result.Latency)
		stats.MaxLatency = math.Max(stats.MaxLatency, result.Latency)
	}

	t.dequeueOutOfWindow(stats)
	t.updateSummary(stats, result.Latency)
}

// insertDataPointByTime 按时间戳插入数据点
func (t *TUI) insertDataPointByTime(stats *core.Stats, newPoint core.DataPoint) {
	if len(stats.History) == 0 {
		stats.History = append(stats.History, newPoint)
		return
	}

	// 常见情况：追加在末尾
	lastPoint := stats.History[len(stats.History)-1]
	if !newPoint.Timestamp.Before(lastPoint.Timestamp) {
		if lastPoint.Status == core.PointTimeout && newPoint.Status == core.PointSuccess {
			t.interpolateFromTimeout(stats, lastPoint, newPoint)
		}
		stats.History = append(stats.History, newPoint)
		return
	}

	left, right := 0, len(stats.History)
	for left < right {
		mid := (left + right) / 2
		if stats.History[mid].Timestamp.Before(newPoint.Timestamp) {
			left = mid + 1
		} else {
			right = mid
		}
	}
	stats.History = append(stats.History, core.DataPoint{})
	copy(stats.History[left+1:], stats.History[left:])
	stats.History[left] = newPoint
}

// interpolateFromTimeout 超时之后的第一个回复前补插值点，最多补10步
func (t *TUI) interpolateFromTimeout(stats *core.Stats, lastPoint, newPoint core.DataPoint) {
	timeDiff := newPoint.Timestamp.Sub(lastPoint.Timestamp)
	steps := int(timeDiff / t.tuiConfig.TimeGridInterval)
	if steps <= 1 || steps > 10 {
		return
	}

	stepDuration := timeDiff / time.Duration(steps)
	for i := 1; i < steps; i++ {
		// 前半段保持超时，后半段逐渐接近新值
		ratio := float64(i) / float64(steps)
		value := math.NaN()
		if ratio > 0.5 {
			value = newPoint.Value * (ratio - 0.5) * 2
		}
		stats.History = append(stats.History, core.DataPoint{
			Timestamp: lastPoint.Timestamp.Add(time.Duration(i) * stepDuration),
			Value:     value,
			Status:    core.PointInterpolated,
		})
	}
}

// dequeueOutOfWindow 只保留最近 MaxHistorySize 个点
func (t *TUI) dequeueOutOfWindow(stats *core.Stats) {
	if len(stats.History) > t.tuiConfig.MaxHistorySize {
		stats.History = stats.History[len(stats.History)-t.tuiConfig.MaxHistorySize:]
	}
}

// maintainTimeGrid 把等待过久的点标记为超时
func (t *TUI) maintainTimeGrid() {
	now := t.now()
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	for _, stats := range t.statsData {
		t.processPendingTimeouts(stats, now)
	}
}

func (t *TUI) processPendingTimeouts(stats *core.Stats, now time.Time) {
	for i := len(stats.History) - 1; i >= 0; i-- {
		point := &stats.History[i]
		if point.Status == core.PointPending && now.Sub(point.Timestamp) > t.timeoutThreshold {
			point.Status = core.PointTimeout
			point.Value = math.NaN()
		}
	}
}

// updateWelfordAccumulator Welford在线算法
func (t *TUI) updateWelfordAccumulator(stats *core.Stats, newValue float64) {
	stats.WelfordCount++
	delta := newValue - stats.WelfordMean
	stats.WelfordMean += delta / float64(stats.WelfordCount)
	delta2 := newValue - stats.WelfordMean
	stats.WelfordM2 += delta * delta2
}

// updateSummary 更新表格各列
// 汇报型数据源的丢包率与在途数直接取自最近一次汇报
func (t *TUI) updateSummary(stats *core.Stats, last float64) {
	summary := make(map[string]string, len(columnOrder))

	summary[colLast] = formatLatency(last)
	summary[colSentRecv] = fmt.Sprintf("%d/%d", stats.PacketsSent, stats.PacketsRecv)

	if stats.PacketsRecv > 0 {
		summary[colAvg] = formatLatency(stats.WelfordMean)
		summary[colMin] = formatLatency(stats.MinLatency)
		summary[colMax] = formatLatency(stats.MaxLatency)
		if stats.WelfordCount > 1 {
			summary[colStdDev] = formatLatency(math.Sqrt(stats.WelfordM2 / float64(stats.WelfordCount-1)))
		}
	}

	if r := stats.LastReport; r != nil {
		if r.BandHigh > r.BandLow {
			summary[colBand] = formatLatency(r.BandLow) + "~" + formatLatency(r.BandHigh)
		}
		summary[colLoss] = fmt.Sprintf("%.1f%%", r.LossPercent)
		summary[colInflight] = fmt.Sprintf("%.1f", r.Inflight)
	} else {
		var lossRate float64
		if stats.PacketsSent > 0 {
			lossRate = float64(stats.PacketsSent-stats.PacketsRecv) / float64(stats.PacketsSent) * 100
		}
		summary[colLoss] = fmt.Sprintf("%.1f%%", lossRate)
		if ir, ok := t.dataSource.(core.InflightReporter); ok {
			summary[colInflight] = fmt.Sprintf("%d", ir.Inflight(stats.Identifier))
		}
	}

	stats.Summary = summary
}
