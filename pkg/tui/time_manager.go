// Package tui 时间管理模块
package tui

import (
	"time"
)

// SetTimeWindow 固定显示窗口，用于离线回放
func (t *TUI) SetTimeWindow(start, end time.Time) {
	t.windowMu.Lock()
	defer t.windowMu.Unlock()
	t.fixedStart, t.fixedEnd = start, end
}

// getTimeWindow 获取当前的时间窗口
// 固定窗口优先，否则先从启动时间开始填充，填满后跟随当前时间滚动
func (t *TUI) getTimeWindow() (start, end time.Time) {
	t.windowMu.RLock()
	fs, fe := t.fixedStart, t.fixedEnd
	t.windowMu.RUnlock()
	if !fs.IsZero() && fe.After(fs) {
		return fs, fe
	}

	now := t.now()
	windowDuration := time.Duration(t.tuiConfig.MaxHistorySize) * t.tuiConfig.TimeGridInterval
	if now.Sub(t.startTime) < windowDuration {
		return t.startTime, t.startTime.Add(windowDuration)
	}
	return now.Add(-windowDuration), now
}

// timeLayout 按窗口跨度选择X轴时间格式
func timeLayout(span time.Duration) string {
	switch {
	case span >= 48*time.Hour:
		return "01-02 15:04"
	case span >= time.Hour:
		return "15:04"
	default:
		return "15:04:05"
	}
}

// timestampToX 将时间戳转换为X坐标
func (t *TUI) timestampToX(timestamp time.Time, windowStart, windowEnd time.Time, chartWidth int) int {
	windowDuration := windowEnd.Sub(windowStart)
	if windowDuration == 0 {
		return 0
	}

	offset := timestamp.Sub(windowStart)
	if offset < 0 {
		return -1
	}
	if offset > windowDuration {
		return chartWidth
	}
	return int(float64(offset) / float64(windowDuration) * float64(chartWidth))
}
