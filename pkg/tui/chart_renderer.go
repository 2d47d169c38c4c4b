// Package tui 图表渲染模块
package tui

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
)

// 每个盲文字符覆盖 2x4 个点
const (
	dotsX       = 2
	dotsY       = 4
	brailleBase = 0x2800
	bandColor   = "[gray]"
	yLabelCount = 5
)

// brailleDotMap 点阵 [行][列] 对应的位
var brailleDotMap = [dotsY][dotsX]uint8{
	{0b00000001, 0b00001000},
	{0b00000010, 0b00010000},
	{0b00000100, 0b00100000},
	{0b01000000, 0b10000000},
}

// brailleCanvas 以点为坐标的盲文画布，原点在左上角
type brailleCanvas struct {
	cols, rows int
	bits       []uint8
	colors     []string
}

func newBrailleCanvas(cols, rows int) *brailleCanvas {
	return &brailleCanvas{
		cols:   cols,
		rows:   rows,
		bits:   make([]uint8, cols*rows),
		colors: make([]string, cols*rows),
	}
}

func (c *brailleCanvas) width() int  { return c.cols * dotsX }
func (c *brailleCanvas) height() int { return c.rows * dotsY }

// set 点亮一个点，越界的点忽略
func (c *brailleCanvas) set(x, y int, color string) {
	if x < 0 || y < 0 || x >= c.width() || y >= c.height() {
		return
	}
	i := (y/dotsY)*c.cols + x/dotsX
	c.bits[i] |= brailleDotMap[y%dotsY][x%dotsX]
	c.colors[i] = color
}

// line 布雷森汉姆画线
func (c *brailleCanvas) line(x1, y1, x2, y2 int, color string) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, color)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// fill 填充一列中 [top, bottom] 的点，只写空白字符的颜色
func (c *brailleCanvas) fill(x, top, bottom int, color string) {
	if x < 0 || x >= c.width() {
		return
	}
	for y := max(top, 0); y <= min(bottom, c.height()-1); y++ {
		i := (y/dotsY)*c.cols + x/dotsX
		c.bits[i] |= brailleDotMap[y%dotsY][x%dotsX]
		if c.colors[i] == "" {
			c.colors[i] = color
		}
	}
}

// row 渲染第 r 行字符
func (c *brailleCanvas) row(r int) string {
	var b strings.Builder
	for col := 0; col < c.cols; col++ {
		i := r*c.cols + col
		if c.bits[i] == 0 {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(c.colors[i])
		b.WriteRune(rune(brailleBase + int(c.bits[i])))
		b.WriteString("[white]")
	}
	return b.String()
}

// chartSeries 一个目标的历史快照
type chartSeries struct {
	identifier string
	color      string
	points     []core.DataPoint
}

// valueScale 把延迟映射到画布的纵坐标
type valueScale struct {
	min, max float64
	dots     int
}

func (s valueScale) span() float64 {
	return s.max - s.min
}

// y 超时和无效值画在顶部
func (s valueScale) y(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	y := int((1 - (v-s.min)/s.span()) * float64(s.dots-1))
	return min(max(y, 0), s.dots-1)
}

// inWindow 闭区间
func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateChartSize 验证图表尺寸是否合理
func (t *TUI) validateChartSize(width, height int) string {
	if height < t.tuiConfig.MinChartHeight || width < t.tuiConfig.MinChartWidth {
		return "终端尺寸过小"
	}
	if width > t.tuiConfig.MaxChartSize || height > t.tuiConfig.MaxChartSize {
		return "终端尺寸过大"
	}
	return ""
}

// snapshotSeries 复制目标的历史，没有数据的目标跳过
func (t *TUI) snapshotSeries(identifiers []string) []chartSeries {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	var series []chartSeries
	for _, id := range identifiers {
		if stats, exists := t.statsData[id]; exists && len(stats.History) > 0 {
			series = append(series, chartSeries{
				identifier: id,
				color:      t.getTargetColor(id),
				points:     slices.Clone(stats.History),
			})
		}
	}
	return series
}

// calculateValueRange 计算窗口内的纵轴范围，分布带上沿也计入
func (t *TUI) calculateValueRange(series []chartSeries, windowStart, windowEnd time.Time) (minVal, maxVal float64, errMsg string) {
	minVal, maxVal = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.points {
			if !inWindow(p.Timestamp, windowStart, windowEnd) {
				continue
			}
			if validValue(p.Value) {
				minVal = math.Min(minVal, p.Value)
				maxVal = math.Max(maxVal, p.Value)
			}
			if p.HasBand() {
				minVal = math.Min(minVal, p.Low)
				maxVal = math.Max(maxVal, p.High)
			}
		}
	}
	if math.IsInf(minVal, 1) {
		return 0, 0, "当前窗口内没有有效数据"
	}

	if maxVal == minVal {
		maxVal++
		minVal--
	}
	maxVal += maxVal * t.tuiConfig.ValueBufferRatio
	minVal = math.Max(minVal-minVal*t.tuiConfig.ValueBufferRatio, 0)
	// 低延迟链路上的小抖动不应占满整个图表
	maxVal = math.Max(maxVal, t.tuiConfig.DefaultCeiling)
	return minVal, maxVal, ""
}

// drawSingleTargetChart 绘制单目标图表
func (t *TUI) drawSingleTargetChart(identifier string, width, height int) string {
	return t.renderChart(t.snapshotSeries([]string{identifier}), width, height)
}

// drawMultiTargetChart 按目标顺序叠加绘制所有目标
func (t *TUI) drawMultiTargetChart(width, height int) string {
	t.statsMu.RLock()
	identifiers := slices.Clone(t.identifiers)
	t.statsMu.RUnlock()
	return t.renderChart(t.snapshotSeries(identifiers), width, height)
}

// renderChart 先画所有分布带，再画延迟折线
func (t *TUI) renderChart(series []chartSeries, width, height int) string {
	if len(series) == 0 {
		return "没有数据"
	}
	if sizeErr := t.validateChartSize(width, height); sizeErr != "" {
		return sizeErr
	}

	windowStart, windowEnd := t.getTimeWindow()
	minVal, maxVal, msg := t.calculateValueRange(series, windowStart, windowEnd)
	if msg != "" {
		return msg
	}

	labelWidth := max(len(formatLatency(maxVal)), len(formatLatency(minVal))) + 2
	bodyHeight := height - 2 // X轴与时间刻度
	bodyWidth := width - labelWidth
	if bodyHeight <= 0 || bodyWidth <= 0 {
		return "可绘制区域过小"
	}

	canvas := newBrailleCanvas(bodyWidth, bodyHeight)
	scale := valueScale{min: minVal, max: maxVal, dots: canvas.height()}
	toX := func(ts time.Time) int {
		// 窗口右边界上的点画在最后一列
		return min(t.timestampToX(ts, windowStart, windowEnd, canvas.width()), canvas.width()-1)
	}

	for _, s := range series {
		for _, p := range s.points {
			if p.HasBand() && inWindow(p.Timestamp, windowStart, windowEnd) {
				canvas.fill(toX(p.Timestamp), scale.y(p.High), scale.y(p.Low), bandColor)
			}
		}
	}
	for _, s := range series {
		t.plotSeries(canvas, s, scale, toX, windowStart, windowEnd)
	}

	lines := t.yAxis(canvas, scale, labelWidth)
	lines = append(lines, xAxis(windowStart, windowEnd, labelWidth, bodyWidth)...)
	// 输出不超过可用高度
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

// plotSeries 用折线连接窗口内相邻的点
func (t *TUI) plotSeries(canvas *brailleCanvas, s chartSeries, scale valueScale, toX func(time.Time) int, windowStart, windowEnd time.Time) {
	prevX, prevY := -1, -1
	for _, p := range s.points {
		if !inWindow(p.Timestamp, windowStart, windowEnd) {
			continue
		}
		x, y := toX(p.Timestamp), scale.y(p.Value)
		if prevX < 0 {
			canvas.set(x, y, s.color)
		} else {
			canvas.line(prevX, prevY, x, y, s.color)
		}
		prevX, prevY = x, y
	}
}

// yAxis 图表主体，标签在数值上均匀分布
func (t *TUI) yAxis(canvas *brailleCanvas, scale valueScale, labelWidth int) []string {
	labels := make(map[int]string)
	if n := min(yLabelCount, canvas.rows); n > 1 {
		for i := 0; i < n; i++ {
			frac := float64(i) / float64(n-1)
			labels[int(frac*float64(canvas.rows-1))] = formatLatency(scale.max - frac*scale.span())
		}
	}

	lines := make([]string, 0, canvas.rows+2)
	for r := 0; r < canvas.rows; r++ {
		lines = append(lines, fmt.Sprintf("[gray]%*s[white] [gray]│[white]%s", labelWidth-2, labels[r], canvas.row(r)))
	}
	return lines
}

// xAxis 坐标轴与窗口起止时间
func xAxis(windowStart, windowEnd time.Time, labelWidth, bodyWidth int) []string {
	axis := fmt.Sprintf("%-*s└%s", labelWidth-1, "", strings.Repeat("─", bodyWidth))

	layout := timeLayout(windowEnd.Sub(windowStart))
	from := windowStart.Local().Format(layout)
	to := windowEnd.Local().Format(layout)
	gap := max(bodyWidth-len(from)-len(to), 1)
	ticks := fmt.Sprintf("%-*s%s%*s%s", labelWidth, "", from, gap, "", to)

	return []string{"[gray]" + axis + "[white]", "[gray]" + ticks + "[white]"}
}
