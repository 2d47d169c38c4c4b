// Package tui 布局管理模块
package tui

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// setupUI 设置初始布局
func (t *TUI) setupUI() {
	t.chart.SetWordWrap(false)
	t.chart.SetDynamicColors(true)
	t.chart.SetText("[yellow]正在初始化，等待数据...[white]")

	t.flex = tview.NewFlex()
	t.flex.SetDirection(tview.FlexRow)
	t.flex.AddItem(t.waitingInfo(), 1, 0, false)
	t.flex.AddItem(t.chart, 0, 1, false)

	t.app.SetRoot(t.flex, true)
}

func (t *TUI) waitingInfo() *tview.TextView {
	info := tview.NewTextView()
	info.SetText(fmt.Sprintf("[green]%s 已启动[white] - [yellow]等待数据...[white]", t.title))
	info.SetDynamicColors(true)
	info.SetTextAlign(tview.AlignCenter)
	return info
}

// summaryColumns 返回至少一个目标有值的列，按固定顺序
func summaryColumns(stats []*core.Stats) []string {
	present := make(map[string]bool)
	for _, s := range stats {
		for key := range s.Summary {
			present[key] = true
		}
	}
	var cols []string
	for _, key := range columnOrder {
		if present[key] {
			cols = append(cols, key)
		}
	}
	return cols
}

// rebuildUI 按目标顺序重建表格，图表占据剩余空间
func (t *TUI) rebuildUI() {
	if t.testMode {
		t.updateIdentifiersForTest()
		return
	}

	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	t.identifiers = t.visibleIdentifiers()
	t.flex.Clear()
	t.rowFlexes = make([]*tview.Flex, 0, len(t.identifiers)+1)

	if len(t.identifiers) == 0 {
		t.flex.AddItem(t.waitingInfo(), 1, 0, false)
		t.flex.AddItem(t.chart, 0, 1, false)
		return
	}

	rows := make([]*core.Stats, 0, len(t.identifiers))
	for _, id := range t.identifiers {
		rows = append(rows, t.statsData[id])
	}
	columns := summaryColumns(rows)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = fmt.Sprintf("[yellow]%8s[white]", col)
	}
	t.addRow(tableRow(fmt.Sprintf("[yellow]%-20s[white]", "目标"), header))

	for i, id := range t.identifiers {
		cells := make([]string, len(columns))
		for j, col := range columns {
			value := rows[i].Summary[col]
			if value == "" {
				value = "N/A"
			}
			cells[j] = fmt.Sprintf("%8s", value)
		}
		t.addRow(tableRow(fmt.Sprintf("%s%-20s[white]", t.getTargetColor(id), id), cells))
	}

	t.flex.AddItem(t.chart, 0, 1, false)

	if t.selectedRow >= len(t.identifiers) {
		t.selectedRow = len(t.identifiers) - 1
	}
	t.updateSelection()
}

func (t *TUI) addRow(row *tview.Flex) {
	t.flex.AddItem(row, 1, 0, false)
	t.rowFlexes = append(t.rowFlexes, row)
}

func textCell(text string, align int) *tview.TextView {
	cell := tview.NewTextView()
	cell.SetDynamicColors(true)
	cell.SetTextAlign(align)
	cell.SetTextColor(tcell.ColorWhite)
	cell.SetText(text)
	return cell
}

// tableRow 目标列占两份宽度，其余各列一份
func tableRow(target string, cells []string) *tview.Flex {
	row := tview.NewFlex()
	row.SetDirection(tview.FlexColumn)
	row.AddItem(textCell(target, tview.AlignLeft), 0, 2, false)
	for _, c := range cells {
		row.AddItem(textCell(c, tview.AlignCenter), 0, 1, false)
	}
	return row
}

// updateChart 更新图表，全选时画所有目标
func (t *TUI) updateChart() {
	if t.testMode || t.chart == nil {
		return
	}
	if len(t.identifiers) == 0 {
		t.chart.SetText("没有数据")
		return
	}

	_, _, width, height := t.chart.GetInnerRect()
	if width < 20 {
		width = 80
	}
	if height < 10 {
		height = 15
	}

	var chartText string
	if t.selectedRow == -1 {
		chartText = t.drawMultiTargetChart(width, height)
	} else if t.selectedRow < len(t.identifiers) {
		chartText = t.drawSingleTargetChart(t.identifiers[t.selectedRow], width, height)
	}
	t.chart.SetText(chartText)
}
