// Package tui 交互控制模块
package tui

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	navBurst = 5                      // 连续处理的导航事件数
	navRest  = 100 * time.Millisecond // 之后忽略导航事件的时长
)

// navThrottle 限制按住方向键时的重绘频率，只在UI线程使用
type navThrottle struct {
	count   int
	resting bool
	last    time.Time
}

// allow 判断当前事件是否应处理，处理时同时记录
func (n *navThrottle) allow(now time.Time) bool {
	if n.resting {
		if now.Sub(n.last) < navRest {
			return false
		}
		n.resting = false
		n.count = 0
	}
	n.count++
	n.last = now
	if n.count >= navBurst {
		n.resting = true
	}
	return true
}

// setupKeyBindings 设置键盘绑定
//
//	q / Ctrl-C  退出
//	↑ / ↓       逐个选择目标，越过两端回到全选
//	a           回到全选
func (t *TUI) setupKeyBindings() {
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			t.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				t.Stop()
				return nil
			case 'a', 'A':
				t.selectAll()
				return nil
			}
		case tcell.KeyUp:
			if t.nav.allow(time.Now()) {
				t.navigateUp()
			}
			return nil
		case tcell.KeyDown:
			if t.nav.allow(time.Now()) {
				t.navigateDown()
			}
			return nil
		}
		return event
	})
}

// navigateUp 向上导航
func (t *TUI) navigateUp() {
	if len(t.identifiers) == 0 {
		return
	}
	switch {
	case t.selectedRow == -1:
		t.selectedRow = len(t.identifiers) - 1
	case t.selectedRow > 0:
		t.selectedRow--
	default:
		t.selectedRow = -1
	}
	t.refreshSelection()
}

// navigateDown 向下导航
func (t *TUI) navigateDown() {
	if len(t.identifiers) == 0 {
		return
	}
	switch {
	case t.selectedRow == -1:
		t.selectedRow = 0
	case t.selectedRow < len(t.identifiers)-1:
		t.selectedRow++
	default:
		t.selectedRow = -1
	}
	t.refreshSelection()
}

func (t *TUI) selectAll() {
	t.selectedRow = -1
	t.refreshSelection()
}

func (t *TUI) refreshSelection() {
	if t.testMode {
		return
	}
	t.updateSelection()
	t.updateChart()
}

// updateSelection 高亮选中的数据行，表头行索引为0
func (t *TUI) updateSelection() {
	if t.testMode || len(t.rowFlexes) == 0 {
		return
	}
	for i, rowFlex := range t.rowFlexes {
		bg := tcell.ColorDefault
		if i > 0 && t.selectedRow == i-1 {
			bg = tcell.ColorDarkCyan
		}
		for j := 0; j < rowFlex.GetItemCount(); j++ {
			if textView, ok := rowFlex.GetItem(j).(*tview.TextView); ok {
				textView.SetBackgroundColor(bg)
			}
		}
	}
}
