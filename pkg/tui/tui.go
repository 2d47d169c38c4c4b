// Package tui 提供基于时间戳的终端查看端
// 数据可以来自本地pinger、守护进程的UDP统计或离线帧回放
package tui

import (
	"sync"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/rivo/tview"
)

// TUI 主界面结构
type TUI struct {
	app        *tview.Application
	rowFlexes  []*tview.Flex
	chart      *tview.TextView
	flex       *tview.Flex
	dataSource core.DataSource
	title      string

	tuiConfig        *Config
	timeoutThreshold time.Duration

	statsData map[string]*core.Stats
	statsMu   sync.RWMutex

	selectedRow int
	identifiers []string
	targets     []string // 目标顺序，未知目标按出现顺序追加

	nav navThrottle

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	testMode bool

	startTime            time.Time
	now                  func() time.Time
	windowMu             sync.RWMutex
	fixedStart, fixedEnd time.Time
}

func newTUI(dataSource core.DataSource, targets []string, tuiConfig *Config, sourceTimeout time.Duration) *TUI {
	now := time.Now()
	return &TUI{
		app:              tview.NewApplication(),
		dataSource:       dataSource,
		title:            "ZZPing",
		targets:          append([]string(nil), targets...),
		tuiConfig:        tuiConfig,
		timeoutThreshold: tuiConfig.GetTimeoutThreshold(sourceTimeout),
		statsData:        make(map[string]*core.Stats),
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
		selectedRow:      -1, // 默认全选
		startTime:        now,
		now:              time.Now,
	}
}

// NewTUI 创建查看端，sourceTimeout 是数据源判定超时的时间
func NewTUI(dataSource core.DataSource, targets []string, tuiConfig *Config, sourceTimeout time.Duration) *TUI {
	t := newTUI(dataSource, targets, tuiConfig, sourceTimeout)
	t.chart = tview.NewTextView()
	t.setupUI()
	t.setupKeyBindings()
	return t
}

// NewTUIForTest 创建不初始化图形组件的实例
func NewTUIForTest(dataSource core.DataSource, targets []string, tuiConfig *Config, sourceTimeout time.Duration) *TUI {
	t := newTUI(dataSource, targets, tuiConfig, sourceTimeout)
	t.testMode = true
	return t
}

// SetTitle 设置等待界面上的标题
func (t *TUI) SetTitle(title string) {
	t.title = title
}

// Run 启动数据源并运行界面，直到用户退出
func (t *TUI) Run() error {
	t.dataSource.Start()
	go t.processData()

	err := t.app.Run()
	<-t.doneChan
	return err
}

// Stop 停止数据处理、数据源与界面
func (t *TUI) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.dataSource.Stop()
		t.app.Stop()
	})
}

// processData 处理数据源的结果并定时刷新
// 数据源结束后界面继续保留，直到用户退出
func (t *TUI) processData() {
	defer close(t.doneChan)

	dataChan := t.dataSource.DataStream()
	uiTicker := time.NewTicker(t.tuiConfig.RefreshInterval)
	defer uiTicker.Stop()

	timeGridTicker := time.NewTicker(t.tuiConfig.TimeGridInterval)
	defer timeGridTicker.Stop()

	for {
		select {
		case result, ok := <-dataChan:
			if !ok {
				dataChan = nil
				t.handleUIRefresh()
				continue
			}
			t.updateStatsWithTime(result)

		case <-uiTicker.C:
			t.handleUIRefresh()

		case <-timeGridTicker.C:
			t.maintainTimeGrid()

		case <-t.stopChan:
			return
		}
	}
}

// handleUIRefresh 在UI线程重建表格与图表
func (t *TUI) handleUIRefresh() {
	if t.testMode || t.app == nil {
		return
	}
	t.app.QueueUpdateDraw(func() {
		t.rebuildUI()
		t.updateChart()
	})
}
