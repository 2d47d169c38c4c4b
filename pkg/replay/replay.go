// Package replay 把离线的FrameDataQ帧作为查看端的数据源回放
package replay

import (
	"math"
	"sync"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
)

// 百分位数组中的位置
const (
	bandLowIndex  = 1 // 12.5%
	medianIndex   = 3
	bandHighIndex = 5 // 87.5%
)

// Series 一个目标的帧序列，按时间排序
type Series struct {
	Host   string
	Frames []framedataq.Frame
}

// Span 返回所有序列覆盖的时间范围
func Span(series []Series) (start, end time.Time, ok bool) {
	for _, s := range series {
		if len(s.Frames) == 0 {
			continue
		}
		first, last := s.Frames[0].Time, s.Frames[len(s.Frames)-1].Time
		if !ok || first.Before(start) {
			start = first
		}
		if !ok || last.After(end) {
			end = last
		}
		ok = true
	}
	return start, end, ok
}

// FrameResult 把一帧转换为汇报型结果
// 延迟取中位数，分布带取 12.5% 与 87.5% 分位，没有样本时延迟为NaN
func FrameResult(host string, f framedataq.Frame) core.PingResult {
	latency := math.NaN()
	var low, high float64
	if f.RecvLen > 0 {
		latency = float64(f.Percentiles[medianIndex]) / 1000
		low = float64(f.Percentiles[bandLowIndex]) / 1000
		high = float64(f.Percentiles[bandHighIndex]) / 1000
	}
	loss := 0.0
	if total := f.Lost + float64(f.RecvLen); total > 0 {
		loss = 100 * f.Lost / total
	}
	return core.PingResult{
		Identifier:  host,
		Latency:     latency,
		SendTime:    f.Time,
		ReceiveTime: f.Time,
		Report: &core.Report{
			Inflight:    f.Inflight,
			LossPercent: loss,
			Samples:     f.RecvLen,
			BandLow:     low,
			BandHigh:    high,
		},
	}
}

// Source 一次性发送全部帧后关闭通道
type Source struct {
	series   []Series
	dataChan chan core.PingResult
	done     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New 创建回放数据源
func New(series ...Series) *Source {
	return &Source{
		series:   series,
		dataChan: make(chan core.PingResult, 256),
		done:     make(chan struct{}),
	}
}

// DataStream 返回结果通道
func (s *Source) DataStream() <-chan core.PingResult {
	return s.dataChan
}

// Start 在后台按序列顺序发送
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
}

func (s *Source) run() {
	defer s.wg.Done()
	defer close(s.dataChan)
	for _, series := range s.series {
		for _, f := range series.Frames {
			select {
			case s.dataChan <- FrameResult(series.Host, f):
			case <-s.done:
				return
			}
		}
	}
}

// Stop 停止回放并关闭通道，可重复调用
func (s *Source) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.done)
	if started {
		s.wg.Wait()
		return
	}
	close(s.dataChan)
}
