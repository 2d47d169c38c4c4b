// Package pinger 实现了core.DataSource接口，作为采集端的ICMP数据源
// 根据操作系统和用户权限自动选择最合适的底层实现
package pinger

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/apex/log"
	"github.com/m-lab/go/memoryless"
)

// Pinger 可报告在途包数量的ping数据源
type Pinger interface {
	core.DataSource
	core.InflightReporter
}

// payload ICMP回显请求携带的数据
var payload = []byte("zzping")

// basePinger 定义了所有pinger实现的基本结构
type basePinger struct {
	targets  []string                // ping目标列表
	config   *Config                 // 配置信息
	dataChan chan core.PingResult    // 数据输出通道
	inflight map[string]*atomic.Int64 // 每个目标已发送但尚未得到结果的包数量

	ctx    context.Context    // 取消后所有目标goroutine退出
	cancel context.CancelFunc // 停止信号
	wg     sync.WaitGroup     // 等待组，用于优雅关闭

	running   bool         // 运行状态
	runningMu sync.RWMutex // 保护running状态的锁
}

// newBasePinger 创建基础pinger结构
func newBasePinger(targets []string, config *Config) *basePinger {
	ctx, cancel := context.WithCancel(context.Background())
	inflight := make(map[string]*atomic.Int64, len(targets))
	for _, t := range targets {
		inflight[t] = new(atomic.Int64)
	}
	return &basePinger{
		targets:  targets,
		config:   config,
		dataChan: make(chan core.PingResult, config.BufferSize),
		inflight: inflight,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// DataStream 实现core.DataSource接口
func (bp *basePinger) DataStream() <-chan core.PingResult {
	return bp.dataChan
}

// Inflight 实现core.InflightReporter接口
func (bp *basePinger) Inflight(identifier string) int {
	if c, ok := bp.inflight[identifier]; ok {
		return int(c.Load())
	}
	return 0
}

// startTargets 为每个目标启动一个goroutine
func (bp *basePinger) startTargets(run func(target string)) {
	bp.setRunning(true)
	for _, target := range bp.targets {
		bp.wg.Add(1)
		go func(target string) {
			defer bp.wg.Done()
			run(target)
		}(target)
	}
}

// Stop 实现core.DataSource接口
func (bp *basePinger) Stop() {
	bp.runningMu.Lock()
	if !bp.running {
		bp.runningMu.Unlock()
		bp.cancel()
		return
	}
	bp.running = false
	bp.runningMu.Unlock()

	bp.cancel()
	bp.wg.Wait()
	close(bp.dataChan)
}

// isRunning 检查是否正在运行
func (bp *basePinger) isRunning() bool {
	bp.runningMu.RLock()
	defer bp.runningMu.RUnlock()
	return bp.running
}

// setRunning 设置运行状态
func (bp *basePinger) setRunning(running bool) {
	bp.runningMu.Lock()
	defer bp.runningMu.Unlock()
	bp.running = running
}

// tick 按配置的间隔(可带随机抖动)调用 fn，直到停止
// fn 的参数为从1开始递增的ICMP序号
func (bp *basePinger) tick(target string, fn func(seq int)) {
	ticker, err := memoryless.NewTicker(bp.ctx, bp.config.tickerConfig())
	if err != nil {
		logging.Logger.WithError(err).WithField("target", target).Error("无法创建ping定时器")
		return
	}
	defer ticker.Stop()

	seq := 0
	for range ticker.C {
		seq = (seq + 1) & 0xffff
		fn(seq)
	}
}

// begin 标记一个包开始在途，返回的函数在得到结果时调用
func (bp *basePinger) begin(target string) func() {
	c, ok := bp.inflight[target]
	if !ok {
		return func() {}
	}
	c.Add(1)
	var once sync.Once
	return func() { once.Do(func() { c.Add(-1) }) }
}

// fail 发送一个失败结果并记录原因
func (bp *basePinger) fail(target, address string, seq int, sendTime time.Time, err error) {
	if err != nil {
		logging.Logger.WithError(err).WithFields(log.Fields{
			"target": target,
			"seq":    seq,
		}).Debug("ping失败")
	}
	bp.emit(core.PingResult{
		Seq:        seq,
		Identifier: target,
		Address:    address,
		Latency:    math.NaN(),
		SendTime:   sendTime,
	})
}

// succeed 发送一个成功结果
func (bp *basePinger) succeed(target, address string, seq int, sendTime time.Time, rtt time.Duration) {
	bp.emit(core.PingResult{
		Seq:         seq,
		Identifier:  target,
		Address:     address,
		Latency:     float64(rtt.Nanoseconds()) / 1e6,
		SendTime:    sendTime,
		ReceiveTime: sendTime.Add(rtt),
	})
}

// emit 发送结果到数据通道，通道满时丢弃
func (bp *basePinger) emit(result core.PingResult) {
	if !bp.isRunning() {
		return
	}

	if math.IsNaN(result.Latency) {
		metrics.PingResults.WithLabelValues("timeout").Inc()
	} else {
		metrics.PingResults.WithLabelValues("success").Inc()
	}

	select {
	case bp.dataChan <- result:
	case <-bp.ctx.Done():
	default:
		// 高频ping场景下可以接受丢弃
		metrics.StatsDropped.WithLabelValues("ping_buffer_full").Inc()
	}
}

// NewPinger 创建新的Pinger实例
func NewPinger(targets []string, config *Config) (Pinger, error) {
	if len(targets) == 0 {
		return nil, errors.New("必须指定至少一个目标")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateTargets(targets); err != nil {
		return nil, err
	}

	platform := getPlatformCapability()

	// 优先尝试特权模式（所有平台统一用raw socket）
	if platform.hasPrivilegedAccess() {
		return platform.createPrivilegedPinger(targets, config)
	}
	return platform.createUnprivilegedPinger(targets, config)
}

// GetSystemInfo 获取完整的系统信息
// 返回操作系统名称、权限状态和实现类型
func GetSystemInfo() (osName, privilegeStatus, implementationType string) {
	switch runtime.GOOS {
	case "windows":
		osName = "Windows"
	case "linux":
		osName = "Linux"
	case "darwin":
		osName = "macOS"
	default:
		osName = runtime.GOOS
	}

	hasPriv := getPlatformCapability().hasPrivilegedAccess()

	switch runtime.GOOS {
	case "windows":
		if hasPriv {
			privilegeStatus, implementationType = "管理员模式 (Raw Socket)", "Raw Socket"
		} else {
			privilegeStatus, implementationType = "普通用户模式 (Windows API)", "Windows ICMP API"
		}
	case "linux":
		if hasPriv {
			privilegeStatus, implementationType = "特权模式 (Raw Socket)", "Linux Raw Socket"
		} else {
			privilegeStatus, implementationType = "非特权模式 (DGRAM Socket)", "Linux DGRAM Socket"
		}
	case "darwin":
		if hasPriv {
			privilegeStatus, implementationType = "特权模式 (Root权限)", "macOS Raw Socket"
		} else {
			privilegeStatus, implementationType = "权限不足 (需要sudo)", "macOS Raw Socket (未启用)"
		}
	default:
		if hasPriv {
			privilegeStatus, implementationType = "特权模式", "通用Raw Socket"
		} else {
			privilegeStatus, implementationType = "权限不足", "通用Raw Socket (需要提权)"
		}
	}
	return
}

// HasPrivilegedAccess 检查是否有特权访问能力
func HasPrivilegedAccess() bool {
	return getPlatformCapability().hasPrivilegedAccess()
}
