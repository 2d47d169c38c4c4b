// Package core 定义了采集端、查看端与编解码层之间共享的核心接口和数据结构
// 这些接口保证了查看端与具体数据源（pinger、UDP统计、离线文件）的完全解耦
package core

import (
	"math"
	"time"
)

// PingResult 表示单次ping操作（或一次汇报）的原子结果
// 对应采集端产出的 (序号, 标识符, 地址, 发送时间, 往返时间或空) 五元组
type PingResult struct {
	Seq         int       // ICMP序号
	Identifier  string    // 目标标识符（如IP地址、域名等）
	Address     string    // 解析后的地址，未解析时为空
	Latency     float64   // 延迟(ms)。超时或失败时为 math.NaN()
	SendTime    time.Time // ping发送时间，用于时间对齐
	ReceiveTime time.Time // ping接收时间，超时时为零值
	Report      *Report   // 汇报型数据源附带的统计，pinger结果为nil
}

// RTT 返回往返时间，超时返回false
func (r PingResult) RTT() (time.Duration, bool) {
	if math.IsNaN(r.Latency) || math.IsInf(r.Latency, 0) {
		return 0, false
	}
	return time.Duration(r.Latency * float64(time.Millisecond)), true
}

// Report 守护进程或离线帧汇报的聚合统计
type Report struct {
	Inflight    float64 // 在途包数量
	LossPercent float64 // 丢包率（百分比）
	Samples     int     // 本次汇报包含的样本数
	BandLow     float64 // 延迟分布带下沿(ms)
	BandHigh    float64 // 延迟分布带上沿(ms)，不大于下沿时没有分布带
}

// PointStatus 表示数据点的状态
type PointStatus int

const (
	PointPending      PointStatus = iota // 正在等待响应
	PointSuccess                         // 成功收到响应
	PointTimeout                         // 超时
	PointInterpolated                    // 插值点
)

// DataPoint 表示带时间戳和状态的数据点
type DataPoint struct {
	Timestamp time.Time   // 数据点的时间戳（基于发送时间）
	Value     float64     // 延迟值，NaN表示超时或待定
	Status    PointStatus // 数据点状态
	Low, High float64     // 分布带，High 不大于 Low 时不绘制
}

// HasBand 数据点是否带有分布带
func (p DataPoint) HasBand() bool {
	return p.High > p.Low
}

// Stats 表示查看端为每个目标维护的统计数据
// 区分用于显示的近期历史和用于统计的全局累加器
type Stats struct {
	// Identifier 数据源的唯一标识符（如IP地址、URL等）
	Identifier string

	// --- 用于图表显示的近期历史 ---
	History []DataPoint // 有长度上限的滚动缓冲区，支持时间对齐

	// --- 用于表格统计的全局累加器 ---
	PacketsSent int // 总发包数（汇报型数据源为汇报次数）
	PacketsRecv int // 总收包数

	// Welford's Online Algorithm 所需的累加器
	WelfordCount int64   // Welford算法的样本计数
	WelfordMean  float64 // Welford算法的均值
	WelfordM2    float64 // Welford算法的M2值

	// 全局最大/最小值
	MinLatency float64 // 全局最小延迟
	MaxLatency float64 // 全局最大延迟

	// --- 最近一次汇报 ---
	LastReport *Report // 汇报型数据源的最新统计，pinger数据源为nil

	// --- 用于最终显示的格式化数据 ---
	Summary map[string]string // 汇总统计信息的键值对映射
}

// NewStats 创建一个新的Stats实例
func NewStats(identifier string) *Stats {
	return &Stats{
		Identifier: identifier,
		History:    make([]DataPoint, 0),
		MinLatency: math.Inf(1),  // 初始化为正无穷
		MaxLatency: math.Inf(-1), // 初始化为负无穷
		Summary:    make(map[string]string),
	}
}

// DataSource 定义了数据源的标准接口
// pinger、UDP统计接收器和离线回放器都实现这个接口
type DataSource interface {
	// DataStream 返回一个只读通道，用于接收实时的结果
	// 实现者应该在独立的goroutine中持续发送PingResult数据到这个通道
	DataStream() <-chan PingResult

	// Start 启动数据收集
	// 这个方法应该是非阻塞的，实际的数据收集工作在后台goroutine中进行
	Start()

	// Stop 停止数据收集并清理资源
	// 调用此方法后，DataStream()返回的通道应该被关闭
	Stop()
}

// InflightReporter 可报告在途包数量的数据源
type InflightReporter interface {
	// Inflight 返回指定目标当前已发送但尚未得到结果的包数量
	Inflight(identifier string) int
}
