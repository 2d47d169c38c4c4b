package collector

import (
	"slices"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/framestats"
)

type received struct {
	at  time.Time // 收到回复的时间
	rtt time.Duration
}

// Tracker 跟踪单个目标的近期结果
// 不是并发安全的，只由守护进程的主循环使用
type Tracker struct {
	host string
	keep KeepPackets

	recv []received  // 保留期内收到的回复，按到达顺序
	lost []time.Time // 保留期内判定丢失的包的发送时间
	last time.Time   // 最近一次回复的发送时间

	// 自上一帧以来的新结果
	pendingUs   []uint32
	pendingLost int
}

// NewTracker 创建目标跟踪器
func NewTracker(host string, keep KeepPackets) *Tracker {
	return &Tracker{host: host, keep: keep}
}

// Host 返回目标标识符
func (t *Tracker) Host() string {
	return t.host
}

// Observe 记录一个ping结果
func (t *Tracker) Observe(r core.PingResult) {
	rtt, ok := r.RTT()
	if !ok {
		t.lost = append(t.lost, r.SendTime)
		t.pendingLost++
		return
	}
	at := r.ReceiveTime
	if at.IsZero() {
		at = r.SendTime.Add(rtt)
	}
	t.recv = append(t.recv, received{at: at, rtt: rtt})
	if r.SendTime.After(t.last) {
		t.last = r.SendTime
	}
	if len(t.pendingUs) < framedata.MaxSamples {
		t.pendingUs = append(t.pendingUs, uint32(min(rtt.Microseconds(), 1<<32-1)))
	}
}

// Prune 丢弃超过保留期的结果
func (t *Tracker) Prune(now time.Time) {
	t.recv = slices.DeleteFunc(t.recv, func(r received) bool {
		return now.Sub(r.at) > t.keep.Recv
	})
	t.lost = slices.DeleteFunc(t.lost, func(at time.Time) bool {
		return now.Sub(at) > t.keep.Lost
	})
}

// Stats 计算实时统计
// 平均往返时间取 window 内收到的回复，丢包率取保留期内的全部结果
func (t *Tracker) Stats(now time.Time, inflight int, window time.Duration) framestats.Stats {
	avg := framestats.NoReplyAvg
	var sum time.Duration
	n := 0
	for _, r := range t.recv {
		if now.Sub(r.at) <= window {
			sum += r.rtt
			n++
		}
	}
	if n > 0 {
		avg = sum / time.Duration(n)
	}

	sinceLast := time.Duration(0)
	if !t.last.IsZero() {
		sinceLast = now.Sub(t.last)
	}

	loss := 0.0
	if total := len(t.lost) + len(t.recv); total > 0 {
		loss = 100 * float64(len(t.lost)) / float64(total)
	}
	return framestats.FromMeasurement(t.host, inflight, avg, sinceLast, loss)
}

// Frame 取出自上一帧以来的结果，组成一个增量形状由写入器决定的帧
func (t *Tracker) Frame(now time.Time, inflight int) framedata.Frame {
	samples := t.pendingUs
	slices.Sort(samples)
	f := framedata.Frame{
		Time:     now,
		Inflight: uint16(min(max(inflight, 0), 1<<16-1)),
		Lost:     uint16(min(t.pendingLost, 1<<16-1)),
		RecvUs:   samples,
	}
	t.pendingUs = nil
	t.pendingLost = 0
	return f
}
