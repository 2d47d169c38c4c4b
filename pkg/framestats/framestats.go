// Package framestats 实时统计报文的线路格式
// 每条报文是一个5元素数组: [地址, 在途数, 平均往返(us), 距上次回包(ms), 丢包率×1000]
// 没有文件头也没有版本，仅用于守护进程到查看端的传输
package framestats

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

// fieldCount 报文数组的固定长度
const fieldCount = 5

// NoReplyAvg 统计窗口内没有任何回包时守护进程填写的平均往返时间
const NoReplyAvg = 999 * time.Millisecond

// Stats 单个目标的一条实时统计
type Stats struct {
	Addr         string // 目标地址
	Inflight     uint16 // 已发送但尚未得到结果的包数量
	AvgUs        uint32 // 近期平均往返时间(us)
	LastPacketMs uint32 // 距离最近一次回包的时间(ms)
	LossX1000    uint32 // 丢包率百分比乘以1000
}

// FromMeasurement 由测量值构造统计报文，超出字段宽度的数值饱和截断
func FromMeasurement(addr string, inflight int, avg, sinceLast time.Duration, lossPercent float64) Stats {
	return Stats{
		Addr:         addr,
		Inflight:     uint16(saturate(float64(inflight), math.MaxUint16)),
		AvgUs:        uint32(saturate(float64(avg.Microseconds()), math.MaxUint32)),
		LastPacketMs: uint32(saturate(float64(sinceLast.Milliseconds()), math.MaxUint32)),
		LossX1000:    uint32(saturate(lossPercent*1000, math.MaxUint32)),
	}
}

func saturate(v, limit float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > limit:
		return limit
	}
	return v
}

// LossPercent 返回丢包率百分比
func (s Stats) LossPercent() float64 {
	return float64(s.LossX1000) / 1000
}

// Replied 统计窗口内是否收到过回复
// 平均值为0或恰好等于 NoReplyAvg 都表示没有回复
func (s Stats) Replied() bool {
	return s.AvgUs != 0 && s.Avg() != NoReplyAvg
}

// Avg 返回平均往返时间
func (s Stats) Avg() time.Duration {
	return time.Duration(s.AvgUs) * time.Microsecond
}

// SinceLast 返回距离最近一次回包的时间
func (s Stats) SinceLast() time.Duration {
	return time.Duration(s.LastPacketMs) * time.Millisecond
}

// Encode 把报文写入符号流，调用方负责Flush
func (s Stats) Encode(w *symbol.Writer) error {
	if err := w.WriteArrayHeader(fieldCount); err != nil {
		return err
	}
	if err := w.WriteString(s.Addr); err != nil {
		return err
	}
	if err := w.WriteUint16(s.Inflight); err != nil {
		return err
	}
	if err := w.WriteUint32(s.AvgUs); err != nil {
		return err
	}
	if err := w.WriteUint32(s.LastPacketMs); err != nil {
		return err
	}
	return w.WriteUint32(s.LossX1000)
}

// Marshal 把报文编码为独立的字节切片，可直接作为一个UDP数据报发送
func (s Stats) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	if err := s.Encode(w); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode 从符号流读取一条报文
// 流在报文之前正常结束时返回 io.EOF
func Decode(r *symbol.Reader) (Stats, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return Stats{}, err
	}
	if n != fieldCount {
		return Stats{}, fmt.Errorf("统计报文长度为%d: %w", n, core.ErrMalformedFrame)
	}

	var s Stats
	if s.Addr, err = r.ReadString(); err != nil {
		return Stats{}, symbol.Truncated(err)
	}
	inflight, err := r.ReadUintMax(math.MaxUint16)
	if err != nil {
		return Stats{}, symbol.Truncated(err)
	}
	s.Inflight = uint16(inflight)

	var fields [3]uint64
	for i := range fields {
		if fields[i], err = r.ReadUintMax(math.MaxUint32); err != nil {
			return Stats{}, symbol.Truncated(err)
		}
	}
	s.AvgUs = uint32(fields[0])
	s.LastPacketMs = uint32(fields[1])
	s.LossX1000 = uint32(fields[2])
	return s, nil
}

// Unmarshal 解码单个数据报，数据报中不允许有多余字节
func Unmarshal(data []byte) (Stats, error) {
	r := symbol.NewReader(bytes.NewReader(data))
	s, err := Decode(r)
	if err != nil {
		return Stats{}, symbol.Truncated(err)
	}
	if _, err := r.Next(); err != io.EOF {
		return Stats{}, fmt.Errorf("数据报末尾有多余数据: %w", core.ErrMalformedFrame)
	}
	return s, nil
}
