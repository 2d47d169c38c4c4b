package framedataq

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

// Quantiles 百分位标记对应的分位点，顺序即解码约定
var Quantiles = [7]float64{0, 0.125, 0.25, 0.5, 0.75, 0.875, 1}

// Percentiles 升序的7个往返时间百分位(us)，0表示无样本
type Percentiles [7]int64

// ComputePercentiles 对样本做线性插值求百分位，结果四舍五入
// 空样本返回全0
func ComputePercentiles(samples []uint64) Percentiles {
	var p Percentiles
	if len(samples) == 0 {
		return p
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	last := float64(len(sorted) - 1)
	for i, q := range Quantiles {
		pos := q * last
		l, r := int(math.Floor(pos)), int(math.Ceil(pos))
		if l == r {
			p[i] = int64(sorted[l])
			continue
		}
		fr := pos - float64(l)
		p[i] = int64(math.Round(float64(sorted[l])*(1-fr) + float64(sorted[r])*fr))
	}
	return p
}

// Frame 解码后的完整帧
type Frame struct {
	Time        time.Time   // 毫秒精度
	Inflight    float64     // 在途数，聚合帧为均方根
	Lost        float64     // 丢包数，聚合帧为均值
	RecvLen     int         // 样本数，聚合帧为均值
	Percentiles Percentiles // RecvLen为0时全0
}

// FromFrameData 把原始帧转换为百分位帧，时间截断到毫秒
// 原始帧的 Time 必须已由 framedata.Reader 补全
func FromFrameData(fd framedata.Frame) Frame {
	samples := make([]uint64, len(fd.RecvUs))
	for i, v := range fd.RecvUs {
		samples[i] = uint64(v)
	}
	return Frame{
		Time:        fd.Time.Truncate(time.Millisecond).UTC(),
		Inflight:    float64(fd.Inflight),
		Lost:        float64(fd.Lost),
		RecvLen:     len(fd.RecvUs),
		Percentiles: ComputePercentiles(samples),
	}
}

// String 便于文本输出
func (f Frame) String() string {
	return fmt.Sprintf("%s i:%g l:%g sz:%d\t%v",
		f.Time.Format(time.RFC3339Nano), f.Inflight, f.Lost, f.RecvLen, f.Percentiles)
}

// wireFrame 线路上的一帧，时间与百分位都是编码后的形式
type wireFrame struct {
	full     bool
	sec      uint64 // 完整帧的unix秒
	ms       uint64 // 完整帧为毫秒部分，增量帧为距上一帧的毫秒数
	inflight uint64
	lost     uint64
	recvLen  uint64
	codes    Percentiles // 量化后的百分位编码
}

// encode 写入一帧，百分位以相邻差值写入
func (wf *wireFrame) encode(w *symbol.Writer) error {
	if wf.full {
		if err := w.WriteUint(wf.sec); err != nil {
			return err
		}
	} else if err := w.WriteNil(); err != nil {
		return err
	}
	if err := w.WriteUint(wf.ms); err != nil {
		return err
	}

	if wf.inflight+wf.lost > 0 {
		if err := w.WriteUint(wf.inflight); err != nil {
			return err
		}
		if err := w.WriteUint(wf.lost); err != nil {
			return err
		}
	} else if err := w.WriteInt(layout101.NoCounts); err != nil {
		return err
	}

	if err := w.WriteUint(wf.recvLen); err != nil {
		return err
	}
	if wf.recvLen == 0 {
		return nil
	}

	if err := w.WriteArrayHeader(uint32(len(wf.codes))); err != nil {
		return err
	}
	var prev int64
	for _, c := range wf.codes {
		d := c - prev
		prev = c
		var err error
		if d < 0 {
			err = w.WriteInt(d)
		} else {
			err = w.WriteUint(uint64(d))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeWire 按布局读取一帧，流在帧之前正常结束时返回 io.EOF
func decodeWire(r *symbol.Reader, layout Layout) (wireFrame, error) {
	var wf wireFrame

	kind, err := r.PeekKind()
	if err != nil {
		return wf, err
	}
	switch kind {
	case symbol.KindUint:
		wf.full = true
		if wf.sec, err = r.ReadUint(); err != nil {
			return wf, err
		}
	case symbol.KindNil:
		if err := r.ReadNil(); err != nil {
			return wf, err
		}
	default:
		return wf, fmt.Errorf("时间戳符号为%s: %w", kind, core.ErrAmbiguousFrameShape)
	}

	if err := decodeWireBody(r, layout, &wf); err != nil {
		return wf, symbol.Truncated(err)
	}
	return wf, nil
}

func decodeWireBody(r *symbol.Reader, layout Layout, wf *wireFrame) error {
	var err error
	if wf.ms, err = r.ReadUint(); err != nil {
		return err
	}
	if wf.full && wf.ms >= 1000 {
		return fmt.Errorf("毫秒部分为%d: %w", wf.ms, core.ErrMalformedFrame)
	}

	counts, err := r.ReadInt()
	if err != nil {
		return err
	}
	switch {
	case counts == layout.NoCounts:
	case counts < 0:
		return fmt.Errorf("在途数为%d: %w", counts, core.ErrMalformedFrame)
	default:
		wf.inflight = uint64(counts)
		if wf.lost, err = r.ReadUint(); err != nil {
			return err
		}
	}

	if wf.recvLen, err = r.ReadUint(); err != nil {
		return err
	}
	if wf.recvLen == 0 {
		return nil
	}

	n, err := r.ReadArrayHeader()
	if err != nil {
		return err
	}
	if int(n) != layout.Percentiles {
		return fmt.Errorf("百分位数组长度为%d: %w", n, core.ErrMalformedFrame)
	}
	var prev int64
	for i := range wf.codes {
		d, err := r.ReadInt()
		if err != nil {
			return err
		}
		prev += d
		wf.codes[i] = prev
	}
	return nil
}

// MarshalFrame 把帧编码为不量化的独立完整帧
func MarshalFrame(f Frame) ([]byte, error) {
	wf, err := toWire(f, nil)
	if err != nil {
		return nil, err
	}
	wf.codes = f.Percentiles
	if wf.recvLen == 0 {
		wf.codes = Percentiles{}
	}

	var buf bytes.Buffer
	w := symbol.NewWriter(&buf)
	if err := wf.encode(w); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalFrame 解码 MarshalFrame 生成的独立帧
func UnmarshalFrame(data []byte) (Frame, error) {
	r := symbol.NewReader(bytes.NewReader(data))
	wf, err := decodeWire(r, layout101)
	if err != nil {
		return Frame{}, symbol.Truncated(err)
	}
	if !wf.full {
		return Frame{}, fmt.Errorf("独立帧必须是完整帧: %w", core.ErrMalformedFrame)
	}
	if _, err := r.Next(); err != io.EOF {
		return Frame{}, fmt.Errorf("帧末尾有多余数据: %w", core.ErrMalformedFrame)
	}
	return fromWire(wf, wf.codes, int64(wf.sec)*1000+int64(wf.ms)), nil
}

// toWire 转换时间与计数，last 为上一帧的unix毫秒，nil表示写完整帧
func toWire(f Frame, last *int64) (wireFrame, error) {
	var wf wireFrame
	cur := f.Time.UnixMilli()
	if cur < 0 {
		return wf, fmt.Errorf("时间 %v 早于1970年: %w", f.Time, core.ErrOutOfRange)
	}
	if last == nil {
		wf.full = true
		wf.sec = uint64(cur / 1000)
		wf.ms = uint64(cur % 1000)
	} else {
		wf.ms = uint64(cur - *last)
	}

	var err error
	if wf.inflight, err = roundCount(f.Inflight); err != nil {
		return wf, err
	}
	if wf.lost, err = roundCount(f.Lost); err != nil {
		return wf, err
	}
	if f.RecvLen < 0 {
		return wf, fmt.Errorf("样本数 %d: %w", f.RecvLen, core.ErrOutOfRange)
	}
	wf.recvLen = uint64(f.RecvLen)
	return wf, nil
}

func roundCount(v float64) (uint64, error) {
	r := math.Round(v)
	if math.IsNaN(r) || r < 0 || r > math.MaxInt64 {
		return 0, fmt.Errorf("计数 %v: %w", v, core.ErrOutOfRange)
	}
	return uint64(r), nil
}

// fromWire 由线路帧与还原后的百分位构造帧，ms 为解析后的unix毫秒
func fromWire(wf wireFrame, values Percentiles, ms int64) Frame {
	f := Frame{
		Time:     time.UnixMilli(ms).UTC(),
		Inflight: float64(wf.inflight),
		Lost:     float64(wf.lost),
		RecvLen:  int(wf.recvLen),
	}
	if wf.recvLen > 0 {
		f.Percentiles = values
	}
	return f
}
