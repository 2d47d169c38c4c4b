// Package framedata 守护进程磁盘日志的原始帧格式
//
// 每帧由连续的独立符号组成，时间部分有两种形状：
//
//	完整帧: 时间戳字符串(RFC3339, 微秒), u32(恒为0)
//	增量帧: u32(距上一帧的微秒数)
//
// 随后依次是 u16 在途数、u16 丢包数、u32 样本数组。
// 解码时只看首个符号的类型来区分两种形状。
// 帧中不包含目标主机，主机与文件的对应关系由文件名约定。
package framedata

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

// MaxSamples 单帧允许的最大样本数
const MaxSamples = math.MaxUint16

// TimeLayout 完整帧时间戳的格式，UTC输出为 +00:00
const TimeLayout = "2006-01-02T15:04:05.000000-07:00"

// Frame 单个目标在一个汇报周期内的原始统计
type Frame struct {
	Full     bool          // 是否为完整时间编码
	Time     time.Time     // 绝对时间，增量帧由Reader补全
	Elapsed  time.Duration // 增量帧距上一帧的时间，完整帧为0
	Inflight uint16        // 在途包数量
	Lost     uint16        // 本周期新判定丢失的包数量（可能是更早周期发出的）
	RecvUs   []uint32      // 本周期收到的往返时间样本(us)
}

// Encode 把帧写入符号流，调用方负责Flush
func (f Frame) Encode(w *symbol.Writer) error {
	if len(f.RecvUs) > MaxSamples {
		return fmt.Errorf("样本数 %d 超过 %d: %w", len(f.RecvUs), MaxSamples, core.ErrOutOfRange)
	}

	if f.Full {
		if err := w.WriteString(f.Time.UTC().Format(TimeLayout)); err != nil {
			return err
		}
		if err := w.WriteUint32(0); err != nil {
			return err
		}
	} else {
		us := f.Elapsed.Microseconds()
		if us < 0 || us > math.MaxUint32 {
			return fmt.Errorf("增量时间 %v: %w", f.Elapsed, core.ErrOutOfRange)
		}
		if err := w.WriteUint32(uint32(us)); err != nil {
			return err
		}
	}

	if err := w.WriteUint16(f.Inflight); err != nil {
		return err
	}
	if err := w.WriteUint16(f.Lost); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(uint32(len(f.RecvUs))); err != nil {
		return err
	}
	for _, v := range f.RecvUs {
		if err := w.WriteUint32(v); err != nil {
			return err
		}
	}
	return nil
}

// Decode 读取一帧的结构，不解析增量帧的绝对时间
// 流在帧之前正常结束时返回 io.EOF
func Decode(r *symbol.Reader) (Frame, error) {
	f, err := decodeTime(r)
	if err != nil {
		return Frame{}, err
	}
	if err := decodeBody(r, &f); err != nil {
		return Frame{}, symbol.Truncated(err)
	}
	return f, nil
}

// decodeTime 读取判别符号并按形状解析时间部分
func decodeTime(r *symbol.Reader) (Frame, error) {
	kind, err := r.PeekKind()
	if err != nil {
		return Frame{}, err
	}

	switch kind {
	case symbol.KindString:
		return decodeFullTime(r)
	case symbol.KindUint:
		us, err := r.ReadUintMax(math.MaxUint32)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Elapsed: time.Duration(us) * time.Microsecond}, nil
	default:
		return Frame{}, fmt.Errorf("首个符号为%s: %w", kind, core.ErrAmbiguousFrameShape)
	}
}

func decodeFullTime(r *symbol.Reader) (Frame, error) {
	s, err := r.ReadString()
	if err != nil {
		return Frame{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Frame{}, fmt.Errorf("时间戳 %q: %v: %w", s, err, core.ErrMalformedFrame)
	}
	zero, err := r.ReadUint()
	if err != nil {
		return Frame{}, symbol.Truncated(err)
	}
	if zero != 0 {
		return Frame{}, fmt.Errorf("完整帧的增量字段为%d: %w", zero, core.ErrMalformedFrame)
	}
	return Frame{Full: true, Time: ts.UTC()}, nil
}

func decodeBody(r *symbol.Reader, f *Frame) error {
	inflight, err := r.ReadUintMax(math.MaxUint16)
	if err != nil {
		return err
	}
	lost, err := r.ReadUintMax(math.MaxUint16)
	if err != nil {
		return err
	}
	n, err := r.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n > MaxSamples {
		return fmt.Errorf("样本数 %d 超过 %d: %w", n, MaxSamples, core.ErrMalformedFrame)
	}

	f.Inflight = uint16(inflight)
	f.Lost = uint16(lost)
	f.RecvUs = make([]uint32, n)
	for i := range f.RecvUs {
		v, err := r.ReadUintMax(math.MaxUint32)
		if err != nil {
			return err
		}
		f.RecvUs[i] = uint32(v)
	}
	return nil
}

// Reader 顺序读取帧并维护运行时间
type Reader struct {
	sr           *symbol.Reader
	last         time.Time
	lastFull     time.Time
	has          bool
	fromKeyframe bool // 增量时间相对于上一个完整帧
}

// NewReader 创建帧读取器，增量时间相对于上一帧
func NewReader(r io.Reader) *Reader {
	return &Reader{sr: symbol.NewReader(r)}
}

// NewKeyframeReader 创建增量时间相对于上一个完整帧的读取器
// 旧版守护进程按这种方式记录增量帧
func NewKeyframeReader(r io.Reader) *Reader {
	return &Reader{sr: symbol.NewReader(r), fromKeyframe: true}
}

// Symbols 返回底层符号流，用于检查游标位置
func (r *Reader) Symbols() *symbol.Reader {
	return r.sr
}

// Next 读取下一帧并补全绝对时间
// 在任何完整帧之前出现的增量帧返回 core.ErrMalformedFrame
func (r *Reader) Next() (Frame, error) {
	f, err := Decode(r.sr)
	if err != nil {
		return Frame{}, err
	}
	if !f.Full {
		if !r.has {
			return Frame{}, fmt.Errorf("增量帧之前没有完整帧: %w", core.ErrMalformedFrame)
		}
		base := r.last
		if r.fromKeyframe {
			base = r.lastFull
		}
		f.Time = base.Add(f.Elapsed)
	} else {
		r.lastFull = f.Time
	}
	r.last = f.Time
	r.has = true
	return f, nil
}

// ReadAll 读取流中的全部帧
// 出错时同时返回出错前已读取的帧，截断的尾部可据此保留有效数据
func ReadAll(r io.Reader) ([]Frame, error) {
	fr := NewReader(r)
	var frames []Frame
	for {
		f, err := fr.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("第%d帧: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
}

// Writer 顺序写入帧并决定每帧的时间编码形状
type Writer struct {
	sw       *symbol.Writer
	keyframe time.Duration // 强制完整帧的最大间隔，0表示只在需要时写完整帧
	last     time.Time     // 上一帧的时间
	lastFull time.Time     // 上一个完整帧的时间
	has      bool
	frames   int
}

// NewWriter 创建帧写入器，keyframe 为强制写完整帧的间隔
func NewWriter(w io.Writer, keyframe time.Duration) *Writer {
	return &Writer{sw: symbol.NewWriter(w), keyframe: keyframe}
}

// Write 写入一帧，使用 f.Time、计数与样本，忽略 f.Elapsed
// 满足以下任一条件时写完整帧: f.Full 为真、没有上一帧、时间倒退、
// 间隔超出u32微秒、距上一个完整帧超过 keyframe
func (w *Writer) Write(f Frame) error {
	f.Time = f.Time.Truncate(time.Microsecond)
	elapsed := f.Time.Sub(w.last)

	full := f.Full || !w.has || elapsed < 0 ||
		elapsed.Microseconds() > math.MaxUint32 ||
		(w.keyframe > 0 && f.Time.Sub(w.lastFull) >= w.keyframe)

	if full {
		f.Full = true
		f.Elapsed = 0
	} else {
		f.Elapsed = elapsed
	}
	if err := f.Encode(w.sw); err != nil {
		return err
	}

	w.last = f.Time
	if full {
		w.lastFull = f.Time
	}
	w.has = true
	w.frames++
	return nil
}

// Frames 返回已写入的帧数
func (w *Writer) Frames() int {
	return w.frames
}

// Flush 把缓冲区写入底层io.Writer
func (w *Writer) Flush() error {
	return w.sw.Flush()
}
