package framedataq

import (
	"fmt"
	"io"
	"math"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/quantize"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

// codecState 编解码两端各自维护的流状态
type codecState struct {
	has        bool
	lastMs     int64 // 上一帧的unix毫秒
	lastFullS  int64 // 上一个完整帧的unix秒
	lastRecvQ0 int64 // 上一帧首个百分位的量化编码，仅增量编码模式下更新
}

// Encoder 把帧编码为流，首次写入时输出文件头
type Encoder struct {
	w      *symbol.Writer
	header Header
	q      quantize.Quantizer
	st     codecState

	wroteHeader bool
	frames      int
}

// NewEncoder 创建编码器
func NewEncoder(w io.Writer, h Header) (*Encoder, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	q, err := h.Quantizer()
	if err != nil {
		return nil, err
	}
	return &Encoder{w: symbol.NewWriter(w), header: h, q: q}, nil
}

// Header 返回编码器使用的文件头
func (e *Encoder) Header() Header {
	return e.header
}

// Frames 返回已编码的帧数
func (e *Encoder) Frames() int {
	return e.frames
}

// Reset 清空编解码状态，下一帧按完整帧写入
// 文件头只写一次，用于把多个独立输入拼接进同一个流
func (e *Encoder) Reset() {
	e.st = codecState{}
}

func (e *Encoder) writeHeader() error {
	if e.wroteHeader {
		return nil
	}
	if err := e.header.Encode(e.w); err != nil {
		return err
	}
	e.wroteHeader = true
	return nil
}

// Encode 写入一帧
// 以下情况写完整帧: 没有上一帧、时间早于上一帧、距上一个完整帧已满 FullEncodeSecs 秒
func (e *Encoder) Encode(f Frame) error {
	if err := e.writeHeader(); err != nil {
		return err
	}

	cur := f.Time.UnixMilli()
	full := !e.st.has || cur < e.st.lastMs ||
		cur/1000-e.st.lastFullS >= int64(min(e.header.FullEncodeSecs, math.MaxInt64))

	var last *int64
	if !full {
		last = &e.st.lastMs
	}
	wf, err := toWire(f, last)
	if err != nil {
		return err
	}

	if wf.recvLen > 0 {
		if wf.codes, err = e.quantize(f.Percentiles); err != nil {
			return err
		}
	}
	if err := wf.encode(e.w); err != nil {
		return err
	}

	e.st.has = true
	e.st.lastMs = cur
	if full {
		e.st.lastFullS = cur / 1000
	}
	if e.header.DeltaEncoding && e.header.Quantized() {
		if e.st.lastRecvQ0, err = e.q.Encode(float64(f.Percentiles[0])); err != nil {
			return err
		}
	}
	e.frames++
	return nil
}

// quantize 量化百分位，增量编码模式下减去上一帧的首个编码
func (e *Encoder) quantize(p Percentiles) (Percentiles, error) {
	if !e.header.Quantized() {
		return p, nil
	}
	var codes Percentiles
	for i, v := range p {
		c, err := e.q.Encode(float64(v))
		if err != nil {
			return codes, fmt.Errorf("百分位 %d: %w", i, err)
		}
		if e.header.DeltaEncoding {
			c -= e.st.lastRecvQ0
		}
		codes[i] = c
	}
	return codes, nil
}

// Flush 写出文件头(若尚未写出)并刷新缓冲区
func (e *Encoder) Flush() error {
	if err := e.writeHeader(); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder 顺序解码流中的帧
type Decoder struct {
	r      *symbol.Reader
	header Header
	layout Layout
	q      quantize.Quantizer
	st     codecState
	frames int
}

// NewDecoder 读取并校验文件头，在读取任何帧之前拒绝不兼容的流
func NewDecoder(r io.Reader) (*Decoder, error) {
	sr := symbol.NewReader(r)
	h, layout, err := ReadHeader(sr)
	if err != nil {
		return nil, err
	}
	q, err := h.Quantizer()
	if err != nil {
		return nil, err
	}
	return &Decoder{r: sr, header: h, layout: layout, q: q}, nil
}

// Header 返回流的文件头
func (d *Decoder) Header() Header {
	return d.header
}

// Layout 返回打开时解析出的帧布局
func (d *Decoder) Layout() Layout {
	return d.layout
}

// Frames 返回已解码的帧数
func (d *Decoder) Frames() int {
	return d.frames
}

// Next 解码下一帧，流正常结束时返回 io.EOF
func (d *Decoder) Next() (Frame, error) {
	wf, err := decodeWire(d.r, d.layout)
	if err != nil {
		return Frame{}, err
	}

	var cur int64
	if wf.full {
		cur = int64(wf.sec)*1000 + int64(wf.ms)
	} else {
		if !d.st.has {
			return Frame{}, fmt.Errorf("增量帧之前没有完整帧: %w", core.ErrMalformedFrame)
		}
		cur = d.st.lastMs + int64(wf.ms)
	}

	values := wf.codes
	if d.header.Quantized() && wf.recvLen > 0 {
		for i, c := range wf.codes {
			values[i] = int64(math.Round(d.q.Decode(c)))
		}
	}
	f := fromWire(wf, values, cur)

	d.st.has = true
	d.st.lastMs = cur
	if wf.full {
		d.st.lastFullS = cur / 1000
	}
	d.frames++
	return f, nil
}

// ReadAll 解码剩余的全部帧，出错时同时返回出错前已解码的帧
func (d *Decoder) ReadAll() ([]Frame, error) {
	var frames []Frame
	for {
		f, err := d.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("第%d帧: %w", d.frames, err)
		}
		frames = append(frames, f)
	}
}
