// Package aggregate 把解码后的帧序列拼接、折叠为更低的时间分辨率
//
// 百分位的合并是近似值：原始样本已不可得，只能在各帧的百分位标记
// 的并集上重新计算百分位，没有误差上界。
package aggregate

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
)

// Source 帧来源，*framedataq.Decoder 与 *SliceSource 都实现该接口
type Source interface {
	Header() framedataq.Header
	// Next 返回下一帧，没有更多帧时返回 io.EOF
	Next() (framedataq.Frame, error)
}

// SliceSource 内存中的帧序列
type SliceSource struct {
	header framedataq.Header
	frames []framedataq.Frame
	pos    int
}

// NewSliceSource 用给定文件头与帧创建来源
func NewSliceSource(h framedataq.Header, frames []framedataq.Frame) *SliceSource {
	return &SliceSource{header: h, frames: frames}
}

// Header 实现Source接口
func (s *SliceSource) Header() framedataq.Header {
	return s.header
}

// Next 实现Source接口
func (s *SliceSource) Next() (framedataq.Frame, error) {
	if s.pos >= len(s.frames) {
		return framedataq.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Concatenation 按输入顺序依次读取多个来源，不按时间重排
type Concatenation struct {
	sources []Source
	idx     int
}

// Concat 在读取任何帧之前检查各来源的文件头
// 量化精度或增量编码设置不一致时返回 core.ErrIncompatibleHeaders
func Concat(sources ...Source) (*Concatenation, error) {
	if len(sources) == 0 {
		return nil, errors.New("没有输入")
	}
	first := sources[0].Header()
	for i, s := range sources[1:] {
		if err := Compatible(first, s.Header()); err != nil {
			return nil, fmt.Errorf("第%d个输入: %w", i+1, err)
		}
	}
	return &Concatenation{sources: sources}, nil
}

// Compatible 检查两个文件头能否拼接
func Compatible(a, b framedataq.Header) error {
	if a.DeltaEncoding != b.DeltaEncoding {
		return fmt.Errorf("增量编码 %t 与 %t 不一致: %w", a.DeltaEncoding, b.DeltaEncoding, core.ErrIncompatibleHeaders)
	}
	switch {
	case a.Precision == nil && b.Precision == nil:
		return nil
	case a.Precision == nil || b.Precision == nil || *a.Precision != *b.Precision:
		return fmt.Errorf("量化配置不一致 (%v / %v): %w", a, b, core.ErrIncompatibleHeaders)
	}
	return nil
}

// Header 返回第一个输入的文件头
func (c *Concatenation) Header() framedataq.Header {
	return c.sources[0].Header()
}

// Index 返回当前正在读取的输入序号
func (c *Concatenation) Index() int {
	return c.idx
}

// Next 实现Source接口
func (c *Concatenation) Next() (framedataq.Frame, error) {
	for c.idx < len(c.sources) {
		f, err := c.sources[c.idx].Next()
		if err == io.EOF {
			c.idx++
			continue
		}
		return f, err
	}
	return framedataq.Frame{}, io.EOF
}

// Fold 把若干帧折叠为一帧
//
//	时间: 毫秒时间戳的均值
//	在途数: 均方根
//	丢包数: 均值
//	样本数: 均值取整，有标记时至少为1
//	百分位: 有样本的帧的全部标记合并排序后重新计算，是近似值
func Fold(frames []framedataq.Frame) framedataq.Frame {
	if len(frames) == 0 {
		return framedataq.Frame{}
	}
	n := float64(len(frames))

	var sumMs int64
	var sumSq, sumLost float64
	var sumRecv int
	var markers []uint64
	for _, f := range frames {
		sumMs += f.Time.UnixMilli()
		sumSq += f.Inflight * f.Inflight
		sumLost += f.Lost
		sumRecv += f.RecvLen
		if f.RecvLen == 0 {
			continue
		}
		for _, v := range f.Percentiles {
			if v >= 0 {
				markers = append(markers, uint64(v))
			}
		}
	}

	recvLen := int(math.Round(float64(sumRecv) / n))
	if recvLen == 0 && len(markers) > 0 {
		recvLen = 1
	}
	return framedataq.Frame{
		Time:        time.UnixMilli(sumMs / int64(len(frames))).UTC(),
		Inflight:    math.Sqrt(sumSq / n),
		Lost:        sumLost / n,
		RecvLen:     recvLen,
		Percentiles: framedataq.ComputePercentiles(markers),
	}
}

// FoldChunks 把帧按每 size 个一组折叠，末尾不足一组的也折叠输出
func FoldChunks(frames []framedataq.Frame, size int) []framedataq.Frame {
	if size <= 1 {
		return frames
	}
	out := make([]framedataq.Frame, 0, (len(frames)+size-1)/size)
	for i := 0; i < len(frames); i += size {
		out = append(out, Fold(frames[i:min(i+size, len(frames))]))
	}
	return out
}
