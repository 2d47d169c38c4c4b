package convert

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Kevin-Rudy/zzping/pkg/aggregate"
	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/m-lab/go/warnonerror"
)

// AggregateOptions 拼接降采样的设置
// 输出文件头沿用第一个输入的文件头，非nil的字段覆盖对应设置 (重新量化)
type AggregateOptions struct {
	Output         string   // 为空时把帧以文本形式写到 print
	Step           int      // 游标步长
	Window         int      // 窗口长度
	FullEncodeSecs *uint64  // 覆盖完整帧间隔
	Precision      *float64 // 覆盖量化精度
	DeltaEncoding  *bool    // 覆盖增量编码
}

// Header 以 in 为基础，应用显式设置的字段
func (o AggregateOptions) Header(in framedataq.Header) framedataq.Header {
	h := framedataq.NewHeader(in.FullEncodeSecs, in.Precision, in.DeltaEncoding)
	if o.FullEncodeSecs != nil {
		h.FullEncodeSecs = *o.FullEncodeSecs
	}
	if o.Precision != nil {
		h.Precision = o.Precision
	}
	if o.DeltaEncoding != nil {
		h.DeltaEncoding = *o.DeltaEncoding
	}
	return h
}

// OpenAll 按顺序打开FrameDataQ文件并读取文件头
// 返回的关闭函数关闭全部文件
func OpenAll(paths []string) ([]*framedataq.Decoder, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			warnonerror.Close(f, "关闭输入文件失败: "+f.Name())
		}
	}
	var decoders []*framedataq.Decoder
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		d, err := framedataq.NewDecoder(f)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		decoders = append(decoders, d)
	}
	return decoders, closeAll, nil
}

// Aggregate 拼接输入并按 step/window 降采样
// 指定 Output 时按 opts.Header 重新编码，否则逐帧打印
// 返回输出帧数；重新编码失败时错误带有输出文件与输出帧序号
func Aggregate(inputs []string, opts AggregateOptions, print io.Writer) (int, error) {
	if _, err := aggregate.NewReducer(opts.Step, opts.Window); err != nil {
		return 0, err
	}
	decoders, closeAll, err := OpenAll(inputs)
	if err != nil {
		return 0, err
	}
	defer closeAll()

	sources := make([]aggregate.Source, len(decoders))
	for i, d := range decoders {
		sources[i] = d
	}
	cat, err := aggregate.Concat(sources...)
	if err != nil {
		return 0, err
	}

	var out *output
	if opts.Output != "" {
		h := opts.Header(cat.Header())
		if err := h.Validate(); err != nil {
			return 0, err
		}
		warnUnstable(h)
		if out, err = create(opts.Output, h); err != nil {
			return 0, err
		}
	}

	emitted := 0
	_, err = aggregate.Run(cat, opts.Step, opts.Window, func(f framedataq.Frame) error {
		emitted++
		if out == nil {
			_, err := fmt.Fprintln(print, f)
			return err
		}
		if err := out.enc.Encode(f); err != nil {
			return &core.FrameError{Path: out.path, Index: emitted - 1, Err: err}
		}
		metrics.FramesWritten.WithLabelValues("framedataq").Inc()
		return nil
	})
	var fe *core.FrameError
	if err != nil && !errors.As(err, &fe) {
		idx := cat.Index()
		if idx < len(inputs) {
			err = &core.FrameError{Path: inputs[idx], Index: decoders[idx].Frames(), Err: err}
		}
	}
	if out != nil {
		if cerr := out.close(); err == nil && cerr != nil {
			err = fmt.Errorf("%s: %w", out.path, cerr)
		}
	}
	return emitted, err
}

// ReadAll 按顺序拼接输入的全部帧，文件头必须兼容
func ReadAll(inputs []string) ([]framedataq.Frame, error) {
	decoders, closeAll, err := OpenAll(inputs)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	sources := make([]aggregate.Source, len(decoders))
	for i, d := range decoders {
		sources[i] = d
	}
	cat, err := aggregate.Concat(sources...)
	if err != nil {
		return nil, err
	}
	var frames []framedataq.Frame
	for {
		f, err := cat.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			idx := cat.Index()
			return nil, &core.FrameError{Path: inputs[idx], Index: decoders[idx].Frames(), Err: err}
		}
		frames = append(frames, f)
	}
}
