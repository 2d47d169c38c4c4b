// Package convert 实现日志转换、拼接降采样与导出工具
// 输入严格按给定顺序处理
package convert

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/apex/log"
	"github.com/m-lab/go/warnonerror"
)

// AutoOutputSuffix 自动输出文件名的后缀
const AutoOutputSuffix = ".fdq.log"

// Options 转换的输入解释与输出编码设置
type Options struct {
	Output         string   // 合并输出文件，为空时不写
	AutoOutput     bool     // 为每个输入写一个 {input}.fdq.log
	FullEncodeSecs uint64   // 完整帧间隔(秒)
	Precision      *float64 // 量化精度，nil表示不量化
	DeltaEncoding  bool     // 不稳定的增量编码

	KeyframeRelative bool // 输入的增量帧时间相对于上一个完整帧
}

// Header 返回输出流的文件头
func (o Options) Header() framedataq.Header {
	return framedataq.NewHeader(o.FullEncodeSecs, o.Precision, o.DeltaEncoding)
}

// Result 转换统计
type Result struct {
	Inputs    int      // 已处理的输入数
	Frames    int      // 已转换的帧数
	Truncated []string // 尾部被截断的输入
}

// output 一个打开的FrameDataQ输出文件
type output struct {
	path string
	file *os.File
	enc  *framedataq.Encoder
}

func create(path string, h framedataq.Header) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := framedataq.NewEncoder(f, h)
	if err != nil {
		warnonerror.Close(f, "关闭输出文件失败: "+path)
		return nil, err
	}
	return &output{path: path, file: f, enc: enc}, nil
}

// close 刷新并关闭，返回第一个错误
func (o *output) close() error {
	ferr := o.enc.Flush()
	cerr := o.file.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// warnUnstable 增量编码的格式尚未稳定
func warnUnstable(h framedataq.Header) {
	if h.Unstable() {
		logging.Logger.WithField("header", h.String()).Warn("增量编码是不稳定的格式，未来的版本可能无法读取")
	}
}

// Convert 把守护进程的FrameData日志转换为FrameDataQ
// 每个输入使用独立的编解码状态，因此其第一帧总是完整帧
// 日志尾部被截断时给出警告并保留之前的帧，其他错误立即返回 *core.FrameError
func Convert(inputs []string, opts Options) (Result, error) {
	var res Result
	h := opts.Header()
	if err := h.Validate(); err != nil {
		return res, err
	}
	if opts.Output == "" && !opts.AutoOutput {
		return res, errors.New("没有指定输出")
	}
	warnUnstable(h)

	var merged *output
	if opts.Output != "" {
		var err error
		if merged, err = create(opts.Output, h); err != nil {
			return res, err
		}
	}

	err := convertAll(inputs, opts, h, merged, &res)
	if merged != nil {
		if cerr := merged.close(); err == nil && cerr != nil {
			err = fmt.Errorf("%s: %w", merged.path, cerr)
		}
	}
	return res, err
}

func convertAll(inputs []string, opts Options, h framedataq.Header, merged *output, res *Result) error {
	for _, path := range inputs {
		frames, truncated, err := readFrameData(path, opts.KeyframeRelative)
		if err != nil {
			return err
		}
		if truncated {
			res.Truncated = append(res.Truncated, path)
		}

		var auto *output
		if opts.AutoOutput {
			if auto, err = create(path+AutoOutputSuffix, h); err != nil {
				return err
			}
		}
		if merged != nil {
			merged.enc.Reset()
		}

		for i, fd := range frames {
			q := framedataq.FromFrameData(fd)
			for _, o := range []*output{merged, auto} {
				if o == nil {
					continue
				}
				if err := o.enc.Encode(q); err != nil {
					if auto != nil {
						warnonerror.Close(auto.file, "关闭输出文件失败: "+auto.path)
					}
					return &core.FrameError{Path: path, Index: i, Err: err}
				}
				metrics.FramesWritten.WithLabelValues("framedataq").Inc()
			}
		}
		if auto != nil {
			if err := auto.close(); err != nil {
				return fmt.Errorf("%s: %w", auto.path, err)
			}
		}

		res.Inputs++
		res.Frames += len(frames)
		logging.Logger.WithFields(log.Fields{"input": path, "frames": len(frames)}).Info("已转换")
	}
	return nil
}

func frameReader(in io.Reader, keyframeRelative bool) *framedata.Reader {
	if keyframeRelative {
		return framedata.NewKeyframeReader(in)
	}
	return framedata.NewReader(in)
}

// readFrameData 读取一个FrameData日志的全部帧
// 第二个返回值表示尾部被截断
func readFrameData(path string, keyframeRelative bool) ([]framedata.Frame, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer warnonerror.Close(f, "关闭输入文件失败: "+path)

	r := frameReader(f, keyframeRelative)
	var frames []framedata.Frame
	for {
		fr, err := r.Next()
		switch {
		case err == io.EOF:
			return frames, false, nil
		case errors.Is(err, core.ErrTruncatedStream):
			logging.Logger.WithFields(log.Fields{
				"input":  path,
				"frames": len(frames),
			}).Warn("日志尾部被截断，保留之前的帧")
			return frames, true, nil
		case err != nil:
			return frames, false, &core.FrameError{Path: path, Index: len(frames), Err: err}
		}
		frames = append(frames, fr)
	}
}
