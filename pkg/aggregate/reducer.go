package aggregate

import (
	"fmt"
	"io"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
)

// Reducer 步长/窗口降采样
// 游标位于 0, step, 2*step ... 处，每个位置折叠 [i, i+window) 的帧，
// 窗口不完整时不输出；window > step 时窗口重叠，起平滑作用
type Reducer struct {
	step   int
	window int
	buf    []framedataq.Frame // 最近的 window 帧
	pushed int
}

// NewReducer 创建降采样器，window 小于 step 或任一参数小于1时返回 core.ErrInvalidWindowConfig
func NewReducer(step, window int) (*Reducer, error) {
	if step < 1 || window < 1 || window < step {
		return nil, fmt.Errorf("step=%d window=%d: %w", step, window, core.ErrInvalidWindowConfig)
	}
	return &Reducer{step: step, window: window, buf: make([]framedataq.Frame, 0, window)}, nil
}

// Push 输入一帧，窗口完整且位于游标处时返回折叠后的帧
func (r *Reducer) Push(f framedataq.Frame) (framedataq.Frame, bool) {
	if len(r.buf) == r.window {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:r.window-1]
	}
	r.buf = append(r.buf, f)
	r.pushed++

	start := r.pushed - r.window
	if start < 0 || start%r.step != 0 {
		return framedataq.Frame{}, false
	}
	return Fold(r.buf), true
}

// Reduce 对整个序列降采样
func Reduce(frames []framedataq.Frame, step, window int) ([]framedataq.Frame, error) {
	r, err := NewReducer(step, window)
	if err != nil {
		return nil, err
	}
	var out []framedataq.Frame
	for _, f := range frames {
		if folded, ok := r.Push(f); ok {
			out = append(out, folded)
		}
	}
	return out, nil
}

// Run 从来源读取全部帧并降采样，每个输出帧交给 emit
// 返回已读取的输入帧数
func Run(src Source, step, window int, emit func(framedataq.Frame) error) (int, error) {
	r, err := NewReducer(step, window)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		f, err := src.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		if folded, ok := r.Push(f); ok {
			if err := emit(folded); err != nil {
				return n, err
			}
		}
	}
}
