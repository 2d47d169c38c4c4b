// Package symbol 读取端
package symbol

import (
	"errors"
	"fmt"
	"io"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/tinylib/msgp/msgp"
)

// Reader 逐个符号读取MessagePack流
// 在符号之间干净结束时返回 io.EOF，符号被截断时返回 core.ErrTruncatedStream
type Reader struct {
	mr       *msgp.Reader
	consumed int
}

// NewReader 创建符号读取器
func NewReader(r io.Reader) *Reader {
	return &Reader{mr: msgp.NewReader(r)}
}

// Consumed 返回已完整读取的符号数量
func (r *Reader) Consumed() int {
	return r.consumed
}

// peek 查看下一个标记字节，不消耗输入
func (r *Reader) peek() (Kind, int, error) {
	b, err := r.mr.R.Peek(1)
	if len(b) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return KindInvalid, 0, io.EOF
		}
		return KindInvalid, 0, err
	}
	return classify(b[0])
}

// PeekKind 返回下一个符号的类型，不消耗输入
func (r *Reader) PeekKind() (Kind, error) {
	k, _, err := r.peek()
	return k, err
}

// Next 读取下一个符号
func (r *Reader) Next() (Symbol, error) {
	k, width, err := r.peek()
	if err != nil {
		return Symbol{}, err
	}

	s := Symbol{Kind: k, Width: width}
	switch k {
	case KindString:
		s.Str, err = r.mr.ReadString()
	case KindUint:
		s.Uint, err = r.mr.ReadUint64()
	case KindInt:
		s.Int, err = r.mr.ReadInt64()
	case KindFloat:
		s.Float, err = r.mr.ReadFloat64()
	case KindArray:
		s.Len, err = r.mr.ReadArrayHeader()
	case KindMap:
		s.Len, err = r.mr.ReadMapHeader()
	case KindNil:
		err = r.mr.ReadNil()
	case KindBool:
		s.Bool, err = r.mr.ReadBool()
	}
	if err != nil {
		return Symbol{}, r.wrap(err)
	}
	r.consumed++
	return s, nil
}

// expect 读取下一个符号并检查类型
func (r *Reader) expect(want Kind) (Symbol, error) {
	k, err := r.PeekKind()
	if err != nil {
		return Symbol{}, err
	}
	if k != want {
		return Symbol{}, fmt.Errorf("期望%s，实际为%s: %w", want, k, core.ErrMalformedFrame)
	}
	return r.Next()
}

// ReadString 读取字符串
func (r *Reader) ReadString() (string, error) {
	s, err := r.expect(KindString)
	return s.Str, err
}

// ReadUint 读取任意位宽的无符号整数
func (r *Reader) ReadUint() (uint64, error) {
	s, err := r.expect(KindUint)
	return s.Uint, err
}

// ReadUintMax 读取无符号整数并检查上限
func (r *Reader) ReadUintMax(max uint64) (uint64, error) {
	v, err := r.ReadUint()
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, fmt.Errorf("%d 超过上限 %d: %w", v, max, core.ErrMalformedFrame)
	}
	return v, nil
}

// ReadInt 读取整数，无符号与有符号编码都接受
func (r *Reader) ReadInt() (int64, error) {
	k, err := r.PeekKind()
	if err != nil {
		return 0, err
	}
	switch k {
	case KindInt:
		s, err := r.Next()
		return s.Int, err
	case KindUint:
		s, err := r.Next()
		if err != nil {
			return 0, err
		}
		if s.Uint > 1<<63-1 {
			return 0, fmt.Errorf("%d 超出int64: %w", s.Uint, core.ErrMalformedFrame)
		}
		return int64(s.Uint), nil
	default:
		return 0, fmt.Errorf("期望整数，实际为%s: %w", k, core.ErrMalformedFrame)
	}
}

// ReadFloat 读取浮点数
func (r *Reader) ReadFloat() (float64, error) {
	s, err := r.expect(KindFloat)
	return s.Float, err
}

// ReadArrayHeader 读取数组头
func (r *Reader) ReadArrayHeader() (uint32, error) {
	s, err := r.expect(KindArray)
	return s.Len, err
}

// ReadMapHeader 读取映射头
func (r *Reader) ReadMapHeader() (uint32, error) {
	s, err := r.expect(KindMap)
	return s.Len, err
}

// ReadNil 读取空值
func (r *Reader) ReadNil() error {
	_, err := r.expect(KindNil)
	return err
}

// ReadBool 读取布尔值
func (r *Reader) ReadBool() (bool, error) {
	s, err := r.expect(KindBool)
	return s.Bool, err
}

// wrap 把已开始读取的符号上出现的EOF转换为截断错误
func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("第%d个符号: %w", r.consumed, core.ErrTruncatedStream)
	}
	return fmt.Errorf("第%d个符号: %v: %w", r.consumed, err, core.ErrMalformedFrame)
}

// Truncated 把帧中途出现的 io.EOF 转换为截断错误
// 帧的首个符号之前的 io.EOF 表示流正常结束，由调用方直接处理
func Truncated(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, core.ErrTruncatedStream) {
		return fmt.Errorf("帧未结束: %w", core.ErrTruncatedStream)
	}
	return err
}
