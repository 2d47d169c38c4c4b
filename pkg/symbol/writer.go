// Package symbol 写入端
package symbol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/tinylib/msgp/msgp"
)

// Writer 逐个符号写入MessagePack流
// 写入带缓冲，调用方负责Flush
type Writer struct {
	mw *msgp.Writer
}

// NewWriter 创建符号写入器
func NewWriter(w io.Writer) *Writer {
	return &Writer{mw: msgp.NewWriter(w)}
}

// Flush 把缓冲区写入底层io.Writer
func (w *Writer) Flush() error {
	return w.mw.Flush()
}

// WriteSymbol 写入单个符号
// Width为16或32的无符号整数按定宽编码，其余整数使用最短编码
func (w *Writer) WriteSymbol(s Symbol) error {
	switch s.Kind {
	case KindString:
		return w.WriteString(s.Str)
	case KindUint:
		switch s.Width {
		case 16:
			if s.Uint > 0xffff {
				return fmt.Errorf("%d 超出u16: %w", s.Uint, core.ErrOutOfRange)
			}
			return w.WriteUint16(uint16(s.Uint))
		case 32:
			if s.Uint > 0xffffffff {
				return fmt.Errorf("%d 超出u32: %w", s.Uint, core.ErrOutOfRange)
			}
			return w.WriteUint32(uint32(s.Uint))
		default:
			return w.WriteUint(s.Uint)
		}
	case KindInt:
		return w.WriteInt(s.Int)
	case KindFloat:
		return w.WriteFloat(s.Float)
	case KindArray:
		return w.WriteArrayHeader(s.Len)
	case KindMap:
		return w.WriteMapHeader(s.Len)
	case KindNil:
		return w.WriteNil()
	case KindBool:
		return w.WriteBool(s.Bool)
	default:
		return fmt.Errorf("类型 %d: %w", s.Kind, core.ErrUnsupportedSymbolType)
	}
}

// WriteString 写入字符串
func (w *Writer) WriteString(s string) error {
	return w.mw.WriteString(s)
}

// WriteUint 使用最短编码写入无符号整数
func (w *Writer) WriteUint(v uint64) error {
	return w.mw.WriteUint64(v)
}

// WriteInt 使用最短编码写入有符号整数
func (w *Writer) WriteInt(v int64) error {
	return w.mw.WriteInt64(v)
}

// WriteUint16 以 0xcd 定宽编码写入
func (w *Writer) WriteUint16(v uint16) error {
	var buf [3]byte
	buf[0] = markerUint16
	binary.BigEndian.PutUint16(buf[1:], v)
	_, err := w.mw.Write(buf[:])
	return err
}

// WriteUint32 以 0xce 定宽编码写入
func (w *Writer) WriteUint32(v uint32) error {
	var buf [5]byte
	buf[0] = markerUint32
	binary.BigEndian.PutUint32(buf[1:], v)
	_, err := w.mw.Write(buf[:])
	return err
}

// WriteFloat 写入float64
func (w *Writer) WriteFloat(f float64) error {
	return w.mw.WriteFloat64(f)
}

// WriteArrayHeader 写入数组头
func (w *Writer) WriteArrayHeader(n uint32) error {
	return w.mw.WriteArrayHeader(n)
}

// WriteMapHeader 写入映射头
func (w *Writer) WriteMapHeader(n uint32) error {
	return w.mw.WriteMapHeader(n)
}

// WriteNil 写入空值
func (w *Writer) WriteNil() error {
	return w.mw.WriteNil()
}

// WriteBool 写入布尔值
func (w *Writer) WriteBool(b bool) error {
	return w.mw.WriteBool(b)
}
