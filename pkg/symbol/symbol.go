// Package symbol 把MessagePack当作“独立标量值组成的流”来读写
// 一个逻辑记录由若干个连续的符号组成，调用方自行解释符号序列
package symbol

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/core"
)

// Kind 符号类型
type Kind int

const (
	KindInvalid Kind = iota
	KindString       // 字符串
	KindUint         // 无符号整数（含正fixint）
	KindInt          // 有符号整数（含负fixint）
	KindFloat        // 浮点数
	KindArray        // 数组头
	KindMap          // 映射头
	KindNil          // 空值
	KindBool         // 布尔值
)

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Symbol 流中的单个符号
type Symbol struct {
	Kind  Kind
	Width int // 整数/浮点的编码位宽，正fixint为7，负fixint为5

	Str   string
	Uint  uint64
	Int   int64
	Float float64
	Len   uint32 // 数组或映射的元素个数
	Bool  bool
}

// String 便于调试输出
func (s Symbol) String() string {
	switch s.Kind {
	case KindString:
		return fmt.Sprintf("%q", s.Str)
	case KindUint:
		return fmt.Sprintf("u%d(%d)", s.Width, s.Uint)
	case KindInt:
		return fmt.Sprintf("i%d(%d)", s.Width, s.Int)
	case KindFloat:
		return fmt.Sprintf("f%d(%g)", s.Width, s.Float)
	case KindArray:
		return fmt.Sprintf("array(%d)", s.Len)
	case KindMap:
		return fmt.Sprintf("map(%d)", s.Len)
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", s.Bool)
	default:
		return "invalid"
	}
}

// Uint16 构造16位定宽无符号整数符号
func Uint16(v uint16) Symbol { return Symbol{Kind: KindUint, Width: 16, Uint: uint64(v)} }

// Uint32 构造32位定宽无符号整数符号
func Uint32(v uint32) Symbol { return Symbol{Kind: KindUint, Width: 32, Uint: uint64(v)} }

// Uint 构造紧凑编码的无符号整数符号
func Uint(v uint64) Symbol { return Symbol{Kind: KindUint, Uint: v} }

// Int 构造紧凑编码的有符号整数符号
func Int(v int64) Symbol { return Symbol{Kind: KindInt, Int: v} }

// String 构造字符串符号
func String(s string) Symbol { return Symbol{Kind: KindString, Str: s} }

// Float64 构造浮点数符号
func Float64(f float64) Symbol { return Symbol{Kind: KindFloat, Width: 64, Float: f} }

// Array 构造数组头符号
func Array(n uint32) Symbol { return Symbol{Kind: KindArray, Len: n} }

// Map 构造映射头符号
func Map(n uint32) Symbol { return Symbol{Kind: KindMap, Len: n} }

// Nil 构造空值符号
func Nil() Symbol { return Symbol{Kind: KindNil} }

// Bool 构造布尔符号
func Bool(b bool) Symbol { return Symbol{Kind: KindBool, Bool: b} }

// MessagePack 标记字节
const (
	markerNil     = 0xc0
	markerFalse   = 0xc2
	markerTrue    = 0xc3
	markerFloat32 = 0xca
	markerFloat64 = 0xcb
	markerUint8   = 0xcc
	markerUint16  = 0xcd
	markerUint32  = 0xce
	markerUint64  = 0xcf
	markerInt8    = 0xd0
	markerInt16   = 0xd1
	markerInt32   = 0xd2
	markerInt64   = 0xd3
	markerStr8    = 0xd9
	markerStr16   = 0xda
	markerStr32   = 0xdb
	markerArray16 = 0xdc
	markerArray32 = 0xdd
	markerMap16   = 0xde
	markerMap32   = 0xdf
)

// classify 根据标记字节判定符号类型与位宽
func classify(b byte) (Kind, int, error) {
	switch {
	case b <= 0x7f:
		return KindUint, 7, nil
	case b >= 0xe0:
		return KindInt, 5, nil
	case b >= 0x80 && b <= 0x8f:
		return KindMap, 0, nil
	case b >= 0x90 && b <= 0x9f:
		return KindArray, 0, nil
	case b >= 0xa0 && b <= 0xbf:
		return KindString, 0, nil
	}

	switch b {
	case markerNil:
		return KindNil, 0, nil
	case markerFalse, markerTrue:
		return KindBool, 0, nil
	case markerFloat32:
		return KindFloat, 32, nil
	case markerFloat64:
		return KindFloat, 64, nil
	case markerUint8:
		return KindUint, 8, nil
	case markerUint16:
		return KindUint, 16, nil
	case markerUint32:
		return KindUint, 32, nil
	case markerUint64:
		return KindUint, 64, nil
	case markerInt8:
		return KindInt, 8, nil
	case markerInt16:
		return KindInt, 16, nil
	case markerInt32:
		return KindInt, 32, nil
	case markerInt64:
		return KindInt, 64, nil
	case markerStr8, markerStr16, markerStr32:
		return KindString, 0, nil
	case markerArray16, markerArray32:
		return KindArray, 0, nil
	case markerMap16, markerMap32:
		return KindMap, 0, nil
	}

	// bin、ext、fixext 以及保留字节
	return KindInvalid, 0, fmt.Errorf("标记 0x%02x: %w", b, core.ErrUnsupportedSymbolType)
}
