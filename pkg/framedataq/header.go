// Package framedataq 基于百分位的紧凑帧格式
//
// 一个流由一个文件头和随后连续的帧组成。文件头描述启用的特性
// (量化、增量编码、完整帧间隔)，使旧文件在格式演进后仍可解码。
// 帧用7个百分位标记代替原始样本数组，每个标记按文件头的量化配置编码。
package framedataq

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/quantize"
	"github.com/Kevin-Rudy/zzping/pkg/symbol"
)

const (
	// Schema 文件头中标识格式族的字面量
	Schema = "FDCodec"
	// Version 当前编码器写入的版本，也是解码器支持的最高版本
	Version uint64 = 101
	// DefaultFullEncodeSecs 默认的完整帧间隔(秒)
	DefaultFullEncodeSecs uint64 = 60
)

// 文件头字段名
const (
	keySchema         = "schema"
	keyVersion        = "version"
	keyFullEncodeSecs = "full_encode_secs"
	keyPrecision      = "recv_llq"
	keyDeltaEncoding  = "delta_enc"
)

// Header 流的文件头，创建后不可修改
type Header struct {
	Schema         string
	Version        uint64
	FullEncodeSecs uint64   // 强制写完整时间戳的最大间隔
	Precision      *float64 // 量化精度，nil表示不量化
	DeltaEncoding  bool     // 百分位增量编码（不稳定）
}

// NewHeader 创建当前版本的文件头
func NewHeader(fullEncodeSecs uint64, precision *float64, deltaEncoding bool) Header {
	return Header{
		Schema:         Schema,
		Version:        Version,
		FullEncodeSecs: fullEncodeSecs,
		Precision:      precision,
		DeltaEncoding:  deltaEncoding,
	}
}

// Unstable 增量编码模式下解码出的百分位不可靠
// 编码器减去上一帧的首个量化编码，解码器不会加回
func (h Header) Unstable() bool {
	return h.DeltaEncoding
}

// Quantizer 根据文件头的精度配置创建量化器
func (h Header) Quantizer() (quantize.Quantizer, error) {
	return quantize.New(h.Precision)
}

// Quantized 是否启用量化
func (h Header) Quantized() bool {
	return h.Precision != nil
}

// Validate 检查文件头配置
func (h Header) Validate() error {
	if h.Schema != Schema {
		return fmt.Errorf("schema %q: %w", h.Schema, core.ErrFormatMismatch)
	}
	if h.Version > Version {
		return fmt.Errorf("版本 %d 高于 %d: %w", h.Version, Version, core.ErrUnsupportedVersion)
	}
	if _, err := h.Quantizer(); err != nil {
		return err
	}
	return nil
}

// String 便于日志输出
func (h Header) String() string {
	precision := "off"
	if h.Precision != nil {
		precision = fmt.Sprintf("%g", *h.Precision)
	}
	return fmt.Sprintf("%s v%d full=%ds llq=%s delta=%t",
		h.Schema, h.Version, h.FullEncodeSecs, precision, h.DeltaEncoding)
}

// Encode 把文件头写为5个条目的映射
func (h Header) Encode(w *symbol.Writer) error {
	if err := w.WriteMapHeader(5); err != nil {
		return err
	}
	if err := writePair(w, keySchema, symbol.String(h.Schema)); err != nil {
		return err
	}
	if err := writePair(w, keyVersion, symbol.Uint(h.Version)); err != nil {
		return err
	}
	if err := writePair(w, keyFullEncodeSecs, symbol.Uint(h.FullEncodeSecs)); err != nil {
		return err
	}
	precision := symbol.Nil()
	if h.Precision != nil {
		precision = symbol.Float64(*h.Precision)
	}
	if err := writePair(w, keyPrecision, precision); err != nil {
		return err
	}
	return writePair(w, keyDeltaEncoding, symbol.Bool(h.DeltaEncoding))
}

func writePair(w *symbol.Writer, key string, value symbol.Symbol) error {
	if err := w.WriteString(key); err != nil {
		return err
	}
	return w.WriteSymbol(value)
}

// ReadHeader 读取并校验文件头，同时解析出对应版本的帧布局
// schema 不符返回 core.ErrFormatMismatch，版本过新返回 core.ErrUnsupportedVersion
func ReadHeader(r *symbol.Reader) (Header, Layout, error) {
	fields, err := readHeaderFields(r)
	if err != nil {
		return Header{}, Layout{}, err
	}

	schema, ok := fields[keySchema]
	if !ok || schema.Kind != symbol.KindString || schema.Str != Schema {
		return Header{}, Layout{}, fmt.Errorf("schema %v: %w", schema, core.ErrFormatMismatch)
	}
	h := Header{Schema: schema.Str}

	if h.Version, err = uintField(fields, keyVersion); err != nil {
		return Header{}, Layout{}, err
	}
	layout, err := LayoutFor(h.Version)
	if err != nil {
		return Header{}, Layout{}, err
	}

	if h.FullEncodeSecs, err = uintField(fields, keyFullEncodeSecs); err != nil {
		return Header{}, Layout{}, err
	}

	precision, ok := fields[keyPrecision]
	switch {
	case !ok:
		return Header{}, Layout{}, missingField(keyPrecision)
	case precision.Kind == symbol.KindNil:
	case precision.Kind == symbol.KindFloat:
		p := precision.Float
		h.Precision = &p
	default:
		return Header{}, Layout{}, fmt.Errorf("%s 应为nil或浮点数，实际为%s: %w", keyPrecision, precision.Kind, core.ErrMalformedFrame)
	}

	delta, ok := fields[keyDeltaEncoding]
	if !ok {
		return Header{}, Layout{}, missingField(keyDeltaEncoding)
	}
	if delta.Kind != symbol.KindBool {
		return Header{}, Layout{}, fmt.Errorf("%s 应为布尔值，实际为%s: %w", keyDeltaEncoding, delta.Kind, core.ErrMalformedFrame)
	}
	h.DeltaEncoding = delta.Bool

	if _, err := h.Quantizer(); err != nil {
		return Header{}, Layout{}, fmt.Errorf("文件头: %v: %w", err, core.ErrMalformedFrame)
	}
	return h, layout, nil
}

// readHeaderFields 读取文件头映射，未知字段的值被跳过
func readHeaderFields(r *symbol.Reader) (map[string]symbol.Symbol, error) {
	kind, err := r.PeekKind()
	if err != nil {
		return nil, symbol.Truncated(err)
	}
	if kind != symbol.KindMap {
		return nil, fmt.Errorf("文件头应为映射，实际为%s: %w", kind, core.ErrFormatMismatch)
	}
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, err
	}

	fields := make(map[string]symbol.Symbol, n)
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, symbol.Truncated(err)
		}
		value, err := r.Next()
		if err != nil {
			return nil, symbol.Truncated(err)
		}
		if err := skipNested(r, value); err != nil {
			return nil, err
		}
		fields[key] = value
	}
	return fields, nil
}

// skipNested 跳过数组或映射的全部元素
func skipNested(r *symbol.Reader, s symbol.Symbol) error {
	var n uint64
	switch s.Kind {
	case symbol.KindArray:
		n = uint64(s.Len)
	case symbol.KindMap:
		n = 2 * uint64(s.Len)
	default:
		return nil
	}
	for ; n > 0; n-- {
		child, err := r.Next()
		if err != nil {
			return symbol.Truncated(err)
		}
		if err := skipNested(r, child); err != nil {
			return err
		}
	}
	return nil
}

func uintField(fields map[string]symbol.Symbol, key string) (uint64, error) {
	s, ok := fields[key]
	switch {
	case !ok:
		return 0, missingField(key)
	case s.Kind == symbol.KindUint:
		return s.Uint, nil
	case s.Kind == symbol.KindInt && s.Int >= 0:
		return uint64(s.Int), nil
	default:
		return 0, fmt.Errorf("%s 应为非负整数，实际为%v: %w", key, s, core.ErrMalformedFrame)
	}
}

func missingField(key string) error {
	return fmt.Errorf("文件头缺少字段 %s: %w", key, core.ErrMalformedFrame)
}

// Layout 某个版本的帧布局，打开流时解析一次
type Layout struct {
	Version     uint64
	Percentiles int   // 百分位数组长度
	NoCounts    int64 // 在途与丢包都为0时代替两个计数写入的哨兵
}

var layout101 = Layout{Version: 101, Percentiles: len(Percentiles{}), NoCounts: -1}

// LayoutFor 返回指定版本的帧布局
// 101及更早的版本共用同一布局，更新的版本被拒绝
func LayoutFor(version uint64) (Layout, error) {
	if version > Version {
		return Layout{}, fmt.Errorf("版本 %d 高于 %d: %w", version, Version, core.ErrUnsupportedVersion)
	}
	l := layout101
	l.Version = version
	return l, nil
}
