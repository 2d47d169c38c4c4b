// Package core 错误分类
package core

import (
	"errors"
	"fmt"
)

// 编解码与聚合过程中可能返回的错误类型，调用方使用 errors.Is 判断
var (
	// ErrFormatMismatch 文件头的 schema 字面量不符，文件格式错误
	ErrFormatMismatch = errors.New("文件格式不匹配")
	// ErrSchemaMismatch 与 ErrFormatMismatch 相同
	ErrSchemaMismatch = ErrFormatMismatch
	// ErrUnsupportedVersion 文件头版本高于解码器支持的版本
	ErrUnsupportedVersion = errors.New("不支持的格式版本")
	// ErrTruncatedStream 输入在符号或帧的中间结束
	ErrTruncatedStream = errors.New("数据流被截断")
	// ErrUnsupportedSymbolType 遇到不在支持集合内的编码类型
	ErrUnsupportedSymbolType = errors.New("不支持的符号类型")
	// ErrAmbiguousFrameShape 帧的首个符号既不是字符串也不是无符号整数
	ErrAmbiguousFrameShape = errors.New("无法判定帧结构")
	// ErrMalformedFrame 符号类型或数量与期望的帧结构不符
	ErrMalformedFrame = errors.New("帧格式错误")
	// ErrOutOfRange 数值超出格式可表示的范围
	ErrOutOfRange = errors.New("数值超出范围")
	// ErrIncompatibleHeaders 拼接的输入流配置不一致
	ErrIncompatibleHeaders = errors.New("输入流文件头不兼容")
	// ErrInvalidWindowConfig 窗口小于步长
	ErrInvalidWindowConfig = errors.New("无效的窗口配置")
)

// FrameError 记录出错的文件与帧序号
type FrameError struct {
	Path  string // 出错的输入或输出文件路径
	Index int    // 出错帧的序号，从0开始
	Err   error  // 原始错误
}

// Error 实现error接口
func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: 第%d帧: %v", e.Path, e.Index, e.Err)
}

// Unwrap 支持 errors.Is / errors.As
func (e *FrameError) Unwrap() error {
	return e.Err
}
