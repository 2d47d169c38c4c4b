// Package quantize 提供可插拔的有损数值压缩器
// 把延迟等非负数值映射为较窄的整数编码，并可还原
package quantize

import (
	"fmt"
	"math"

	"github.com/Kevin-Rudy/zzping/pkg/core"
)

// MaxValue 可编码的最大数值（float64可精确表示的整数上限）
const MaxValue = 1 << 53

// Quantizer 量化器接口
// 0 是“无样本”哨兵，任何实现都必须把 0 精确地编码为 0 并还原为 0
type Quantizer interface {
	// Encode 把数值编码为整数，超出范围返回 core.ErrOutOfRange
	Encode(v float64) (int64, error)
	// Decode 把整数编码还原为数值
	Decode(q int64) float64
	// Precision 返回精度因子，直通模式返回false
	Precision() (float64, bool)
}

// New 根据精度配置选择量化器，nil表示不量化
func New(precision *float64) (Quantizer, error) {
	if precision == nil {
		return PassThrough{}, nil
	}
	return NewLinearLog(*precision)
}

// checkRange 检查输入是否在可编码范围内
func checkRange(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%v: %w", v, core.ErrOutOfRange)
	}
	if v < 0 || v > MaxValue {
		return fmt.Errorf("%v 不在 [0, 2^53] 内: %w", v, core.ErrOutOfRange)
	}
	return nil
}

// PassThrough 直通量化器，按全宽度保存取整后的原始值
type PassThrough struct{}

// Encode 实现Quantizer接口
func (PassThrough) Encode(v float64) (int64, error) {
	if err := checkRange(v); err != nil {
		return 0, err
	}
	return int64(math.Round(v)), nil
}

// Decode 实现Quantizer接口
func (PassThrough) Decode(q int64) float64 {
	return float64(q)
}

// Precision 实现Quantizer接口
func (PassThrough) Precision() (float64, bool) {
	return 0, false
}

// LinearLog 对数量化器
//
// p < 1 时：编码为 offset+round(ln v / s)，s = 2ln(1+p)，
// 相邻编码之比为 (1+p)^2，因此任意 v > 0 的相对误差不超过 p。
// offset 保证最小的正浮点数也落在编码 1 及以上，0 留给哨兵。
// p == 1 时：编码为 1+round(log2 v)，还原为 2 的幂，不保证误差上界。
type LinearLog struct {
	precision float64
	logStep   float64 // 相邻编码的 ln 间隔
	offset    int64   // ln v == 0（即 v == 1）对应的编码
}

// NewLinearLog 创建对数量化器，精度必须在 (0, 1] 内
func NewLinearLog(precision float64) (*LinearLog, error) {
	if math.IsNaN(precision) || precision <= 0 || precision > 1 {
		return nil, fmt.Errorf("量化精度 %v 必须在 (0, 1] 内: %w", precision, core.ErrOutOfRange)
	}
	if 1/(2*precision) > 1<<52 {
		return nil, fmt.Errorf("量化精度 %v 过小: %w", precision, core.ErrOutOfRange)
	}
	q := &LinearLog{precision: precision}
	if precision < 1 {
		q.logStep = 2 * math.Log1p(precision)
		q.offset = 1 + int64(math.Ceil(-math.Log(math.SmallestNonzeroFloat64)/q.logStep))
	}
	return q, nil
}

// Precision 实现Quantizer接口
func (q *LinearLog) Precision() (float64, bool) {
	return q.precision, true
}

// Encode 实现Quantizer接口
func (q *LinearLog) Encode(v float64) (int64, error) {
	if err := checkRange(v); err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, nil
	}

	if q.precision == 1 {
		return max(1, 1+int64(math.Round(math.Log2(v)))), nil
	}
	return max(1, q.offset+int64(math.Round(math.Log(v)/q.logStep))), nil
}

// Decode 实现Quantizer接口
// 负编码按绝对值还原后取负，保证增量模式下的偏移编码也能解码
func (q *LinearLog) Decode(code int64) float64 {
	switch {
	case code == 0:
		return 0
	case code < 0:
		return -q.Decode(-code)
	}

	if q.precision == 1 {
		return math.Exp2(float64(code - 1))
	}
	return math.Exp(float64(code-q.offset) * q.logStep)
}
