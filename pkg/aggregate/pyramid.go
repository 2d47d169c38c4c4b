package aggregate

import "github.com/Kevin-Rudy/zzping/pkg/framedataq"

const (
	// MaxLevels 金字塔除原始层外的最大层数
	MaxLevels = 16
	// DefaultMinItems 某层帧数少于该值时停止继续折叠
	DefaultMinItems = 1000
)

// Level 金字塔中的一层，每帧由 Step 个原始帧折叠而来
type Level struct {
	Step   int
	Frames []framedataq.Frame
}

// Pyramid 构建多分辨率金字塔
// 第0层为输入本身，之后每层把上一层两两折叠，
// 直到某层帧数少于 minItems 或达到 MaxLevels
func Pyramid(frames []framedataq.Frame, minItems int) []Level {
	levels := []Level{{Step: 1, Frames: frames}}
	cur := frames
	step := 1
	for i := 0; i < MaxLevels && len(cur) > 1 && len(cur) >= minItems; i++ {
		step *= 2
		cur = FoldChunks(cur, 2)
		levels = append(levels, Level{Step: step, Frames: cur})
	}
	return levels
}

// ForWidth 返回帧数不超过 n 的最精细一层，都超过时返回最粗的一层
func ForWidth(levels []Level, n int) Level {
	if len(levels) == 0 {
		return Level{Step: 1}
	}
	for _, l := range levels {
		if len(l.Frames) <= n {
			return l
		}
	}
	return levels[len(levels)-1]
}
