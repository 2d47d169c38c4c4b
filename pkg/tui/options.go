package tui

import "time"

// Option 修改 Config 的一项，命令行只为显式设置的参数生成选项
type Option func(*Config)

// WithRefreshInterval UI刷新间隔
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *Config) { c.RefreshInterval = interval }
}

// WithTimeGridInterval 一个历史点对应的时间
func WithTimeGridInterval(interval time.Duration) Option {
	return func(c *Config) { c.TimeGridInterval = interval }
}

// WithTimeoutBufferRatio 查看端超时相对数据源超时的比例
func WithTimeoutBufferRatio(ratio float64) Option {
	return func(c *Config) { c.TimeoutBufferRatio = ratio }
}

// WithHistorySize 每个目标保留的点数
func WithHistorySize(size int) Option {
	return func(c *Config) { c.MaxHistorySize = size }
}

// WithDefaultCeiling 纵轴上限的下限(ms)
func WithDefaultCeiling(ceiling float64) Option {
	return func(c *Config) { c.DefaultCeiling = ceiling }
}

// WithMinChartSize 小于该尺寸时不画图
func WithMinChartSize(width, height int) Option {
	return func(c *Config) {
		if width > 0 {
			c.MinChartWidth = width
		}
		if height > 0 {
			c.MinChartHeight = height
		}
	}
}

// NewConfigWithOptions 在默认配置上依次应用选项
func NewConfigWithOptions(opts ...Option) *Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}
