package pinger

import "time"

// Option 修改 Config 的一项
type Option func(*Config)

// WithIPVersion 4 或 6
func WithIPVersion(version int) Option {
	return func(c *Config) { c.IPVersion = version }
}

// WithInterval 每个目标的平均ping间隔
func WithInterval(interval time.Duration) Option {
	return func(c *Config) { c.Interval = interval }
}

// WithJitter 间隔的随机抖动比例
func WithJitter(jitter float64) Option {
	return func(c *Config) { c.Jitter = jitter }
}

// WithTimeout 单次ping的超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithBufferSize 结果通道的长度，守护进程与发送队列一致
func WithBufferSize(size int) Option {
	return func(c *Config) { c.BufferSize = size }
}

// NewConfig 在默认配置上依次应用选项
func NewConfig(opts ...Option) *Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// NewPingerWithOptions 等同于 NewPinger(targets, NewConfig(opts...))
func NewPingerWithOptions(targets []string, opts ...Option) (Pinger, error) {
	return NewPinger(targets, NewConfig(opts...))
}
