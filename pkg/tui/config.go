// Package tui 配置定义
package tui

import (
	"errors"
	"time"
)

// Config 查看端的配置
type Config struct {
	RefreshInterval    time.Duration // UI刷新间隔
	TimeGridInterval   time.Duration // 时间网格间隔，也是实时窗口中一个点的宽度
	TimeoutBufferRatio float64       // 超时缓冲比例，查看端超时 = 数据源超时 * 此比例
	MinChartWidth      int           // 最小图表宽度
	MinChartHeight     int           // 最小图表高度
	MaxHistorySize     int           // 每个目标保留的点数
	ValueBufferRatio   float64       // 值缓冲比例
	MaxChartSize       int           // 最大图表尺寸（防止极端值）
	DefaultCeiling     float64       // 天花板下限(ms)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:    200 * time.Millisecond,
		TimeGridInterval:   100 * time.Millisecond, // 与守护进程的汇报周期一致
		TimeoutBufferRatio: 1.2,
		MinChartWidth:      20,
		MinChartHeight:     5,
		MaxHistorySize:     300,
		ValueBufferRatio:   0.1,
		MaxChartSize:       1000,
		DefaultCeiling:     50,
	}
}

// GetTimeoutThreshold 计算查看端的超时阈值
func (c *Config) GetTimeoutThreshold(sourceTimeout time.Duration) time.Duration {
	return time.Duration(float64(sourceTimeout) * c.TimeoutBufferRatio)
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.RefreshInterval < 10*time.Millisecond {
		return errors.New("UI刷新间隔不能小于10ms")
	}
	if c.TimeGridInterval <= 0 {
		return errors.New("时间网格间隔必须大于0")
	}
	if c.TimeoutBufferRatio < 1.0 {
		return errors.New("超时缓冲比例不能小于1.0")
	}
	if c.MinChartWidth <= 0 || c.MinChartHeight <= 0 {
		return errors.New("最小图表尺寸必须大于0")
	}
	if c.MaxHistorySize < 10 {
		return errors.New("历史缓冲区大小不能小于10")
	}
	if c.MaxHistorySize > MaxHistoryLimit {
		return errors.New("历史缓冲区过大")
	}
	if c.ValueBufferRatio < 0 {
		return errors.New("值缓冲比例不能为负数")
	}
	if c.MaxChartSize <= 0 {
		return errors.New("最大图表尺寸必须大于0")
	}
	if c.DefaultCeiling < 0 {
		return errors.New("天花板不能为负数")
	}
	return nil
}

// MaxHistoryLimit 离线模式最多显示的点数
const MaxHistoryLimit = 8192
