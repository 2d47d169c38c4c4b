// Package pinger 配置定义
package pinger

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/m-lab/go/memoryless"
)

// Config pinger组件的配置结构
type Config struct {
	IPVersion  int           // IP版本，4或6
	Interval   time.Duration // 每个目标的平均ping间隔
	Jitter     float64       // 间隔的随机抖动比例，0表示固定间隔
	Timeout    time.Duration // ping超时时间
	BufferSize int           // 数据通道缓冲区大小
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		IPVersion:  4,
		Interval:   200 * time.Millisecond,
		Jitter:     0,
		Timeout:    3 * time.Second,
		BufferSize: 100,
	}
}

// GetIPProtocol 获取IP协议字符串，用于网络操作
func (c *Config) GetIPProtocol() string {
	if c.IPVersion == 6 {
		return "ip6"
	}
	return "ip4"
}

// tickerConfig 把间隔与抖动换算为无记忆定时器的参数
func (c *Config) tickerConfig() memoryless.Config {
	spread := time.Duration(float64(c.Interval) * c.Jitter)
	return memoryless.Config{
		Expected: c.Interval,
		Min:      c.Interval - spread,
		Max:      c.Interval + spread,
	}
}

// ValidateTargets 验证目标地址是否符合当前IP版本配置
func (c *Config) ValidateTargets(targets []string) error {
	protocol := c.GetIPProtocol()
	for _, target := range targets {
		if target == "" {
			return errors.New("目标地址不能为空")
		}
		if _, err := net.ResolveIPAddr(protocol, target); err != nil {
			return fmt.Errorf("无法将 '%s' 解析为IPv%d地址: %v", target, c.IPVersion, err)
		}
	}
	return nil
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.IPVersion != 4 && c.IPVersion != 6 {
		return errors.New("IP版本必须是4或6")
	}
	if c.Interval < 10*time.Millisecond {
		return errors.New("ping间隔不能小于10ms")
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return errors.New("抖动比例必须在 [0, 1) 内")
	}
	if c.Timeout < 100*time.Millisecond {
		return errors.New("超时时间不能小于100ms")
	}
	if c.BufferSize <= 0 {
		return errors.New("缓冲区大小必须大于0")
	}
	return nil
}
