// Package collector 实现采集守护进程：跟踪每个目标的ping结果，
// 周期性地向查看端发送FrameStats，并把FrameData按小时写入日志文件
package collector

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Kevin-Rudy/zzping/pkg/pinger"
)

// KeepPackets 各类包在跟踪器中保留的时长
type KeepPackets struct {
	Recv time.Duration `toml:"recv"` // 已收到的包，用于平均值与丢包率
	Lost time.Duration `toml:"lost"` // 已判定丢失的包，用于丢包率
}

// Config 守护进程配置，可以从TOML文件读取
type Config struct {
	ListenAddress  string   `toml:"udp_listen_address"` // 发送FrameStats使用的本地地址，可为空
	ClientAddress  string   `toml:"udp_client_address"` // 查看端监听的地址，为空时不发送
	Targets        []string `toml:"ping_targets"`
	LogDir         string   `toml:"log_dir"`
	MetricsAddress string   `toml:"metrics_address"` // 为空时不提供 /metrics

	IPVersion    int           `toml:"ip_version"`
	PingInterval time.Duration `toml:"ping_interval"`
	PingTimeout  time.Duration `toml:"ping_timeout"`
	Jitter       float64       `toml:"jitter"`

	ReportInterval   time.Duration `toml:"report_interval"`   // FrameStats与FrameData的周期
	KeyframeInterval time.Duration `toml:"keyframe_interval"` // 日志中强制完整帧的间隔
	StatsWindow      time.Duration `toml:"stats_window"`      // FrameStats平均往返时间的窗口
	QueueSize        int           `toml:"queue_size"`        // 发送与日志队列长度

	KeepPackets KeepPackets `toml:"keep_packets"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LogDir:           "logs",
		IPVersion:        4,
		PingInterval:     100 * time.Millisecond,
		PingTimeout:      time.Second,
		ReportInterval:   100 * time.Millisecond,
		KeyframeInterval: 15 * time.Second,
		StatsWindow:      500 * time.Millisecond,
		QueueSize:        256,
		KeepPackets: KeepPackets{
			Recv: 10 * time.Second,
			Lost: 10 * time.Second,
		},
	}
}

// ParseConfig 在默认配置之上解析TOML文本，未出现的键保持默认值
func ParseConfig(text string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("未知的配置项: %v", undecoded)
	}
	return cfg, nil
}

// LoadConfigFile 读取并解析TOML配置文件
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: 未知的配置项: %v", path, undecoded)
	}
	return cfg, nil
}

// PingerConfig 转换为pinger配置
func (c *Config) PingerConfig() *pinger.Config {
	return pinger.NewConfig(
		pinger.WithIPVersion(c.IPVersion),
		pinger.WithInterval(c.PingInterval),
		pinger.WithTimeout(c.PingTimeout),
		pinger.WithJitter(c.Jitter),
		pinger.WithBufferSize(c.QueueSize),
	)
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return errors.New("必须指定至少一个目标")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t] {
			return fmt.Errorf("重复的目标: %s", t)
		}
		seen[t] = true
	}
	if c.LogDir == "" {
		return errors.New("日志目录不能为空")
	}
	if c.ReportInterval <= 0 {
		return errors.New("汇报间隔必须大于0")
	}
	if c.KeyframeInterval < c.ReportInterval {
		return errors.New("完整帧间隔不能小于汇报间隔")
	}
	if c.StatsWindow <= 0 {
		return errors.New("统计窗口必须大于0")
	}
	if c.QueueSize <= 0 {
		return errors.New("队列长度必须大于0")
	}
	if c.KeepPackets.Recv < c.StatsWindow || c.KeepPackets.Lost <= 0 {
		return errors.New("包保留时长必须大于0且不小于统计窗口")
	}
	return c.PingerConfig().Validate()
}
