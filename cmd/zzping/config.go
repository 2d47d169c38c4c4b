package main

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/pinger"
	"github.com/Kevin-Rudy/zzping/pkg/tui"
	"github.com/urfave/cli/v2"
)

// pingConfig 本地ping模式: 一个pinger直接接入查看端
type pingConfig struct {
	pinger  *pinger.Config
	view    *tui.Config
	targets []string
}

// tuiOptions 只为显式设置的参数生成选项
func tuiOptions(c *cli.Context) []tui.Option {
	var opts []tui.Option
	if c.IsSet("buffer") {
		opts = append(opts, tui.WithHistorySize(c.Int("buffer")))
	}
	if c.IsSet("refresh-rate") {
		opts = append(opts, tui.WithRefreshInterval(c.Duration("refresh-rate")))
	}
	if c.IsSet("chart-width") || c.IsSet("chart-height") {
		opts = append(opts, tui.WithMinChartSize(c.Int("chart-width"), c.Int("chart-height")))
	}
	if c.IsSet("ceiling") {
		opts = append(opts, tui.WithDefaultCeiling(c.Float64("ceiling")))
	}
	if c.IsSet("timeout-buffer-ratio") {
		opts = append(opts, tui.WithTimeoutBufferRatio(c.Float64("timeout-buffer-ratio")))
	}
	return opts
}

// buildTUIConfig 从命令行参数构建查看端配置
func buildTUIConfig(c *cli.Context) *tui.Config {
	return tui.NewConfigWithOptions(tuiOptions(c)...)
}

func pingerOptions(c *cli.Context) []pinger.Option {
	var opts []pinger.Option
	if c.Bool("6") {
		opts = append(opts, pinger.WithIPVersion(6))
	}
	if c.IsSet("watch-interval") {
		opts = append(opts, pinger.WithInterval(c.Duration("watch-interval")))
	}
	if c.IsSet("jitter") {
		opts = append(opts, pinger.WithJitter(c.Float64("jitter")))
	}
	if c.IsSet("timeout") {
		opts = append(opts, pinger.WithTimeout(c.Duration("timeout")))
	}
	return opts
}

// buildPingConfig 实时窗口中一个点对应一次ping
func buildPingConfig(c *cli.Context) *pingConfig {
	pc := pinger.NewConfig(pingerOptions(c)...)
	view := tui.NewConfigWithOptions(append(tuiOptions(c), tui.WithTimeGridInterval(pc.Interval))...)
	return &pingConfig{pinger: pc, view: view, targets: c.Args().Slice()}
}

func (p *pingConfig) validate() error {
	if err := p.pinger.Validate(); err != nil {
		return fmt.Errorf("pinger配置错误: %w", err)
	}
	if err := p.pinger.ValidateTargets(p.targets); err != nil {
		return fmt.Errorf("目标错误: %w", err)
	}
	if err := p.view.Validate(); err != nil {
		return fmt.Errorf("查看端配置错误: %w", err)
	}
	return nil
}

// print 启动前在终端打印配置
func (p *pingConfig) print() {
	fmt.Printf("目标地址: %v\n", p.targets)
	fmt.Printf("ping间隔: %v (抖动 %.0f%%)\n", p.pinger.Interval, p.pinger.Jitter*100)
	fmt.Printf("ping超时: %v\n", p.pinger.Timeout)
	fmt.Printf("历史点数: %d\n", p.view.MaxHistorySize)
}
