package main

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/pinger"
	"github.com/Kevin-Rudy/zzping/pkg/tui"
	"github.com/urfave/cli/v2"
)

// runPing 直接ping目标并在终端显示，不经过守护进程
func runPing(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("错误: 必须指定至少一个要ping的目标地址\n使用方法: "+AppName+" <目标主机...>", 1)
	}
	if c.IsSet("4") && c.Bool("6") {
		return cli.Exit("错误: -4 和 -6 选项不能同时使用", 1)
	}

	cfg := buildPingConfig(c)
	if err := cfg.validate(); err != nil {
		return cli.Exit(fmt.Sprintf("配置验证失败: %v", err), 1)
	}
	cfg.print()
	showSystemInfo()

	p, err := pinger.NewPinger(cfg.targets, cfg.pinger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法创建ping引擎: %v", err), 1)
	}
	printUsageInstructions()

	// 日志会破坏终端界面
	if err := logging.Configure(logging.FormatDiscard, "error"); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	view := tui.NewTUI(p, cfg.targets, cfg.view, cfg.pinger.Timeout)
	_, _, impl := pinger.GetSystemInfo()
	view.SetTitle(fmt.Sprintf("%s (%s)", AppName, impl))
	if err := view.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("界面运行出错: %v", err), 1)
	}
	return nil
}
