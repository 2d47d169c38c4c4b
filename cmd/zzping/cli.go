package main

import (
	"fmt"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/aggregate"
	"github.com/Kevin-Rudy/zzping/pkg/convert"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/pinger"
	"github.com/Kevin-Rudy/zzping/pkg/transport"
	"github.com/urfave/cli/v2"
)

// createCliApp 创建CLI应用实例
// 不带子命令时与 ping 子命令相同
func createCliApp() *cli.App {
	return &cli.App{
		Name:      AppName,
		Version:   AppVersion,
		Usage:     AppDesc,
		ArgsUsage: "<目标主机...>",
		Flags:     append(logFlags(), pingFlags()...),
		Before:    configureLogging,
		Action:    runPing,
		Commands:  createCommands(),
	}
}

// logFlags 全局日志参数
func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-format",
			Value: logging.FormatText,
			Usage: "日志格式: json, text, discard",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "日志级别: debug, info, warn, error",
		},
	}
}

func configureLogging(c *cli.Context) error {
	if err := logging.Configure(c.String("log-format"), c.String("log-level")); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// viewFlags 查看端参数
func viewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "buffer",
			Aliases: []string{"b"},
			Value:   300,
			Usage:   "图表历史点数",
		},
		&cli.DurationFlag{
			Name:    "refresh-rate",
			Aliases: []string{"r"},
			Value:   200 * time.Millisecond,
			Usage:   "UI刷新频率 (例如: 100ms, 500ms)",
		},
		&cli.IntFlag{
			Name:  "chart-width",
			Value: 20,
			Usage: "最小图表宽度",
		},
		&cli.IntFlag{
			Name:  "chart-height",
			Value: 5,
			Usage: "最小图表高度",
		},
		&cli.Float64Flag{
			Name:  "ceiling",
			Value: 50.0,
			Usage: "图表纵轴上限的下限值 (ms)",
		},
		&cli.Float64Flag{
			Name:  "timeout-buffer-ratio",
			Value: 1.2,
			Usage: "超时缓冲比例，查看端超时 = 数据源超时 * 此比例",
		},
	}
}

// pingFlags 本地ping参数
func pingFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "4",
			Usage: "使用IPv4进行域名解析（默认）",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "6",
			Usage: "使用IPv6进行域名解析",
		},
		&cli.DurationFlag{
			Name:    "watch-interval",
			Aliases: []string{"n"},
			Value:   200 * time.Millisecond,
			Usage:   "ping间隔时间 (例如: 100ms, 1s)",
		},
		&cli.Float64Flag{
			Name:  "jitter",
			Usage: "ping间隔的随机抖动比例 [0, 1)",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   3 * time.Second,
			Usage:   "ping超时时间 (例如: 3s, 1000ms)",
		},
	}, viewFlags()...)
}

// fdqFlags FrameDataQ输出参数
func fdqFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "输出文件",
		},
		&cli.Uint64Flag{
			Name:  "time",
			Value: 60,
			Usage: "完整帧间隔(秒)",
		},
		&cli.Float64Flag{
			Name:  "quantize",
			Usage: "量化精度，例如 0.05 表示5%相对误差，不设置则不量化",
		},
		&cli.BoolFlag{
			Name:  "delta-enc",
			Usage: "百分位增量编码（不稳定）",
		},
	}
}

// keyframeRelativeFlag 读取旧版守护进程写的FrameData日志
func keyframeRelativeFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "keyframe-relative",
		Usage: "增量帧时间相对于上一个完整帧（旧版守护进程的日志）",
	}
}

// createCommands 创建子命令
func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ping",
			Usage:     "直接ping目标并在终端显示",
			ArgsUsage: "<目标主机...>",
			Flags:     pingFlags(),
			Action:    runPing,
		},
		{
			Name:      "daemon",
			Usage:     "运行采集守护进程",
			ArgsUsage: "[目标主机...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "TOML配置文件",
				},
				&cli.StringFlag{
					Name:  "listen",
					Usage: "发送统计使用的本地UDP地址",
				},
				&cli.StringFlag{
					Name:  "client",
					Usage: "查看端的UDP地址，例如 127.0.0.1:2201",
				},
				&cli.StringFlag{
					Name:  "log-dir",
					Usage: "FrameData日志目录",
				},
				&cli.StringFlag{
					Name:  "metrics",
					Usage: "Prometheus指标地址，例如 :9990",
				},
			},
			Action: runDaemon,
		},
		{
			Name:      "view",
			Usage:     "查看守护进程的实时统计，或离线查看FrameDataQ文件与归档",
			ArgsUsage: "[FrameDataQ文件...]",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "listen",
					Value: "127.0.0.1:2201",
					Usage: "接收实时统计的UDP地址",
				},
				&cli.IntFlag{
					Name:  "queue",
					Value: transport.DefaultQueueSize,
					Usage: "接收队列长度",
				},
				&cli.StringFlag{
					Name:  "archive",
					Usage: "离线查看的归档目录",
				},
				&cli.StringSliceFlag{
					Name:  "host",
					Usage: "离线查看的目标，默认归档中的全部目标，文件输入时为目标名",
				},
				&cli.TimestampFlag{
					Name:   "from",
					Layout: time.RFC3339,
					Usage:  "离线查看的开始时间",
				},
				&cli.TimestampFlag{
					Name:   "to",
					Layout: time.RFC3339,
					Usage:  "离线查看的结束时间",
				},
				&cli.IntFlag{
					Name:  "min-items",
					Value: aggregate.DefaultMinItems,
					Usage: "文件输入构建金字塔时，某层少于该帧数就停止",
				},
			}, viewFlags()...),
			Action: runView,
		},
		{
			Name:      "convert",
			Usage:     "把守护进程的FrameData日志转换为FrameDataQ",
			ArgsUsage: "<输入...>",
			Flags: append(fdqFlags(),
				&cli.BoolFlag{
					Name:  "auto-output",
					Usage: "为每个输入写一个 {输入}" + convert.AutoOutputSuffix,
				},
				keyframeRelativeFlag(),
			),
			Action: runConvert,
		},
		{
			Name:        "aggregate",
			Usage:       "按顺序拼接FrameDataQ文件并降采样",
			Description: "输出文件头沿用第一个输入的设置，只有显式给出的 --time、--quantize、--delta-enc 会覆盖它",
			ArgsUsage:   "<输入...>",
			Flags: append(fdqFlags(),
				&cli.IntFlag{
					Name:  "step",
					Value: 10,
					Usage: "游标步长",
				},
				&cli.IntFlag{
					Name:  "window",
					Value: 10,
					Usage: "窗口长度，不小于步长",
				},
			),
			Action: runAggregate,
		},
		{
			Name:      "read",
			Usage:     "以文本或JSON输出帧",
			ArgsUsage: "<文件>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "raw",
					Usage: "输入是守护进程的FrameData日志",
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "每行输出一个JSON对象",
				},
				keyframeRelativeFlag(),
			},
			Action: runRead,
		},
		{
			Name:      "index",
			Usage:     "为FrameDataQ文件构建多分辨率金字塔并写入归档",
			ArgsUsage: "<输入...>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "archive",
					Usage:    "归档目录",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "host",
					Usage:    "输入所属的目标",
					Required: true,
				},
				&cli.IntFlag{
					Name:  "min-items",
					Value: aggregate.DefaultMinItems,
					Usage: "某层少于该帧数就停止继续折叠",
				},
			},
			Action: runIndex,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "显示详细版本信息",
			Action: func(c *cli.Context) error {
				osName, _, impl := pinger.GetSystemInfo()
				fmt.Printf("%s v%s\n", AppName, AppVersion)
				fmt.Printf("描述: %s\n", AppDesc)
				fmt.Printf("系统: %s\n", osName)
				fmt.Printf("实现: %s\n", impl)
				return nil
			},
		},
	}
}
