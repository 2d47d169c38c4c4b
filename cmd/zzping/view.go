package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/aggregate"
	"github.com/Kevin-Rudy/zzping/pkg/archive"
	"github.com/Kevin-Rudy/zzping/pkg/convert"
	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/replay"
	"github.com/Kevin-Rudy/zzping/pkg/transport"
	"github.com/Kevin-Rudy/zzping/pkg/tui"
	"github.com/urfave/cli/v2"
)

// timeRange 读取 --from 与 --to，未设置时为零值
func timeRange(c *cli.Context) (from, to time.Time) {
	if t := c.Timestamp("from"); t != nil {
		from = *t
	}
	if t := c.Timestamp("to"); t != nil {
		to = *t
	}
	return from, to
}

// clip 保留 [from, to) 内的帧，零值表示不限
func clip(frames []framedataq.Frame, from, to time.Time) []framedataq.Frame {
	var out []framedataq.Frame
	for _, f := range frames {
		if (!from.IsZero() && f.Time.Before(from)) || (!to.IsZero() && !f.Time.Before(to)) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// hostName 文件输入的目标名，--host 按位置对应，否则取文件名
func hostName(hosts []string, i int, path string) string {
	if i < len(hosts) {
		return hosts[i]
	}
	return strings.TrimSuffix(filepath.Base(path), convert.AutoOutputSuffix)
}

// loadFiles 读取FrameDataQ文件，每个文件选择不超过 width 帧的最精细层
func loadFiles(c *cli.Context, width int) ([]replay.Series, error) {
	paths := c.Args().Slice()
	decoders, closeAll, err := convert.OpenAll(paths)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	from, to := timeRange(c)
	hosts := c.StringSlice("host")
	var series []replay.Series
	for i, d := range decoders {
		frames, err := d.ReadAll()
		if err != nil {
			return nil, &core.FrameError{Path: paths[i], Index: d.Frames(), Err: err}
		}
		level := aggregate.ForWidth(aggregate.Pyramid(clip(frames, from, to), c.Int("min-items")), width)
		series = append(series, replay.Series{Host: hostName(hosts, i, paths[i]), Frames: level.Frames})
	}
	return series, nil
}

// loadArchive 从归档中为每个目标选择合适的层
func loadArchive(c *cli.Context, width int) ([]replay.Series, error) {
	a, err := archive.New(archive.Config{Path: c.String("archive")})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	hosts := c.StringSlice("host")
	if len(hosts) == 0 {
		if hosts, err = a.Hosts(); err != nil {
			return nil, err
		}
	}
	from, to := timeRange(c)
	var series []replay.Series
	for _, host := range hosts {
		level, err := a.ForWidth(host, from, to, width)
		if err != nil {
			return nil, err
		}
		series = append(series, replay.Series{Host: host, Frames: level.Frames})
	}
	return series, nil
}

// runView 运行查看端
// 有文件参数或 --archive 时离线查看，否则接收守护进程的实时统计
func runView(c *cli.Context) error {
	tuiConfig := buildTUIConfig(c)
	if err := tuiConfig.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("查看端配置错误: %v", err), 1)
	}

	var view *tui.TUI
	if c.NArg() > 0 || c.IsSet("archive") {
		load := loadFiles
		if c.IsSet("archive") {
			load = loadArchive
		}
		series, err := load(c, tuiConfig.MaxHistorySize)
		if err != nil {
			return cli.Exit(fmt.Sprintf("读取离线数据失败: %v", err), 1)
		}
		start, end, ok := replay.Span(series)
		if !ok {
			return cli.Exit("所选范围内没有帧", 1)
		}

		var targets []string
		for _, s := range series {
			targets = append(targets, s.Host)
			tuiConfig.MaxHistorySize = min(max(tuiConfig.MaxHistorySize, len(s.Frames)), tui.MaxHistoryLimit)
		}
		if grid := end.Sub(start) / time.Duration(tuiConfig.MaxHistorySize); grid > 0 {
			tuiConfig.TimeGridInterval = grid
		}
		view = tui.NewTUI(replay.New(series...), targets, tuiConfig, tuiConfig.TimeGridInterval)
		view.SetTitle(fmt.Sprintf("%s %s ~ %s", AppName, start.Local().Format(time.DateTime), end.Local().Format(time.DateTime)))
		view.SetTimeWindow(start, end)
	} else {
		receiver, err := transport.Listen(c.String("listen"), c.Int("queue"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("无法监听 %s: %v", c.String("listen"), err), 1)
		}
		view = tui.NewTUI(receiver, c.StringSlice("host"), tuiConfig, time.Second)
		view.SetTitle(fmt.Sprintf("%s 监听 %s", AppName, receiver.Addr()))
	}

	printUsageInstructions()
	if err := logging.Configure(logging.FormatDiscard, "error"); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := view.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("界面运行出错: %v", err), 1)
	}
	return nil
}
