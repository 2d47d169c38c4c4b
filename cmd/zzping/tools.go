package main

import (
	"fmt"
	"os"

	"github.com/Kevin-Rudy/zzping/pkg/archive"
	"github.com/Kevin-Rudy/zzping/pkg/convert"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/apex/log"
	"github.com/urfave/cli/v2"
)

// encodeOptions 从参数构建输出流的编码设置
// 未设置 --quantize 时不量化
func encodeOptions(c *cli.Context) convert.Options {
	opts := convert.Options{
		Output:         c.String("output"),
		FullEncodeSecs: c.Uint64("time"),
		DeltaEncoding:  c.Bool("delta-enc"),
	}
	if c.IsSet("quantize") {
		precision := c.Float64("quantize")
		opts.Precision = &precision
	}
	return opts
}

// aggregateOptions 只有显式给出的编码参数才覆盖第一个输入的文件头
func aggregateOptions(c *cli.Context) convert.AggregateOptions {
	opts := convert.AggregateOptions{
		Output: c.String("output"),
		Step:   c.Int("step"),
		Window: c.Int("window"),
	}
	if c.IsSet("time") {
		secs := c.Uint64("time")
		opts.FullEncodeSecs = &secs
	}
	if c.IsSet("quantize") {
		precision := c.Float64("quantize")
		opts.Precision = &precision
	}
	if c.IsSet("delta-enc") {
		delta := c.Bool("delta-enc")
		opts.DeltaEncoding = &delta
	}
	return opts
}

// inputs 读取位置参数，至少需要一个
func inputs(c *cli.Context) ([]string, error) {
	if c.NArg() == 0 {
		return nil, cli.Exit("请指定至少一个输入文件", 1)
	}
	return c.Args().Slice(), nil
}

func runConvert(c *cli.Context) error {
	paths, err := inputs(c)
	if err != nil {
		return err
	}
	opts := encodeOptions(c)
	opts.AutoOutput = c.Bool("auto-output")
	opts.KeyframeRelative = c.Bool("keyframe-relative")

	res, err := convert.Convert(paths, opts)
	for _, path := range res.Truncated {
		logging.Logger.WithField("input", path).Warn("日志尾部被截断，已保留之前的帧")
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("转换失败: %v", err), 1)
	}
	logging.Logger.WithFields(log.Fields{
		"inputs": res.Inputs,
		"frames": res.Frames,
	}).Info("转换完成")
	return nil
}

func runAggregate(c *cli.Context) error {
	paths, err := inputs(c)
	if err != nil {
		return err
	}
	n, err := convert.Aggregate(paths, aggregateOptions(c), os.Stdout)
	if err != nil {
		return cli.Exit(fmt.Sprintf("降采样失败: %v", err), 1)
	}
	logging.Logger.WithField("frames", n).Info("降采样完成")
	return nil
}

func runRead(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("请指定一个输入文件", 1)
	}
	opts := convert.DumpOptions{
		Raw:              c.Bool("raw"),
		JSON:             c.Bool("json"),
		KeyframeRelative: c.Bool("keyframe-relative"),
	}
	if _, err := convert.Dump(os.Stdout, c.Args().First(), opts); err != nil {
		return cli.Exit(fmt.Sprintf("读取失败: %v", err), 1)
	}
	return nil
}

func runIndex(c *cli.Context) error {
	paths, err := inputs(c)
	if err != nil {
		return err
	}
	frames, err := convert.ReadAll(paths)
	if err != nil {
		return cli.Exit(fmt.Sprintf("读取输入失败: %v", err), 1)
	}

	a, err := archive.New(archive.Config{Path: c.String("archive")})
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法打开归档: %v", err), 1)
	}
	defer a.Close()

	n, err := a.Index(c.String("host"), frames, c.Int("min-items"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("写入归档失败: %v", err), 1)
	}
	logging.Logger.WithFields(log.Fields{
		"host":   c.String("host"),
		"input":  len(frames),
		"stored": n,
	}).Info("归档完成")
	return nil
}
