package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/collector"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/pinger"
	"github.com/Kevin-Rudy/zzping/pkg/transport"
	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// buildDaemonConfig 读取配置文件，命令行参数覆盖文件中的值
func buildDaemonConfig(c *cli.Context) (*collector.Config, error) {
	cfg := collector.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = collector.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if targets := c.Args().Slice(); len(targets) > 0 {
		cfg.Targets = targets
	}
	if c.IsSet("listen") {
		cfg.ListenAddress = c.String("listen")
	}
	if c.IsSet("client") {
		cfg.ClientAddress = c.String("client")
	}
	if c.IsSet("log-dir") {
		cfg.LogDir = c.String("log-dir")
	}
	if c.IsSet("metrics") {
		cfg.MetricsAddress = c.String("metrics")
	}
	return cfg, cfg.Validate()
}

// serveMetrics 在后台提供 /metrics，返回的函数关闭服务
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.WithError(err).WithField("addr", addr).Error("指标服务退出")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// runDaemon 运行采集守护进程直到收到中断信号
func runDaemon(c *cli.Context) error {
	cfg, err := buildDaemonConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("配置验证失败: %v", err), 1)
	}

	p, err := pinger.NewPinger(cfg.Targets, cfg.PingerConfig())
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法创建ping引擎: %v", err), 1)
	}

	// 接口中不能放入nil指针
	var stats collector.StatsSink
	if cfg.ClientAddress != "" {
		sender, err := transport.NewSender(cfg.ListenAddress, cfg.ClientAddress, cfg.QueueSize)
		if err != nil {
			return cli.Exit(fmt.Sprintf("无法创建统计发送端: %v", err), 1)
		}
		defer sender.Close()
		stats = sender
	}

	logs, err := collector.NewLogWriter(cfg.LogDir, cfg.KeyframeInterval, cfg.QueueSize)
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法创建日志目录: %v", err), 1)
	}
	logs.Start()
	defer logs.Close()

	if cfg.MetricsAddress != "" {
		defer serveMetrics(cfg.MetricsAddress)()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Logger.WithFields(log.Fields{
		"targets": cfg.Targets,
		"client":  cfg.ClientAddress,
		"log_dir": cfg.LogDir,
		"metrics": cfg.MetricsAddress,
	}).Info("守护进程启动")

	if err := collector.NewDaemon(cfg, p, stats, logs).Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("守护进程出错: %v", err), 1)
	}
	logging.Logger.Info("守护进程退出")
	return nil
}
