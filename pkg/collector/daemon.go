package collector

import (
	"context"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framestats"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/apex/log"
)

// Source 可报告在途包数量的ping数据源
type Source interface {
	core.DataSource
	core.InflightReporter
}

// StatsSink 接收实时统计，不得阻塞
type StatsSink interface {
	Send(framestats.Stats) bool
}

// FrameSink 接收日志帧，不得阻塞
type FrameSink interface {
	Write(Entry) bool
}

// Daemon 把ping结果汇总为FrameStats与FrameData
type Daemon struct {
	config   *Config
	source   Source
	stats    StatsSink
	frames   FrameSink
	trackers []*Tracker
	byHost   map[string]*Tracker
	now      func() time.Time
}

// NewDaemon 创建守护进程，stats 或 frames 为nil时跳过对应输出
func NewDaemon(config *Config, source Source, stats StatsSink, frames FrameSink) *Daemon {
	d := &Daemon{
		config: config,
		source: source,
		stats:  stats,
		frames: frames,
		byHost: make(map[string]*Tracker, len(config.Targets)),
		now:    time.Now,
	}
	for _, host := range config.Targets {
		t := NewTracker(host, config.KeepPackets)
		d.trackers = append(d.trackers, t)
		d.byHost[host] = t
	}
	return d
}

// Run 启动数据源并在每个汇报周期输出统计，直到ctx取消或数据源关闭
func (d *Daemon) Run(ctx context.Context) error {
	d.source.Start()
	defer d.source.Stop()

	ticker := time.NewTicker(d.config.ReportInterval)
	defer ticker.Stop()

	results := d.source.DataStream()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-results:
			if !ok {
				return nil
			}
			d.observe(r)
		case <-ticker.C:
			d.report(d.now())
		}
	}
}

func (d *Daemon) observe(r core.PingResult) {
	t, ok := d.byHost[r.Identifier]
	if !ok {
		logging.Logger.WithField("host", r.Identifier).Debug("忽略未知目标的结果")
		return
	}
	t.Observe(r)
}

// report 输出一个汇报周期，目标顺序与配置一致
func (d *Daemon) report(now time.Time) {
	for _, t := range d.trackers {
		t.Prune(now)
		inflight := d.source.Inflight(t.Host())

		stats := t.Stats(now, inflight, d.config.StatsWindow)
		if d.stats != nil {
			d.stats.Send(stats)
		}
		frame := t.Frame(now, inflight)
		if d.frames != nil {
			d.frames.Write(Entry{Host: t.Host(), Frame: frame})
		}

		logging.Logger.WithFields(log.Fields{
			"host":     t.Host(),
			"inflight": inflight,
			"avg":      stats.Avg().String(),
			"loss":     stats.LossPercent(),
			"samples":  len(frame.RecvUs),
		}).Debug("汇报")
	}
}
