// Package metrics 守护进程与转换工具的Prometheus指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PingResults 按结果分类的ping次数
	PingResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zzping_ping_results_total",
			Help: "Number of ping results by outcome.",
		},
		[]string{"result"},
	)
	// FramesWritten 按格式分类的写入帧数
	FramesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zzping_frames_written_total",
			Help: "Number of frames written by format.",
		},
		[]string{"format"},
	)
	// StatsSent 已发送的实时统计报文数
	StatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zzping_stats_sent_total",
			Help: "Number of FrameStats datagrams sent to the viewer.",
		},
	)
	// StatsDropped 被丢弃的报文或日志帧数
	StatsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zzping_stats_dropped_total",
			Help: "Number of stats or log frames dropped by reason.",
		},
		[]string{"reason"},
	)
	// LogRotations 日志文件轮转次数
	LogRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zzping_log_rotations_total",
			Help: "Number of hourly log files opened.",
		},
	)
	// FrameSamples 每帧包含的样本数
	FrameSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zzping_frame_samples",
			Help:    "A histogram of received samples per frame.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 1024},
		},
	)
)
