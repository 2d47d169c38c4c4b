package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/apex/log"
	"github.com/m-lab/go/warnonerror"
)

// hourLayout 日志文件名中的小时后缀
const hourLayout = "20060102T15"

// LogFileName 返回目标在某一小时的日志文件名
func LogFileName(host string, t time.Time) string {
	return fmt.Sprintf("pingd-log-%s-%s.log", host, t.UTC().Format(hourLayout))
}

// Entry 一个目标的一帧
type Entry struct {
	Host  string
	Frame framedata.Frame
}

// hostLog 一个目标当前打开的日志文件
type hostLog struct {
	path string
	hour string
	file *os.File
	w    *framedata.Writer
}

// LogWriter 在独立goroutine中写入所有目标的FrameData日志
// 每个目标每小时一个文件，新文件的第一帧总是完整帧
type LogWriter struct {
	dir      string
	keyframe time.Duration
	entries  chan Entry
	files    map[string]*hostLog

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLogWriter 创建日志写入器，目录不存在时自动创建
func NewLogWriter(dir string, keyframe time.Duration, queueSize int) (*LogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LogWriter{
		dir:      dir,
		keyframe: keyframe,
		entries:  make(chan Entry, queueSize),
		files:    make(map[string]*hostLog),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 启动写入goroutine
func (l *LogWriter) Start() {
	l.wg.Add(1)
	go l.loop()
}

// Write 排队一帧，队列满时丢弃并返回false
func (l *LogWriter) Write(e Entry) bool {
	select {
	case l.entries <- e:
		return true
	default:
		metrics.StatsDropped.WithLabelValues("log_queue_full").Inc()
		return false
	}
}

func (l *LogWriter) loop() {
	defer l.wg.Done()
	defer l.closeAll()

	flush := time.NewTicker(l.flushInterval())
	defer flush.Stop()

	for {
		select {
		case e := <-l.entries:
			l.write(e)
		case <-flush.C:
			l.flushAll()
		case <-l.ctx.Done():
			// 写完已排队的帧再退出
			for {
				select {
				case e := <-l.entries:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *LogWriter) flushInterval() time.Duration {
	if l.keyframe > 0 {
		return l.keyframe
	}
	return 15 * time.Second
}

func (l *LogWriter) write(e Entry) {
	hl, err := l.fileFor(e.Host, e.Frame.Time)
	if err != nil {
		logging.Logger.WithError(err).WithField("host", e.Host).Error("无法打开日志文件")
		metrics.StatsDropped.WithLabelValues("log_open_error").Inc()
		return
	}
	if err := hl.w.Write(e.Frame); err != nil {
		logging.Logger.WithError(err).WithField("path", hl.path).Error("写入帧失败")
		metrics.StatsDropped.WithLabelValues("log_write_error").Inc()
		return
	}
	metrics.FramesWritten.WithLabelValues("framedata").Inc()
	metrics.FrameSamples.Observe(float64(len(e.Frame.RecvUs)))
}

// fileFor 返回目标当前小时的文件，跨小时则轮转
// 与已有文件同名时覆盖
func (l *LogWriter) fileFor(host string, t time.Time) (*hostLog, error) {
	hour := t.UTC().Format(hourLayout)
	if hl, ok := l.files[host]; ok {
		if hl.hour == hour {
			return hl, nil
		}
		l.closeFile(hl)
		delete(l.files, host)
	}

	path := filepath.Join(l.dir, LogFileName(host, t))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	hl := &hostLog{
		path: path,
		hour: hour,
		file: f,
		w:    framedata.NewWriter(f, l.keyframe),
	}
	l.files[host] = hl
	metrics.LogRotations.Inc()
	logging.Logger.WithFields(log.Fields{"host": host, "path": path}).Info("开始新的日志文件")
	return hl, nil
}

func (l *LogWriter) closeFile(hl *hostLog) {
	if err := hl.w.Flush(); err != nil {
		logging.Logger.WithError(err).WithField("path", hl.path).Warn("刷新日志文件失败")
	}
	warnonerror.Close(hl.file, "关闭日志文件失败: "+hl.path)
}

func (l *LogWriter) flushAll() {
	for _, hl := range l.files {
		if err := hl.w.Flush(); err != nil {
			logging.Logger.WithError(err).WithField("path", hl.path).Warn("刷新日志文件失败")
		}
	}
}

func (l *LogWriter) closeAll() {
	for host, hl := range l.files {
		l.closeFile(hl)
		delete(l.files, host)
	}
}

// Close 写完队列中的帧，刷新并关闭所有文件
func (l *LogWriter) Close() {
	l.cancel()
	l.wg.Wait()
	// 未启动时也要关闭可能存在的文件
	l.closeAll()
}
