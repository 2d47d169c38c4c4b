package collector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framedata"
	"github.com/Kevin-Rudy/zzping/pkg/framestats"
	"github.com/m-lab/go/rtx"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

const sampleConfig = `
udp_listen_address = "127.0.0.1:7878"
udp_client_address = "127.0.0.1:7879"
ping_targets = ["192.168.0.1", "192.168.0.2"]
log_dir = "/var/log/zzping"
ping_interval = "50ms"
keyframe_interval = "30s"

[keep_packets]
lost = "1m"
`

// TestParseConfig 测试TOML配置在默认值之上解析
func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(sampleConfig)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:7878" || cfg.ClientAddress != "127.0.0.1:7879" {
		t.Errorf("Unexpected addresses %q %q", cfg.ListenAddress, cfg.ClientAddress)
	}
	if len(cfg.Targets) != 2 || cfg.Targets[0] != "192.168.0.1" {
		t.Errorf("Unexpected targets %v", cfg.Targets)
	}
	if cfg.PingInterval != 50*time.Millisecond {
		t.Errorf("Expected ping interval 50ms, got %v", cfg.PingInterval)
	}
	if cfg.KeyframeInterval != 30*time.Second {
		t.Errorf("Expected keyframe interval 30s, got %v", cfg.KeyframeInterval)
	}
	if cfg.KeepPackets.Lost != time.Minute {
		t.Errorf("Expected lost retention 1m, got %v", cfg.KeepPackets.Lost)
	}
	// 未出现的键保持默认值
	if cfg.ReportInterval != 100*time.Millisecond || cfg.KeepPackets.Recv != 10*time.Second {
		t.Errorf("Expected defaults to survive, got %v %v", cfg.ReportInterval, cfg.KeepPackets.Recv)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected sample config to be valid: %v", err)
	}
}

// TestParseConfigErrors 测试空配置、未知键与语法错误
func TestParseConfigErrors(t *testing.T) {
	cfg, err := ParseConfig("")
	if err != nil {
		t.Fatalf("Expected empty text to parse, got %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected config without targets to be invalid")
	}

	if _, err := ParseConfig(`ping_tragets = ["a"]`); err == nil {
		t.Error("Expected unknown key to be rejected")
	}
	if _, err := ParseConfig(`ping_targets = [`); err == nil {
		t.Error("Expected syntax error")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Error("Expected error for empty path")
	}
}

// TestLoadConfigFile 测试从文件读取
func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.toml")
	rtx.Must(os.WriteFile(path, []byte(sampleConfig), 0o644), "Could not write config")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.LogDir != "/var/log/zzping" {
		t.Errorf("Expected log dir from file, got %q", cfg.LogDir)
	}
}

// TestConfigValidation 测试配置验证
func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"duplicate": func(c *Config) { c.Targets = []string{"a", "a"} },
		"logdir":    func(c *Config) { c.LogDir = "" },
		"report":    func(c *Config) { c.ReportInterval = 0 },
		"keyframe":  func(c *Config) { c.KeyframeInterval = time.Millisecond },
		"window":    func(c *Config) { c.StatsWindow = 0 },
		"queue":     func(c *Config) { c.QueueSize = 0 },
		"keep":      func(c *Config) { c.KeepPackets.Lost = 0 },
		"pinger":    func(c *Config) { c.PingInterval = time.Millisecond },
	}
	for name, mutate := range cases {
		c := DefaultConfig()
		c.Targets = []string{"127.0.0.1"}
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Expected validation error", name)
		}
	}
}

func reply(host string, sent time.Time, rtt time.Duration) core.PingResult {
	return core.PingResult{
		Identifier:  host,
		Latency:     float64(rtt) / float64(time.Millisecond),
		SendTime:    sent,
		ReceiveTime: sent.Add(rtt),
	}
}

func timeout(host string, sent time.Time) core.PingResult {
	return core.PingResult{Identifier: host, Latency: math.NaN(), SendTime: sent}
}

// TestTrackerFrame 测试每帧只包含自上一帧以来的结果
func TestTrackerFrame(t *testing.T) {
	tr := NewTracker("h", DefaultConfig().KeepPackets)
	tr.Observe(reply("h", base, 30*time.Millisecond))
	tr.Observe(reply("h", base.Add(10*time.Millisecond), 10*time.Millisecond))
	tr.Observe(timeout("h", base.Add(20*time.Millisecond)))

	f := tr.Frame(base.Add(100*time.Millisecond), 3)
	if !f.Time.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("Expected frame time at report, got %v", f.Time)
	}
	if f.Inflight != 3 || f.Lost != 1 {
		t.Errorf("Expected inflight 3 lost 1, got %d %d", f.Inflight, f.Lost)
	}
	if len(f.RecvUs) != 2 || f.RecvUs[0] != 10000 || f.RecvUs[1] != 30000 {
		t.Errorf("Expected sorted samples [10000 30000], got %v", f.RecvUs)
	}

	next := tr.Frame(base.Add(200*time.Millisecond), 0)
	if next.Lost != 0 || len(next.RecvUs) != 0 {
		t.Errorf("Expected empty frame after drain, got %+v", next)
	}
}

// TestTrackerStats 测试实时统计
func TestTrackerStats(t *testing.T) {
	keep := KeepPackets{Recv: time.Second, Lost: time.Second}
	tr := NewTracker("h", keep)

	now := base.Add(time.Second)
	if s := tr.Stats(now, 0, 500*time.Millisecond); s.Avg() != framestats.NoReplyAvg || s.LossPercent() != 0 {
		t.Errorf("Expected no-reply defaults, got %+v", s)
	}

	tr.Observe(reply("h", base, 100*time.Millisecond)) // 窗口外
	tr.Observe(reply("h", base.Add(700*time.Millisecond), 10*time.Millisecond))
	tr.Observe(reply("h", base.Add(800*time.Millisecond), 20*time.Millisecond))
	tr.Observe(timeout("h", base.Add(900*time.Millisecond)))

	s := tr.Stats(now, 2, 500*time.Millisecond)
	if s.Avg() != 15*time.Millisecond {
		t.Errorf("Expected avg over window 15ms, got %v", s.Avg())
	}
	if s.LossPercent() != 25 {
		t.Errorf("Expected 25%% loss, got %v", s.LossPercent())
	}
	if s.SinceLast() != 200*time.Millisecond {
		t.Errorf("Expected 200ms since last reply, got %v", s.SinceLast())
	}
	if s.Inflight != 2 || s.Addr != "h" {
		t.Errorf("Unexpected identity %+v", s)
	}

	tr.Prune(base.Add(1500 * time.Millisecond))
	if len(tr.recv) != 2 || len(tr.lost) != 1 {
		t.Errorf("Expected old reply to be pruned, got %d recv %d lost", len(tr.recv), len(tr.lost))
	}
	tr.Prune(base.Add(10 * time.Second))
	if len(tr.recv) != 0 || len(tr.lost) != 0 {
		t.Errorf("Expected everything pruned, got %d recv %d lost", len(tr.recv), len(tr.lost))
	}
}

// TestLogWriterRotation 测试按小时轮转以及每个文件的第一帧为完整帧
func TestLogWriterRotation(t *testing.T) {
	dir := t.TempDir()
	lw, err := NewLogWriter(dir, 15*time.Second, 16)
	rtx.Must(err, "Could not create log writer")
	lw.Start()

	before := time.Date(2021, 6, 1, 10, 59, 59, 0, time.UTC)
	times := []time.Time{
		before.Add(-200 * time.Millisecond),
		before.Add(-100 * time.Millisecond),
		before,
		before.Add(100 * time.Millisecond),
		before.Add(1100 * time.Millisecond), // 11:00:00.1
		before.Add(1200 * time.Millisecond),
	}
	for i, at := range times {
		if !lw.Write(Entry{Host: "h", Frame: framedata.Frame{Time: at, Inflight: uint16(i), RecvUs: []uint32{uint32(i)}}}) {
			t.Fatalf("Expected frame %d to be queued", i)
		}
	}
	lw.Write(Entry{Host: "other", Frame: framedata.Frame{Time: before}})
	lw.Close()

	check := func(name string, want int) {
		t.Helper()
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Expected log file %s: %v", name, err)
		}
		defer f.Close()
		frames, err := framedata.ReadAll(f)
		if err != nil {
			t.Fatalf("%s: ReadAll failed: %v", name, err)
		}
		if len(frames) != want {
			t.Fatalf("%s: Expected %d frames, got %d", name, want, len(frames))
		}
		if !frames[0].Full {
			t.Errorf("%s: Expected first frame to be full", name)
		}
		for _, fr := range frames[1:] {
			if fr.Full {
				t.Errorf("%s: Expected later frames to be deltas", name)
			}
		}
	}
	check("pingd-log-h-20210601T10.log", 4)
	check("pingd-log-h-20210601T11.log", 2)
	check("pingd-log-other-20210601T10.log", 1)
}

// TestLogWriterCloseWithoutStart 测试未启动的写入器可以关闭
func TestLogWriterCloseWithoutStart(t *testing.T) {
	lw, err := NewLogWriter(filepath.Join(t.TempDir(), "nested", "dir"), 0, 1)
	rtx.Must(err, "Could not create log writer")
	lw.Write(Entry{Host: "h"})
	if lw.Write(Entry{Host: "h"}) {
		t.Error("Expected full queue to drop")
	}
	lw.Close()
}

// TestLogFileName 测试日志文件名
func TestLogFileName(t *testing.T) {
	at := time.Date(2021, 6, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	if got := LogFileName("192.168.0.1", at); got != "pingd-log-192.168.0.1-20210601T10.log" {
		t.Errorf("Expected UTC hour in file name, got %s", got)
	}
}

type fakeSource struct {
	ch       chan core.PingResult
	inflight map[string]int
	mu       sync.Mutex
	started  bool
	stopped  bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan core.PingResult, 16), inflight: map[string]int{}}
}

func (f *fakeSource) DataStream() <-chan core.PingResult { return f.ch }
func (f *fakeSource) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
}
func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}
func (f *fakeSource) Inflight(id string) int { return f.inflight[id] }

type captureStats struct{ got []framestats.Stats }

func (c *captureStats) Send(s framestats.Stats) bool {
	c.got = append(c.got, s)
	return true
}

type captureFrames struct{ got []Entry }

func (c *captureFrames) Write(e Entry) bool {
	c.got = append(c.got, e)
	return true
}

// TestDaemonReport 测试每个汇报周期为每个目标输出一条统计和一帧
func TestDaemonReport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets = []string{"a", "b"}
	src := newFakeSource()
	src.inflight["b"] = 4
	stats := &captureStats{}
	frames := &captureFrames{}
	d := NewDaemon(cfg, src, stats, frames)

	d.observe(reply("a", base, 5*time.Millisecond))
	d.observe(reply("unknown", base, 5*time.Millisecond))
	d.report(base.Add(100 * time.Millisecond))

	if len(stats.got) != 2 || len(frames.got) != 2 {
		t.Fatalf("Expected one stats and one frame per target, got %d %d", len(stats.got), len(frames.got))
	}
	if stats.got[0].Addr != "a" || stats.got[1].Addr != "b" {
		t.Errorf("Expected configured order, got %s %s", stats.got[0].Addr, stats.got[1].Addr)
	}
	if stats.got[1].Inflight != 4 || frames.got[1].Frame.Inflight != 4 {
		t.Errorf("Expected inflight from source, got %+v", stats.got[1])
	}
	if len(frames.got[0].Frame.RecvUs) != 1 || frames.got[0].Frame.RecvUs[0] != 5000 {
		t.Errorf("Expected one 5ms sample for a, got %v", frames.got[0].Frame.RecvUs)
	}

	// 没有输出时也可以汇报
	NewDaemon(cfg, src, nil, nil).report(base)
}

// TestDaemonRun 测试Run在ctx取消或数据源关闭时返回并停止数据源
func TestDaemonRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Targets = []string{"a"}
	cfg.ReportInterval = 5 * time.Millisecond

	src := newFakeSource()
	frames := &captureFrames{}
	d := NewDaemon(cfg, src, nil, frames)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	src.ch <- reply("a", time.Now(), time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected nil error on cancel, got %v", err)
	}
	if !src.started || !src.stopped {
		t.Error("Expected source to be started and stopped")
	}
	if len(frames.got) == 0 {
		t.Error("Expected at least one report")
	}

	closed := newFakeSource()
	close(closed.ch)
	if err := NewDaemon(cfg, closed, nil, nil).Run(context.Background()); err != nil {
		t.Errorf("Expected nil error on closed source, got %v", err)
	}
}
