package pinger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"go.uber.org/goleak"
)

func testConfig() *Config {
	return &Config{
		IPVersion:  4,
		Interval:   100 * time.Millisecond,
		Timeout:    3 * time.Second,
		BufferSize: 100,
	}
}

// TestNewBasePinger 测试基础pinger的创建
func TestNewBasePinger(t *testing.T) {
	targets := []string{"192.0.2.1", "192.0.2.2"}
	config := testConfig()
	bp := newBasePinger(targets, config)

	if len(bp.targets) != 2 {
		t.Errorf("Expected 2 targets, got %d", len(bp.targets))
	}
	if bp.config.Interval != config.Interval {
		t.Errorf("Expected interval=%v, got %v", config.Interval, bp.config.Interval)
	}
	if bp.dataChan == nil {
		t.Error("Expected data channel to be initialized")
	}
	if len(bp.inflight) != 2 {
		t.Errorf("Expected an inflight counter per target, got %d", len(bp.inflight))
	}
	if bp.ctx.Err() != nil {
		t.Error("Expected context to be live before Stop")
	}
	bp.Stop()
	if bp.ctx.Err() == nil {
		t.Error("Expected context to be cancelled after Stop")
	}
}

// TestNewPingerValidation 测试NewPinger的参数验证
func TestNewPingerValidation(t *testing.T) {
	config := DefaultConfig()

	if _, err := NewPinger([]string{}, config); err == nil {
		t.Error("Expected error for empty targets")
	}
	if _, err := NewPinger([]string{"127.0.0.1", ""}, config); err == nil {
		t.Error("Expected error for empty target string")
	}

	p, err := NewPinger([]string{"127.0.0.1"}, config)
	if err != nil {
		t.Logf("Info: NewPinger with valid IP failed: %v (expected on some systems without privileges)", err)
	} else {
		p.Stop()
	}

	bad := testConfig()
	bad.Interval = 0
	if _, err := NewPinger([]string{"127.0.0.1"}, bad); err == nil {
		t.Error("Expected error for invalid config (zero interval)")
	}
}

// TestEmitResults 测试成功和失败结果的内容
func TestEmitResults(t *testing.T) {
	bp := newBasePinger([]string{"test"}, testConfig())
	bp.setRunning(true)
	defer bp.Stop()

	sent := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	bp.succeed("test", "192.0.2.1", 7, sent, 15500*time.Microsecond)
	bp.fail("test", "192.0.2.1", 8, sent, errors.New("boom"))

	ok := <-bp.DataStream()
	if ok.Identifier != "test" || ok.Address != "192.0.2.1" || ok.Seq != 7 {
		t.Errorf("Unexpected result identity %+v", ok)
	}
	if ok.Latency != 15.5 {
		t.Errorf("Expected latency 15.5, got %f", ok.Latency)
	}
	if !ok.ReceiveTime.Equal(sent.Add(15500 * time.Microsecond)) {
		t.Errorf("Expected receive time after rtt, got %v", ok.ReceiveTime)
	}
	if rtt, good := ok.RTT(); !good || rtt != 15500*time.Microsecond {
		t.Errorf("Expected RTT 15.5ms, got %v %v", rtt, good)
	}

	lost := <-bp.DataStream()
	if !math.IsNaN(lost.Latency) || lost.Seq != 8 {
		t.Errorf("Expected NaN latency for seq 8, got %+v", lost)
	}
	if !lost.ReceiveTime.IsZero() {
		t.Errorf("Expected zero receive time on timeout, got %v", lost.ReceiveTime)
	}
}

// TestEmitWhenStopped 测试未运行时不发送结果
func TestEmitWhenStopped(t *testing.T) {
	bp := newBasePinger([]string{"test"}, testConfig())
	bp.succeed("test", "", 1, time.Now(), time.Millisecond)
	select {
	case r := <-bp.DataStream():
		t.Errorf("Expected no result before start, got %+v", r)
	default:
	}
}

// TestInflight 测试在途计数
func TestInflight(t *testing.T) {
	bp := newBasePinger([]string{"a", "b"}, testConfig())

	doneA1 := bp.begin("a")
	doneA2 := bp.begin("a")
	bp.begin("unknown")()

	if got := bp.Inflight("a"); got != 2 {
		t.Errorf("Expected 2 inflight for a, got %d", got)
	}
	if got := bp.Inflight("b"); got != 0 {
		t.Errorf("Expected 0 inflight for b, got %d", got)
	}
	if got := bp.Inflight("unknown"); got != 0 {
		t.Errorf("Expected 0 inflight for unknown target, got %d", got)
	}

	doneA1()
	doneA1()
	if got := bp.Inflight("a"); got != 1 {
		t.Errorf("Expected completion to be counted once, got %d", got)
	}
	doneA2()
	if got := bp.Inflight("a"); got != 0 {
		t.Errorf("Expected 0 inflight, got %d", got)
	}

	var _ core.InflightReporter = bp
}

// TestBufferFullDrops 测试缓冲区满时丢弃而不阻塞
func TestBufferFullDrops(t *testing.T) {
	config := testConfig()
	config.BufferSize = 10
	bp := newBasePinger([]string{"test"}, config)
	bp.setRunning(true)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bp.succeed("test", "", i, time.Now(), time.Millisecond)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Expected emit to drop instead of blocking")
	}

	if got := len(bp.DataStream()); got != 10 {
		t.Errorf("Expected buffer to hold 10 results, got %d", got)
	}
	bp.Stop()

	count := 0
	for range bp.DataStream() {
		count++
	}
	if count != 10 {
		t.Errorf("Expected 10 buffered results after Stop, got %d", count)
	}
}

// TestTickSequence 测试定时器驱动的序号递增，以及停止后没有残留goroutine
func TestTickSequence(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig()
	config.Interval = 10 * time.Millisecond
	bp := newBasePinger([]string{"test"}, config)

	seqs := make(chan int, 16)
	exited := make(chan struct{})
	go func() {
		bp.tick("test", func(seq int) { seqs <- seq })
		close(exited)
	}()

	for want := 1; want <= 3; want++ {
		select {
		case got := <-seqs:
			if got != want {
				t.Errorf("Expected seq %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for seq %d", want)
		}
	}
	bp.cancel()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("Expected tick to return after cancel")
	}
}

// TestTickerConfig 测试抖动换算
func TestTickerConfig(t *testing.T) {
	config := testConfig()
	tc := config.tickerConfig()
	if tc.Min != config.Interval || tc.Max != config.Interval || tc.Expected != config.Interval {
		t.Errorf("Expected fixed interval without jitter, got %+v", tc)
	}

	config.Jitter = 0.1
	tc = config.tickerConfig()
	if tc.Min != 90*time.Millisecond || tc.Max != 110*time.Millisecond {
		t.Errorf("Expected 90ms..110ms, got %v..%v", tc.Min, tc.Max)
	}
}

// TestConfigValidation 测试配置验证
func TestConfigValidation(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	cases := map[string]func(*Config){
		"ip version": func(c *Config) { c.IPVersion = 3 },
		"interval":   func(c *Config) { c.Interval = 0 },
		"timeout":    func(c *Config) { c.Timeout = 0 },
		"buffer":     func(c *Config) { c.BufferSize = 0 },
		"jitter":     func(c *Config) { c.Jitter = 1 },
		"negative":   func(c *Config) { c.Jitter = -0.5 },
	}
	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Expected validation error", name)
		}
	}
}

// TestConfigTargetValidation 测试目标验证
func TestConfigTargetValidation(t *testing.T) {
	config := DefaultConfig()

	if err := config.ValidateTargets([]string{"8.8.8.8", "127.0.0.1"}); err != nil {
		t.Errorf("Literal IPv4 targets should validate: %v", err)
	}
	if err := config.ValidateTargets([]string{""}); err == nil {
		t.Error("Expected error for empty target")
	}

	config.IPVersion = 6
	if err := config.ValidateTargets([]string{"::1"}); err != nil {
		t.Logf("IPv6 targets failed validation (may be network related): %v", err)
	}
	if config.GetIPProtocol() != "ip6" {
		t.Errorf("Expected ip6 protocol, got %s", config.GetIPProtocol())
	}
}

// TestEchoMatching 测试回显请求的构造与应答匹配
func TestEchoMatching(t *testing.T) {
	req, proto := echoRequest(4, 42)
	if proto != 1 {
		t.Errorf("Expected ICMPv4 protocol number, got %d", proto)
	}
	// 请求本身不是应答
	if matchEcho(proto, req, 42) {
		t.Error("Expected echo request not to match as reply")
	}

	// 把类型改成 echo reply (0) 即可得到对应的应答
	reply := append([]byte(nil), req...)
	reply[0] = 0
	if !matchEcho(proto, reply, 42) {
		t.Error("Expected echo reply with same id and seq to match")
	}
	if matchEcho(proto, reply, 43) {
		t.Error("Expected mismatched seq to be rejected")
	}

	_, proto6 := echoRequest(6, 1)
	if proto6 != 58 {
		t.Errorf("Expected ICMPv6 protocol number, got %d", proto6)
	}
}

// TestCheckPrivileges 测试权限检测功能
func TestCheckPrivileges(t *testing.T) {
	t.Logf("Platform has privileged access: %v", HasPrivilegedAccess())
	osName, priv, impl := GetSystemInfo()
	if osName == "" || priv == "" || impl == "" {
		t.Errorf("Expected complete system info, got %q %q %q", osName, priv, impl)
	}
}

// TestConcurrentAccess 测试并发访问安全性
func TestConcurrentAccess(t *testing.T) {
	bp := newBasePinger([]string{"test"}, DefaultConfig())
	bp.setRunning(true)

	done := make(chan bool, 3)
	go func() {
		for i := 0; i < 50; i++ {
			bp.succeed("test", "", i, time.Now(), time.Millisecond)
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			bp.begin("test")()
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			bp.Inflight("test")
			bp.isRunning()
		}
		done <- true
	}()
	for i := 0; i < 3; i++ {
		<-done
	}

	bp.Stop()
	if got := bp.Inflight("test"); got != 0 {
		t.Errorf("Expected balanced inflight counter, got %d", got)
	}
}

// TestNewConfig 测试选项按顺序覆盖默认值
func TestNewConfig(t *testing.T) {
	c := NewConfig(WithInterval(time.Second), WithBufferSize(10), WithBufferSize(20))
	if c.Interval != time.Second || c.BufferSize != 20 {
		t.Errorf("Expected options applied in order, got %+v", c)
	}
	if c.Timeout != DefaultConfig().Timeout || c.IPVersion != 4 {
		t.Errorf("Expected defaults to be kept, got %+v", c)
	}
}

// TestNewPingerWithOptions 测试选项模式API
func TestNewPingerWithOptions(t *testing.T) {
	p, err := NewPingerWithOptions([]string{"127.0.0.1"},
		WithIPVersion(4),
		WithInterval(500*time.Millisecond),
		WithJitter(0.2),
		WithTimeout(5*time.Second),
		WithBufferSize(200),
	)
	if err != nil {
		t.Logf("Custom options failed (expected on some systems): %v", err)
	} else {
		p.Stop()
	}

	if _, err := NewPingerWithOptions([]string{"127.0.0.1"}, WithIPVersion(3)); err == nil {
		t.Error("Expected error for invalid IP version")
	}
	if _, err := NewPingerWithOptions([]string{"127.0.0.1"}, WithJitter(2)); err == nil {
		t.Error("Expected error for invalid jitter")
	}
	if _, err := NewPingerWithOptions([]string{}); err == nil {
		t.Error("Expected error for empty targets")
	}
}

// BenchmarkEmit 基准测试ping结果发送性能
func BenchmarkEmit(b *testing.B) {
	bp := newBasePinger([]string{"test"}, DefaultConfig())
	bp.setRunning(true)

	go func() {
		for range bp.DataStream() {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bp.succeed("test", "", i, time.Now(), time.Millisecond)
	}
	bp.Stop()
}
