package replay

import (
	"math"
	"testing"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/framedataq"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

func frame(i int, recv int, lost float64) framedataq.Frame {
	p := int64(1000 * (i + 1))
	return framedataq.Frame{
		Time:        base.Add(time.Duration(i) * time.Second),
		Inflight:    2,
		Lost:        lost,
		RecvLen:     recv,
		Percentiles: framedataq.Percentiles{p / 2, p, p, p, p, p, 2 * p},
	}
}

func TestFrameResult(t *testing.T) {
	r := FrameResult("h", frame(1, 3, 1))
	if r.Identifier != "h" || r.Latency != 2 {
		t.Errorf("Expected median latency 2ms, got %v", r)
	}
	if r.Report == nil || r.Report.LossPercent != 25 || r.Report.Inflight != 2 || r.Report.Samples != 3 {
		t.Errorf("Unexpected report %+v", r.Report)
	}
	if r.Report.BandLow != 2 || r.Report.BandHigh != 2 {
		t.Errorf("Expected band 2..2, got %v..%v", r.Report.BandLow, r.Report.BandHigh)
	}

	empty := FrameResult("h", framedataq.Frame{Time: base, Lost: 4})
	if !math.IsNaN(empty.Latency) || empty.Report.LossPercent != 100 {
		t.Errorf("Expected NaN latency and full loss, got %v %+v", empty.Latency, empty.Report)
	}
	if empty.Report.BandHigh > empty.Report.BandLow {
		t.Errorf("Expected no band without samples, got %+v", empty.Report)
	}

	spread := frame(0, 8, 0)
	spread.Percentiles = framedataq.Percentiles{1000, 4000, 5000, 6000, 7000, 9000, 20000}
	if r := FrameResult("h", spread); r.Report.BandLow != 4 || r.Report.BandHigh != 9 || r.Latency != 6 {
		t.Errorf("Expected band 4..9 around 6, got %v..%v %v", r.Report.BandLow, r.Report.BandHigh, r.Latency)
	}
}

func TestSourceReplaysAll(t *testing.T) {
	s := New(
		Series{Host: "a", Frames: []framedataq.Frame{frame(0, 1, 0), frame(1, 1, 0)}},
		Series{Host: "b", Frames: []framedataq.Frame{frame(0, 1, 0)}},
	)
	s.Start()
	defer s.Stop()

	var hosts []string
	for r := range s.DataStream() {
		hosts = append(hosts, r.Identifier)
	}
	if len(hosts) != 3 || hosts[0] != "a" || hosts[2] != "b" {
		t.Errorf("Expected a a b, got %v", hosts)
	}
}

func TestSourceStop(t *testing.T) {
	frames := make([]framedataq.Frame, 1000)
	for i := range frames {
		frames[i] = frame(i, 1, 0)
	}
	s := New(Series{Host: "a", Frames: frames})
	s.Start()
	<-s.DataStream()
	s.Stop()
	s.Stop()

	// 未启动的数据源停止后通道同样关闭
	idle := New()
	idle.Stop()
	if _, ok := <-idle.DataStream(); ok {
		t.Error("Expected closed channel")
	}
}

func TestSpan(t *testing.T) {
	start, end, ok := Span([]Series{
		{Host: "a", Frames: []framedataq.Frame{frame(2, 1, 0), frame(5, 1, 0)}},
		{Host: "b"},
		{Host: "c", Frames: []framedataq.Frame{frame(1, 1, 0), frame(3, 1, 0)}},
	})
	if !ok || !start.Equal(base.Add(time.Second)) || !end.Equal(base.Add(5*time.Second)) {
		t.Errorf("Unexpected span %v %v %v", start, end, ok)
	}
	if _, _, ok := Span(nil); ok {
		t.Error("Expected no span for empty input")
	}
}
