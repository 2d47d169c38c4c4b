package metrics

import (
	"testing"

	"github.com/m-lab/go/prometheusx/promtest"
)

func TestMetrics(t *testing.T) {
	PingResults.WithLabelValues("ok")
	FramesWritten.WithLabelValues("framedata")
	StatsDropped.WithLabelValues("queue_full")
	promtest.LintMetrics(t)
}
