package transport

import (
	"errors"
	"math"
	"net"
	"sync"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/core"
	"github.com/Kevin-Rudy/zzping/pkg/framestats"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/apex/log"
)

// maxDatagram 单个FrameStats报文的上限，远大于实际编码长度
const maxDatagram = 1500

// Receiver 监听UDP上的FrameStats，作为查看端的core.DataSource
type Receiver struct {
	conn     net.PacketConn
	dataChan chan core.PingResult
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	now      func() time.Time
}

// Listen 在指定地址上监听FrameStats报文
func Listen(addr string, bufferSize int) (*Receiver, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Receiver{
		conn:     conn,
		dataChan: make(chan core.PingResult, bufferSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Addr 返回实际监听的地址
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// DataStream 实现core.DataSource接口
func (r *Receiver) DataStream() <-chan core.PingResult {
	return r.dataChan
}

// Start 实现core.DataSource接口
func (r *Receiver) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Receiver) loop() {
	defer r.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logging.Logger.WithError(err).Warn("读取UDP报文失败")
			}
			return
		}
		stats, err := framestats.Unmarshal(buf[:n])
		if err != nil {
			logging.Logger.WithError(err).WithFields(log.Fields{
				"from": from.String(),
				"size": n,
			}).Warn("丢弃无法解析的FrameStats")
			continue
		}
		select {
		case r.dataChan <- ToResult(stats, r.now()):
		case <-r.done:
			return
		}
	}
}

// Stop 实现core.DataSource接口，关闭后DataStream通道被关闭
func (r *Receiver) Stop() {
	r.once.Do(func() {
		close(r.done)
		if err := r.conn.Close(); err != nil {
			logging.Logger.WithError(err).Warn("关闭UDP监听失败")
		}
		r.wg.Wait()
		close(r.dataChan)
	})
}

// ToResult 把一个FrameStats汇报转换为查看端的结果
// 统计窗口内没有收到任何回复时记为超时
func ToResult(s framestats.Stats, received time.Time) core.PingResult {
	latency := math.NaN()
	if s.Replied() {
		latency = float64(s.AvgUs) / 1000
	}
	return core.PingResult{
		Identifier:  s.Addr,
		Address:     s.Addr,
		Latency:     latency,
		SendTime:    received,
		ReceiveTime: received,
		Report: &core.Report{
			Inflight:    float64(s.Inflight),
			LossPercent: s.LossPercent(),
		},
	}
}
