// Package transport 在守护进程与查看端之间通过UDP传输FrameStats
// 每个报文是一个独立编码的FrameStats，不保证送达
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/Kevin-Rudy/zzping/pkg/framestats"
	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"github.com/Kevin-Rudy/zzping/pkg/metrics"
	"github.com/m-lab/go/warnonerror"
)

// DefaultQueueSize 发送队列的默认长度
const DefaultQueueSize = 64

// Sender 异步发送FrameStats，调用方永远不会因网络而阻塞
type Sender struct {
	conn  net.Conn
	queue chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender 从本地地址 local (可为空) 连接到查看端地址 remote 并启动发送goroutine
func NewSender(local, remote string, queueSize int) (*Sender, error) {
	var dialer net.Dialer
	if local != "" {
		laddr, err := net.ResolveUDPAddr("udp", local)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = laddr
	}
	conn, err := dialer.Dial("udp", remote)
	if err != nil {
		return nil, err
	}
	s := newSender(conn, queueSize)
	s.start()
	return s, nil
}

func newSender(conn net.Conn, queueSize int) *Sender {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		conn:   conn,
		queue:  make(chan []byte, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Sender) start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Sender) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case buf := <-s.queue:
			if _, err := s.conn.Write(buf); err != nil {
				// 查看端没有运行时会收到ECONNREFUSED
				logging.Logger.WithError(err).Debug("发送FrameStats失败")
				metrics.StatsDropped.WithLabelValues("write_error").Inc()
				continue
			}
			metrics.StatsSent.Inc()
		}
	}
}

// Send 编码并排队一个统计报文，队列满时丢弃并返回false
func (s *Sender) Send(stats framestats.Stats) bool {
	buf, err := stats.Marshal()
	if err != nil {
		logging.Logger.WithError(err).Warn("无法编码FrameStats")
		metrics.StatsDropped.WithLabelValues("encode_error").Inc()
		return false
	}
	select {
	case s.queue <- buf:
		return true
	default:
		metrics.StatsDropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

// Close 停止发送goroutine并关闭连接，队列中未发送的报文被丢弃
func (s *Sender) Close() {
	s.cancel()
	s.wg.Wait()
	warnonerror.Close(s.conn, "关闭UDP连接失败")
}
