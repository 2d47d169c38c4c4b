//go:build linux

// Package pinger - Linux非特权模式实现
// 使用SOCK_DGRAM类型的ICMP套接字，需要net.ipv4.ping_group_range允许当前用户
package pinger

import (
	"net"
	"time"

	"github.com/Kevin-Rudy/zzping/pkg/logging"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// dgramPinger Linux非特权模式的ping实现
type dgramPinger struct {
	*basePinger
}

func newDgramPinger(targets []string, config *Config) (Pinger, error) {
	// 先试开一次套接字，尽早报告系统不允许的情况
	fd, err := openDgram(config)
	if err != nil {
		return nil, err
	}
	unix.Close(fd)
	return &dgramPinger{basePinger: newBasePinger(targets, config)}, nil
}

// openDgram 打开一个设置了接收超时的DGRAM ICMP套接字
func openDgram(config *Config) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_ICMP)
	if err != nil {
		return -1, err
	}
	tv := unix.NsecToTimeval(config.Timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Start 实现core.DataSource接口
func (p *dgramPinger) Start() {
	p.startTargets(p.pingTarget)
}

// pingTarget 每个目标独占一个套接字，避免多个goroutine争抢同一个接收队列
func (p *dgramPinger) pingTarget(target string) {
	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		p.fail(target, "", 0, time.Now(), err)
		return
	}
	fd, err := openDgram(p.config)
	if err != nil {
		p.fail(target, dst.String(), 0, time.Now(), err)
		return
	}
	defer func() {
		if err := unix.Close(fd); err != nil {
			logging.Logger.WithError(err).Warn("关闭DGRAM套接字失败")
		}
	}()

	sa := &unix.SockaddrInet4{}
	copy(sa.Addr[:], dst.IP.To4())

	p.tick(target, func(seq int) {
		p.sendPing(fd, sa, target, dst.String(), seq)
	})
}

// sendPing 发送单个ping包并等待回复
// DGRAM套接字的回显ID由内核改写，因此只比对来源地址和序号
func (p *dgramPinger) sendPing(fd int, sa *unix.SockaddrInet4, target, address string, seq int) {
	done := p.begin(target)
	defer done()

	data, _ := echoRequest(4, seq)
	sendTime := time.Now()
	if err := unix.Sendto(fd, data, 0, sa); err != nil {
		p.fail(target, address, seq, sendTime, err)
		return
	}

	reply := make([]byte, 1500)
	for {
		n, from, err := unix.Recvfrom(fd, reply, 0)
		if err != nil {
			p.fail(target, address, seq, sendTime, nil)
			return
		}
		if fromAddr, ok := from.(*unix.SockaddrInet4); ok && fromAddr.Addr != sa.Addr {
			continue
		}
		if dgramReplySeq(reply[:n]) == seq {
			rtt := time.Since(sendTime)
			done()
			p.succeed(target, address, seq, sendTime, rtt)
			return
		}
		if time.Since(sendTime) >= p.config.Timeout {
			p.fail(target, address, seq, sendTime, errEchoMismatch)
			return
		}
	}
}

// dgramReplySeq 解析回显应答的序号，不是应答时返回-1
func dgramReplySeq(data []byte) int {
	msg, err := icmp.ParseMessage(1, data)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return -1
	}
	if echo, ok := msg.Body.(*icmp.Echo); ok {
		return echo.Seq
	}
	return -1
}
