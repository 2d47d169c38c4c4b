// Package pinger - 特权模式实现
// 使用原始套接字，需要管理员/root权限，但支持所有操作系统
package pinger

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/m-lab/go/warnonerror"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// errEchoMismatch 在超时前没有收到匹配的回复
var errEchoMismatch = errors.New("未收到匹配的回显应答")

// privilegedPinger 特权模式的ping实现
type privilegedPinger struct {
	*basePinger
}

func newPrivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return &privilegedPinger{basePinger: newBasePinger(targets, config)}, nil
}

// Start 实现core.DataSource接口
func (p *privilegedPinger) Start() {
	p.startTargets(p.pingTarget)
}

// pingTarget 对单个目标进行ping操作，每个目标独占一个已连接的原始套接字
func (p *privilegedPinger) pingTarget(target string) {
	dst, err := net.ResolveIPAddr(p.config.GetIPProtocol(), target)
	if err != nil {
		// 地址已在NewPinger中预验证，此处失败属于临时网络问题
		p.fail(target, "", 0, time.Now(), err)
		return
	}

	network := "ip4:icmp"
	if p.config.IPVersion == 6 {
		network = "ip6:ipv6-icmp"
	}
	conn, err := net.Dial(network, dst.String())
	if err != nil {
		p.fail(target, dst.String(), 0, time.Now(), err)
		return
	}
	defer warnonerror.Close(conn, "关闭ICMP套接字失败")

	p.tick(target, func(seq int) {
		p.sendPing(conn, target, dst.String(), seq)
	})
}

// echoRequest 构造回显请求
func echoRequest(ipVersion, seq int) ([]byte, int) {
	var typ icmp.Type = ipv4.ICMPTypeEcho
	proto := 1
	if ipVersion == 6 {
		typ = ipv6.ICMPTypeEchoRequest
		proto = 58
	}
	msg := &icmp.Message{
		Type: typ,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: payload,
		},
	}
	data, _ := msg.Marshal(nil)
	return data, proto
}

// matchEcho 判断数据是否为本进程指定序号的回显应答
func matchEcho(proto int, data []byte, seq int) bool {
	msg, err := icmp.ParseMessage(proto, data)
	if err != nil {
		return false
	}
	if msg.Type != ipv4.ICMPTypeEchoReply && msg.Type != ipv6.ICMPTypeEchoReply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	return ok && echo.ID == os.Getpid()&0xffff && echo.Seq == seq
}

// sendPing 发送单个ping包并等待对应的应答
func (p *privilegedPinger) sendPing(conn net.Conn, target, address string, seq int) {
	done := p.begin(target)
	defer done()

	data, proto := echoRequest(p.config.IPVersion, seq)
	sendTime := time.Now()
	if err := conn.SetDeadline(sendTime.Add(p.config.Timeout)); err != nil {
		p.fail(target, address, seq, sendTime, err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		p.fail(target, address, seq, sendTime, err)
		return
	}

	reply := make([]byte, 1500)
	for {
		n, err := conn.Read(reply)
		if err != nil {
			// 超时
			p.fail(target, address, seq, sendTime, nil)
			return
		}
		if matchEcho(proto, reply[:n], seq) {
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
