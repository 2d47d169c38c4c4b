//go:build windows

// Package pinger - Windows非特权模式实现
// 使用Icmp.dll系统调用，适用于Windows系统
package pinger

import (
	"errors"
	"net"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	icmpDLL = windows.NewLazyDLL("Icmp.dll")

	icmpCreateFile  = icmpDLL.NewProc("IcmpCreateFile")
	icmpCloseHandle = icmpDLL.NewProc("IcmpCloseHandle")
	icmpSendEcho    = icmpDLL.NewProc("IcmpSendEcho")
)

// ICMP_ECHO_REPLY Windows ICMP回复结构体
type ICMP_ECHO_REPLY struct {
	Address       uint32
	Status        uint32
	RoundTripTime uint32
	DataSize      uint16
	Reserved      uint16
	Data          uintptr
	Options       ICMP_OPTIONS
}

// ICMP_OPTIONS Windows ICMP选项结构体
type ICMP_OPTIONS struct {
	Ttl         uint8
	Tos         uint8
	Flags       uint8
	OptionsSize uint8
	OptionsData uintptr
}

// windowsPinger Windows非特权模式的ping实现
type windowsPinger struct {
	*basePinger
	icmpHandle syscall.Handle // ICMP句柄，IcmpSendEcho可以并发调用
}

func newWindowsPinger(targets []string, config *Config) (Pinger, error) {
	if config.IPVersion == 6 {
		return nil, errors.New("Windows ICMP API模式仅支持IPv4")
	}
	ret, _, err := icmpCreateFile.Call()
	if ret == 0 || ret == uintptr(syscall.InvalidHandle) {
		return nil, err
	}
	return &windowsPinger{
		basePinger: newBasePinger(targets, config),
		icmpHandle: syscall.Handle(ret),
	}, nil
}

// Start 实现core.DataSource接口
func (p *windowsPinger) Start() {
	p.startTargets(p.pingTarget)
}

func (p *windowsPinger) pingTarget(target string) {
	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		p.fail(target, "", 0, time.Now(), err)
		return
	}
	// 网络字节序
	ip := dst.IP.To4()
	destAddr := uint32(ip[0]) | uint32(ip[1])<<8 | uint32(ip[2])<<16 | uint32(ip[3])<<24

	p.tick(target, func(seq int) {
		p.sendPing(destAddr, target, dst.String(), seq)
	})
}

// sendPing 通过IcmpSendEcho发送单个ping包，序号由系统分配
func (p *windowsPinger) sendPing(destAddr uint32, target, address string, seq int) {
	done := p.begin(target)
	defer done()

	replySize := unsafe.Sizeof(ICMP_ECHO_REPLY{}) + uintptr(len(payload)) + 8
	replyBuffer := make([]byte, replySize)
	timeoutMs := uint32(p.config.Timeout.Milliseconds())

	sendTime := time.Now()
	ret, _, _ := icmpSendEcho.Call(
		uintptr(p.icmpHandle),
		uintptr(destAddr),
		uintptr(unsafe.Pointer(&payload[0])),
		uintptr(len(payload)),
		0,
		uintptr(unsafe.Pointer(&replyBuffer[0])),
		uintptr(len(replyBuffer)),
		uintptr(timeoutMs),
	)
	receiveTime := time.Now()

	if ret == 0 {
		p.fail(target, address, seq, sendTime, nil)
		return
	}

	reply := (*ICMP_ECHO_REPLY)(unsafe.Pointer(&replyBuffer[0]))
	if reply.Status != 0 { // IP_SUCCESS
		p.fail(target, address, seq, sendTime, nil)
		return
	}
	rtt := receiveTime.Sub(sendTime)
	if reply.RoundTripTime > 0 {
		rtt = time.Duration(reply.RoundTripTime) * time.Millisecond
	}
	done()
	p.succeed(target, address, seq, sendTime, rtt)
}

// Stop 停止pinger并关闭ICMP句柄
func (p *windowsPinger) Stop() {
	p.basePinger.Stop()
	if p.icmpHandle != syscall.InvalidHandle {
		icmpCloseHandle.Call(uintptr(p.icmpHandle))
		p.icmpHandle = syscall.InvalidHandle
	}
}

// checkWindowsAdmin 检查是否具有Windows管理员权限
func checkWindowsAdmin() bool {
	var sid *windows.SID

	// 获取管理员组的SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	// 获取当前进程的token
	token := windows.Token(0)

	// 检查是否是管理员组成员
	isMember, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return isMember
}
