//go:build linux

package pinger

import (
	"net"
	"os"

	"github.com/m-lab/go/warnonerror"
)

// linuxCapability Linux平台能力实现
type linuxCapability struct{}

// hasPrivilegedAccess 检查root或CAP_NET_RAW
func (linuxCapability) hasPrivilegedAccess() bool {
	if os.Geteuid() == 0 {
		return true
	}
	// 能否打开原始套接字即可说明是否有CAP_NET_RAW
	conn, err := net.Dial("ip4:icmp", "127.0.0.1")
	if err != nil {
		return false
	}
	warnonerror.Close(conn, "关闭权限探测套接字失败")
	return true
}

func (linuxCapability) createPrivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return newPrivilegedPinger(targets, config)
}

func (linuxCapability) createUnprivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return newDgramPinger(targets, config)
}

func getPlatformCapability() platformCapability {
	return linuxCapability{}
}
