//go:build darwin

package pinger

import (
	"errors"
	"os"
)

// darwinCapability macOS平台能力实现
type darwinCapability struct{}

func (darwinCapability) hasPrivilegedAccess() bool {
	return os.Geteuid() == 0
}

func (darwinCapability) createPrivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return newPrivilegedPinger(targets, config)
}

// createUnprivilegedPinger macOS非特权模式直接报错要求sudo
func (darwinCapability) createUnprivilegedPinger([]string, *Config) (Pinger, error) {
	return nil, errors.New("macOS需要root权限才能进行ping操作，请使用sudo运行")
}

func getPlatformCapability() platformCapability {
	return darwinCapability{}
}
