// Package pinger - 平台能力接口定义
package pinger

// platformCapability 每个平台提供权限检测和pinger创建
type platformCapability interface {
	// hasPrivilegedAccess 检查是否可以打开原始ICMP套接字
	hasPrivilegedAccess() bool

	// createPrivilegedPinger 所有平台统一使用raw socket实现
	createPrivilegedPinger(targets []string, config *Config) (Pinger, error)

	// createUnprivilegedPinger Windows使用Icmp.dll，Linux使用DGRAM socket，macOS返回错误
	createUnprivilegedPinger(targets []string, config *Config) (Pinger, error)
}
