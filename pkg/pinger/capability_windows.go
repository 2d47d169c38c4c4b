//go:build windows

package pinger

// windowsCapability Windows平台能力实现
type windowsCapability struct{}

func (windowsCapability) hasPrivilegedAccess() bool {
	return checkWindowsAdmin()
}

func (windowsCapability) createPrivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return newPrivilegedPinger(targets, config)
}

// createUnprivilegedPinger 使用Icmp.dll
func (windowsCapability) createUnprivilegedPinger(targets []string, config *Config) (Pinger, error) {
	return newWindowsPinger(targets, config)
}

func getPlatformCapability() platformCapability {
	return windowsCapability{}
}
