package main

import (
	"fmt"

	"github.com/Kevin-Rudy/zzping/pkg/pinger"
)

// 程序信息常量
const (
	AppName    = "zzping"
	AppVersion = "0.2.0"
	AppDesc    = "多目标延迟与丢包监测：采集守护进程、终端查看端与遥测帧工具"
)

// showSystemInfo 显示系统环境信息
func showSystemInfo() {
	osName, privilege, impl := pinger.GetSystemInfo()
	fmt.Println("\n系统信息:")
	fmt.Printf("  操作系统: %s\n", osName)
	fmt.Printf("  权限状态: %s\n", privilege)
	fmt.Printf("  实现方式: %s\n", impl)
}

// printUsageInstructions 显示查看端操作说明
func printUsageInstructions() {
	fmt.Println("操作说明:")
	fmt.Println("  ↑/↓ 方向键  - 导航选择目标")
	fmt.Println("  在边界继续按方向键或按 a - 切换到全选模式")
	fmt.Println("  q 或 Ctrl+C - 退出程序")
	fmt.Println("========================================")
}
