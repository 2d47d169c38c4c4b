// Package logging 提供全局的结构化日志器
// 默认以JSON格式输出到标准错误，查看端运行时切换为丢弃，避免破坏终端界面
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/json"
)

// Logger 全局日志器，应在启动任何goroutine之前完成配置
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.InfoLevel,
}

// 支持的输出格式
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatDiscard = "discard"
)

// Configure 设置输出格式与级别
func Configure(format, level string) error {
	return ConfigureWriter(os.Stderr, format, level)
}

// ConfigureWriter 与 Configure 相同，但输出到指定的 io.Writer
func ConfigureWriter(w io.Writer, format, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("日志级别 %q: %w", level, err)
	}

	var handler log.Handler
	switch format {
	case FormatJSON, "":
		handler = json.New(w)
	case FormatText:
		handler = cli.New(w)
	case FormatDiscard:
		handler = discard.New()
	default:
		return fmt.Errorf("不支持的日志格式: %s", format)
	}

	Logger.Handler = handler
	Logger.Level = lvl
	return nil
}
