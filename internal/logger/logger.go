// 包 logger：统一初始化与获取日志器，各运维工具共用，避免逐个 main 重复配置
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// 默认日志器：进程级复用；本仓全部为一次性批处理工具，不存在并发初始化竞争
var defaultLogger *slog.Logger

// Setup：初始化默认日志器
// 背景：级别与格式用环境变量控制，运维排障时无需改代码即可切 debug/json
// 约束：输出固定到标准错误；标准输出留给各工具的行数表与完成横幅
func Setup() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

// L：获取默认日志器，未初始化时回退到 Setup
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
