// Package logging 统一日志入口
//
// slog 文本处理器的轻量封装, 支持运行时切换调试级别。
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger    *slog.Logger
	loggerMu  sync.RWMutex
	debugMode bool
	output    io.Writer = os.Stdout
)

func init() {
	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetDebugMode 设置调试模式
func SetDebugMode(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	debugMode = enabled

	level := slog.LevelInfo
	if enabled {
		level = slog.LevelDebug
	}

	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level,
	}))
}

// IsDebugMode 是否调试模式
func IsDebugMode() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return debugMode
}

func get() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Debug 调试日志
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info 信息日志
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn 警告日志
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error 错误日志
func Error(msg string, args ...any) { get().Error(msg, args...) }
