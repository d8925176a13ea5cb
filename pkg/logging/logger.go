package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 全局日志对象
var Sugar *zap.SugaredLogger
var Logger *zap.Logger

// InitLogger 初始化日志组件
// mode: "development" 或 "production"
// level: "debug", "info", "warn", "error"
// outputs: 为空时输出到标准错误
func InitLogger(mode string, level string, outputs ...string) error {
	var config zap.Config

	// 生产环境（例如 CI 定时任务）：JSON 格式，便于日志平台采集
	// 开发环境：Console 格式，便于人阅读
	if strings.EqualFold(mode, "production") {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "time"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}

	// 允许通过字符串覆盖默认级别，解析失败则保留模式默认值
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err == nil {
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	}

	if len(outputs) > 0 {
		config.OutputPaths = outputs
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("logging: build %s logger: %w", mode, err)
	}
	Logger = logger
	Sugar = Logger.Sugar()
	return nil
}

// Named 返回带组件名的子日志对象；未初始化时返回 no-op，方便测试直接构造组件
func Named(name string) *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger.Named(name)
}

// CloseLogger 确保程序退出时，所有缓冲区的日志都被写入
func CloseLogger() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
