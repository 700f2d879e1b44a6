package logger // 日志记录器组件，封装zerolog

import (
	"context" // 用于在日志中传递请求范围的数据
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"     // 高性能的zerolog日志库
	"github.com/rs/zerolog/log" // zerolog的全局日志实例
)

var (
	// Logger 默认的全局日志实例，应用中其他地方可以直接使用
	Logger = log.Logger
)

// Config 日志配置结构体，用于定义日志系统的行为
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // 日志级别：debug, info, warn, error等
	Format       string `json:"format" yaml:"format"`               // 日志格式：json（机器可读）或 pretty（人类可读的控制台格式）
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳的格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否在日志中报告调用者的文件名和行号
}

// Init 初始化日志系统，根据传入的配置进行设置
func Init(config Config) {
	// 设置日志级别，解析失败时回退到 Info
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// 设置日志输出格式
	var output io.Writer = os.Stdout
	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: config.TimeFormat,
			NoColor:    false,
		}
	}

	// 设置默认时间格式
	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	// 创建日志记录器实例，每条日志自动带时间戳
	contextLogger := zerolog.New(output).
		Level(level).
		With().
		Timestamp()

	// 是否添加调用者信息（文件:行号）
	if config.ReportCaller {
		contextLogger = contextLogger.Caller()
	}

	// 替换全局日志记录器
	Logger = contextLogger.Logger()
	log.Logger = Logger
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 开始一条致命错误级别的日志事件，记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器（如果存在）
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将全局日志记录器添加到上下文中，并返回一个新的上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
