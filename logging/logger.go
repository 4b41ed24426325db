package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// F 构造一个日志字段
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger 容器内部使用的分类日志接口
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// ConsoleOptions 控制台日志选项
type ConsoleOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
	MinimumLevel     LogLevel
}

// NewConsole 创建控制台 Logger
func NewConsole(opts ConsoleOptions) Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = "2006-01-02 15:04:05"
	}
	return &consoleLogger{options: opts, lock: &sync.Mutex{}}
}

// NewLogger 创建默认的控制台 Logger（便于测试使用）
func NewLogger() Logger {
	return NewConsole(ConsoleOptions{
		IncludeTimestamp: true,
		ColorOutput:      true,
		MinimumLevel:     LogLevelInfo,
	})
}

// NewNop 创建丢弃一切输出的 Logger
func NewNop() Logger {
	return nopLogger{}
}

// consoleLogger 控制台日志实现
type consoleLogger struct {
	category string
	options  ConsoleOptions
	fields   []Field
	lock     *sync.Mutex
}

func (l *consoleLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *consoleLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *consoleLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *consoleLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *consoleLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *consoleLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.options.MinimumLevel {
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	var output string

	if l.options.IncludeTimestamp {
		output += time.Now().Format(l.options.TimestampFormat) + " "
	}

	if l.options.ColorOutput {
		output += colorize(level, level.String())
	} else {
		output += level.String()
	}

	if l.category != "" {
		output += fmt.Sprintf(" [%s]", l.category)
	}

	output += " " + msg

	allFields := append(append([]Field(nil), l.fields...), fields...)
	if len(allFields) > 0 {
		output += " {"
		for i, field := range allFields {
			if i > 0 {
				output += ", "
			}
			output += fmt.Sprintf("%s=%v", field.Key, field.Value)
		}
		output += "}"
	}

	fmt.Fprintln(l.options.Output, output)
}

func (l *consoleLogger) WithFields(fields ...Field) Logger {
	return &consoleLogger{
		category: l.category,
		options:  l.options,
		fields:   append(append([]Field(nil), l.fields...), fields...),
		lock:     l.lock,
	}
}

func (l *consoleLogger) WithCategory(category string) Logger {
	return &consoleLogger{
		category: category,
		options:  l.options,
		fields:   l.fields,
		lock:     l.lock,
	}
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const (
		reset  = "\033[0m"
		gray   = "\033[90m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		red    = "\033[31m"
	)

	switch level {
	case LogLevelTrace:
		return gray + text + reset
	case LogLevelDebug:
		return cyan + text + reset
	case LogLevelInfo:
		return green + text + reset
	case LogLevelWarn:
		return yellow + text + reset
	case LogLevelError:
		return red + text + reset
	default:
		return text
	}
}

// nopLogger 空实现
type nopLogger struct{}

func (nopLogger) Trace(string, ...Field)         {}
func (nopLogger) Debug(string, ...Field)         {}
func (nopLogger) Info(string, ...Field)          {}
func (nopLogger) Warn(string, ...Field)          {}
func (nopLogger) Error(string, ...Field)         {}
func (nopLogger) Log(LogLevel, string, ...Field) {}
func (n nopLogger) WithFields(...Field) Logger   { return n }
func (n nopLogger) WithCategory(string) Logger   { return n }
