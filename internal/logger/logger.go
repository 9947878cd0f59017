package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar slog.LevelVar
	mu       sync.RWMutex
	out      io.Writer = os.Stdout
	jsonMode bool
	base     *slog.Logger
	trace    *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	base = build()
}

// build 需在持有写锁或 init 中调用。
func build() *slog.Logger {
	w := out
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if jsonMode {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 切换输出目标；nil 回落到 stdout。
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	base = build()
	mu.Unlock()
}

// SetTraceOutput 设置只写日志文件的堆栈输出；nil 表示没有日志文件。
func SetTraceOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		trace = nil
		return
	}
	trace = slog.New(slog.NewTextHandler(w, nil))
}

// Stack 记录恢复的 panic 堆栈。有日志文件时只写文件，否则以 Debug 级别输出，
// 不出现在 stdout 的 info/error 行里。
func Stack(where string, stack []byte) {
	mu.RLock()
	t := trace
	mu.RUnlock()
	if t != nil {
		t.Error("panic stack", "where", where, "stack", string(stack))
		return
	}
	current().Debug("panic stack", "where", where, "stack", string(stack))
}

// SetFormat 选择 text（默认）或 json 行格式。
func SetFormat(format string) {
	mu.Lock()
	jsonMode = strings.EqualFold(strings.TrimSpace(format), "json")
	base = build()
	mu.Unlock()
}

func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Level 返回当前日志级别（用于热加载前后比较）。
func Level() string {
	return strings.ToLower(levelVar.Level().String())
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debugf(format string, v ...any) {
	current().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	current().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	current().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	current().Error(fmt.Sprintf(format, v...))
}

// Event 输出单行结构化日志（逐笔交易、拒单原因、心跳）。
func Event(msg string, kv ...any) {
	current().Info(msg, kv...)
}

// With 返回带固定字段的子 logger。
func With(kv ...any) *slog.Logger {
	return current().With(kv...)
}

// InfoBlock 逐行输出多行文本（启动摘要）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
