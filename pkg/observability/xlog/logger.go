package xlog

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var _ Logger = (*xlogger)(nil)

const (
	// initialStackSize 初始堆栈缓冲区大小
	initialStackSize = 4096
	// maxStackSize 最大堆栈缓冲区大小（64KB）
	maxStackSize = 64 * 1024
)

// stackPool 堆栈缓冲区池
var stackPool = sync.Pool{
	New: func() any {
		buf := make([]byte, initialStackSize)
		return &buf
	},
}

// xlogger Logger 接口的实现
type xlogger struct {
	handler   slog.Handler
	onError   func(error)
	addSource bool
	inOnError *atomic.Bool // 防止 onError 递归，派生 logger 共享
}

// derive 基于新 handler 派生 logger，共享错误状态
func (l *xlogger) derive(h slog.Handler) *xlogger {
	return &xlogger{
		handler:   h,
		onError:   l.onError,
		addSource: l.addSource,
		inOnError: l.inOnError,
	}
}

// log 写入一条记录
//
// skip=3: runtime.Callers -> log -> Debug/Info/... -> 业务代码
//
//go:noinline
func (l *xlogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr, extra ...slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	if l.addSource {
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	r.AddAttrs(extra...)

	if err := l.handler.Handle(ctx, r); err != nil {
		l.handleError(err)
	}
}

// handleError 处理 Handler.Handle 失败
//
// onError 回调为 best-effort 通知，回调内再次出错不会递归，回调 panic 被吞掉。
func (l *xlogger) handleError(err error) {
	if l.onError == nil || !l.inOnError.CompareAndSwap(false, true) {
		return
	}
	defer l.inOnError.Store(false)
	defer func() { _ = recover() }()
	l.onError(err)
}

// Debug 记录 Debug 级别日志
func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

// Info 记录 Info 级别日志
func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

// Warn 记录 Warn 级别日志
func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

// Error 记录 Error 级别日志
func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

// Stack 记录带完整堆栈的错误日志
//
//go:noinline
func (l *xlogger) Stack(ctx context.Context, msg string, attrs ...slog.Attr) {
	if !l.handler.Enabled(ctx, slog.LevelError) {
		return
	}
	l.log(ctx, slog.LevelError, msg, attrs, slog.String(KeyStack, captureStack()))
}

// captureStack 获取当前 goroutine 堆栈，缓冲区不足时翻倍直至 maxStackSize
func captureStack() string {
	bufp, ok := stackPool.Get().(*[]byte)
	if !ok {
		buf := make([]byte, initialStackSize)
		bufp = &buf
	}
	buf := *bufp
	n := runtime.Stack(buf, false)
	for n == len(buf) && len(buf) < maxStackSize {
		buf = make([]byte, min(len(buf)*2, maxStackSize))
		n = runtime.Stack(buf, false)
	}
	// 必须在 Put 前完成拷贝，否则缓冲区会被其他 goroutine 覆盖
	s := string(buf[:n])
	stackPool.Put(bufp)
	return s
}

// With 返回带额外属性的派生 Logger
func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return l.derive(l.handler.WithAttrs(attrs))
}

// WithGroup 返回带分组的派生 Logger
func (l *xlogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	return l.derive(l.handler.WithGroup(name))
}

// Discard 返回丢弃所有输出的 Logger
//
// 各组件未注入 logger 时使用，保证调用处无需判空。
func Discard() Logger {
	return discardLogger
}

var discardLogger = newLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
	Level: slog.Level(100),
}), false, nil)

// newLogger 构造根 logger
func newLogger(h slog.Handler, addSource bool, onError func(error)) *xlogger {
	return &xlogger{
		handler:   h,
		onError:   onError,
		addSource: addSource,
		inOnError: new(atomic.Bool),
	}
}
