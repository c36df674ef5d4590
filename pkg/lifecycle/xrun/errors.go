package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 表示因收到系统信号而终止，使用 errors.Is 判断。
	ErrSignal = errors.New("xrun: received signal")

	// ErrNilFunc 表示注册的服务函数为 nil。
	ErrNilFunc = errors.New("xrun: nil service func")

	// ErrNilServer 表示 HTTPServer 的 server 参数为 nil。
	ErrNilServer = errors.New("xrun: nil server")

	// ErrInvalidInterval 表示 Ticker 的间隔参数无效（必须为正数）。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 记录触发终止的信号。
//
//	var sigErr *xrun.SignalError
//	if errors.As(err, &sigErr) {
//	    fmt.Println(sigErr.Signal)
//	}
type SignalError struct {
	Signal os.Signal
}

// Error 实现 error 接口。
func (e *SignalError) Error() string {
	return fmt.Sprintf("xrun: received signal %v", e.Signal)
}

// Unwrap 使 errors.Is(err, ErrSignal) 成立。
func (e *SignalError) Unwrap() error {
	return ErrSignal
}
