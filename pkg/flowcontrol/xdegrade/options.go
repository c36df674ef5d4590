package xdegrade

import (
	"math/rand/v2"

	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// StateChangeFunc 状态变更回调，同步调用，应保持轻量
type StateChangeFunc func(resourceID string, from, to State)

type options struct {
	logger        xlog.Logger
	onStateChange StateChangeFunc
	random        func() float64
}

// Option 引擎选项
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger: xlog.Discard(),
		random: rand.Float64,
	}
}

// WithLogger 设置日志器
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnStateChange 设置状态变更回调
func WithOnStateChange(fn StateChangeFunc) Option {
	return func(o *options) {
		o.onStateChange = fn
	}
}

// WithRandom 设置渐进恢复使用的随机源，返回 [0, 1) 的值
func WithRandom(fn func() float64) Option {
	return func(o *options) {
		if fn != nil {
			o.random = fn
		}
	}
}
