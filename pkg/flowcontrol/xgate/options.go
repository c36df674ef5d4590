package xgate

import (
	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

type options struct {
	degrade *xdegrade.Engine
	logger  xlog.Logger
	metrics *Metrics
}

// Option 配置 Guard
type Option func(*options)

func defaultOptions() *options {
	return &options{logger: xlog.Discard()}
}

// WithDegrade 启用熔断判定
func WithDegrade(e *xdegrade.Engine) Option {
	return func(o *options) {
		o.degrade = e
	}
}

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics 设置指标收集器，nil 表示不收集
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
