package xrulesync

import (
	"time"

	"github.com/omeyang/xflow/pkg/config/xconf"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// ApplyFunc 事件应用后的回调
type ApplyFunc func(ev Event, res Result)

type options struct {
	logger  xlog.Logger
	onApply ApplyFunc
}

// Option 配置 Syncer
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnApply 设置事件应用后的回调
func WithOnApply(fn ApplyFunc) Option {
	return func(o *options) {
		o.onApply = fn
	}
}

// ==========================================================================
// 来源选项
// ==========================================================================

// 默认值
const (
	DefaultKeyPrefix      = "xflow:"
	DefaultLoadAttempts   = 3
	DefaultLoadDelay      = 200 * time.Millisecond
	DefaultResyncInterval = time.Minute
)

type sourceOptions struct {
	logger         xlog.Logger
	keyPrefix      string
	attempts       uint
	delay          time.Duration
	resyncInterval time.Duration
	watchOpts      []xconf.WatchOption
}

func defaultSourceOptions() *sourceOptions {
	return &sourceOptions{
		logger:         xlog.Discard(),
		keyPrefix:      DefaultKeyPrefix,
		attempts:       DefaultLoadAttempts,
		delay:          DefaultLoadDelay,
		resyncInterval: DefaultResyncInterval,
	}
}

// SourceOption 配置来源
type SourceOption func(*sourceOptions)

// WithSourceLogger 设置来源的日志记录器
func WithSourceLogger(l xlog.Logger) SourceOption {
	return func(o *sourceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeyPrefix 设置 Redis 键前缀
func WithKeyPrefix(prefix string) SourceOption {
	return func(o *sourceOptions) {
		o.keyPrefix = prefix
	}
}

// WithLoadRetry 设置 Redis 加载的重试次数与间隔
func WithLoadRetry(attempts uint, delay time.Duration) SourceOption {
	return func(o *sourceOptions) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if delay >= 0 {
			o.delay = delay
		}
	}
}

// WithResyncInterval 设置 Redis 全量重新同步的间隔，<= 0 表示只在启动和收到通知时加载
func WithResyncInterval(d time.Duration) SourceOption {
	return func(o *sourceOptions) {
		o.resyncInterval = d
	}
}

// WithWatchOptions 设置规则文件监视选项
func WithWatchOptions(opts ...xconf.WatchOption) SourceOption {
	return func(o *sourceOptions) {
		o.watchOpts = append(o.watchOpts, opts...)
	}
}
