package xflowstat

import (
	"math"
	"time"
)

const (
	// Unlimited 表示不限制
	Unlimited int64 = math.MaxInt64

	// DefaultRingSeconds 默认环长度（10 分钟）
	DefaultRingSeconds = 600

	// MinRingSeconds 最小环长度
	MinRingSeconds = 2

	// DefaultShards 默认资源表分片数
	DefaultShards = 32
)

type options struct {
	ringSeconds int
	shards      int
	clock       func() time.Time
}

func defaultOptions() *options {
	return &options{
		ringSeconds: DefaultRingSeconds,
		shards:      DefaultShards,
		clock:       time.Now,
	}
}

// Option 配置选项
type Option func(*options)

// WithRingSeconds 设置环长度（秒），决定统计可回溯的最长时间
func WithRingSeconds(n int) Option {
	return func(o *options) {
		o.ringSeconds = n
	}
}

// WithShards 设置资源表分片数，向上取整为 2 的幂
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithClock 设置 AdmitNow/CompleteNow 使用的时钟，主要用于测试
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
