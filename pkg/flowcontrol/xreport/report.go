// Package xreport 定时输出各资源上一分钟的流量摘要。
package xreport

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// 默认值
const (
	DefaultSpec = "@every 1m"
	DefaultTop  = 10
)

const minuteMs = int64(60_000)

// ErrInvalidTop 输出条数非法
var ErrInvalidTop = errors.New("xreport: top must be positive")

// Source 统计来源
type Source interface {
	Resources() []string
	GetTimeWindowStat(resourceID string, startMs, endMs int64) xflowstat.TimeWindowStat
	Now() int64
}

// Line 一个资源的摘要
type Line struct {
	ResourceID string
	Stat       xflowstat.TimeWindowStat
}

// Reporter 定时摘要
type Reporter struct {
	source Source
	logger xlog.Logger
	spec   string
	top    int
}

// Option 配置 Reporter
type Option func(*Reporter)

// WithSpec 设置 cron 表达式
func WithSpec(spec string) Option {
	return func(r *Reporter) {
		if spec != "" {
			r.spec = spec
		}
	}
}

// WithTop 设置输出的资源数
func WithTop(n int) Option {
	return func(r *Reporter) {
		r.top = n
	}
}

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New 创建 Reporter
func New(source Source, opts ...Option) (*Reporter, error) {
	r := &Reporter{source: source, logger: xlog.Discard(), spec: DefaultSpec, top: DefaultTop}
	for _, opt := range opts {
		opt(r)
	}
	if r.top <= 0 {
		return nil, ErrInvalidTop
	}
	if _, err := cron.ParseStandard(r.spec); err != nil {
		return nil, fmt.Errorf("xreport: parse spec %q: %w", r.spec, err)
	}
	return r, nil
}

// Run 按计划输出摘要，直到 ctx 取消
func (r *Reporter) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() { r.Report(ctx) }); err != nil {
		return fmt.Errorf("xreport: add job: %w", err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Report 输出上一个完整分钟内请求数最多的资源并返回它们
func (r *Reporter) Report(ctx context.Context) []Line {
	end := r.source.Now() / minuteMs * minuteMs
	start := end - minuteMs

	lines := make([]Line, 0)
	for _, id := range r.source.Resources() {
		st := r.source.GetTimeWindowStat(id, start, end)
		if st.Total == 0 && st.Blocked == 0 {
			continue
		}
		lines = append(lines, Line{ResourceID: id, Stat: st})
	}
	slices.SortFunc(lines, func(a, b Line) int {
		if c := cmp.Compare(b.Stat.Total, a.Stat.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.ResourceID, b.ResourceID)
	})
	if len(lines) > r.top {
		lines = lines[:r.top]
	}

	for i, l := range lines {
		r.logger.Info(ctx, "flow report",
			slog.Int("rank", i+1),
			xlog.Resource(l.ResourceID),
			slog.Int64("start", start),
			slog.Int64("total", l.Stat.Total),
			slog.Int64("blocked", l.Stat.Blocked),
			slog.Int64("errors", l.Stat.Errors),
			slog.Float64("avg_rt_ms", l.Stat.AvgRT),
			slog.Int64("peak_concurrency", l.Stat.PeakConcurrency))
	}
	return lines
}
