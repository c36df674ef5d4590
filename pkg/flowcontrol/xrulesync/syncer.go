package xrulesync

import (
	"context"
	"log/slog"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// Source 产生配置变更事件的来源
//
// Run 阻塞直到 ctx 取消，期间把事件写入 out。
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// Syncer 把事件应用到存储
type Syncer struct {
	limits *xresource.Store
	rules  *xdegrade.RuleStore
	opts   *options
}

// NewSyncer 创建 Syncer
func NewSyncer(limits *xresource.Store, rules *xdegrade.RuleStore, opts ...Option) (*Syncer, error) {
	if limits == nil || rules == nil {
		return nil, ErrNilStore
	}
	o := &options{logger: xlog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return &Syncer{limits: limits, rules: rules, opts: o}, nil
}

// Run 依次应用事件，ctx 取消或 events 关闭时返回
func (s *Syncer) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Apply(ctx, ev)
		}
	}
}

// Apply 应用单个事件
func (s *Syncer) Apply(ctx context.Context, ev Event) Result {
	var res Result
	if ev.Target.rateLimits() {
		res = merge(res, s.applyRateLimits(ctx, ev))
	}
	if ev.Target.degradeRules() {
		res = merge(res, s.applyDegradeRules(ctx, ev))
	}

	s.opts.logger.Info(ctx, "rule event applied",
		slog.String("event_id", ev.ID),
		slog.String("kind", ev.Kind.String()),
		slog.String("source", ev.Source),
		slog.Int("applied", res.Applied),
		slog.Int("skipped", res.Skipped),
		slog.Int("deleted", res.Deleted))
	if s.opts.onApply != nil {
		s.opts.onApply(ev, res)
	}
	return res
}

func (s *Syncer) applyRateLimits(ctx context.Context, ev Event) Result {
	var res Result
	switch ev.Kind {
	case KindSnapshot:
		valid := make([]xresource.RateLimitConfig, 0, len(ev.RateLimits))
		for _, c := range ev.RateLimits {
			if c.Deleted {
				res.Deleted++
				continue
			}
			if err := c.Validate(); err != nil {
				s.skip(ctx, ev, xlog.Rule(c.ID), err)
				res.Skipped++
				continue
			}
			valid = append(valid, c)
		}
		if err := s.limits.Replace(valid); err != nil {
			s.skip(ctx, ev, slog.Int("entries", len(valid)), err)
			res.Skipped += len(valid)
			return res
		}
		res.Applied += len(valid)
	case KindUpsert:
		for _, c := range ev.RateLimits {
			if c.Deleted {
				if s.limits.Delete(c.ResourceKey()) {
					res.Deleted++
				}
				continue
			}
			if err := s.limits.Upsert(c); err != nil {
				s.skip(ctx, ev, xlog.Rule(c.ID), err)
				res.Skipped++
				continue
			}
			res.Applied++
		}
	case KindDelete:
		for _, c := range ev.RateLimits {
			if s.limits.Delete(c.ResourceKey()) {
				res.Deleted++
			}
		}
	}
	return res
}

func (s *Syncer) applyDegradeRules(ctx context.Context, ev Event) Result {
	var res Result
	switch ev.Kind {
	case KindSnapshot:
		valid := make([]xdegrade.Rule, 0, len(ev.DegradeRules))
		for _, r := range ev.DegradeRules {
			if r.Deleted {
				res.Deleted++
				continue
			}
			if err := r.Validate(); err != nil {
				s.skip(ctx, ev, xlog.Rule(r.ID), err)
				res.Skipped++
				continue
			}
			valid = append(valid, r)
		}
		if err := s.rules.Replace(valid); err != nil {
			s.skip(ctx, ev, slog.Int("entries", len(valid)), err)
			res.Skipped += len(valid)
			return res
		}
		res.Applied += len(valid)
	case KindUpsert:
		for _, r := range ev.DegradeRules {
			if r.Deleted {
				if s.rules.Delete(r.ResourceKey()) {
					res.Deleted++
				}
				continue
			}
			if err := s.rules.Upsert(r); err != nil {
				s.skip(ctx, ev, xlog.Rule(r.ID), err)
				res.Skipped++
				continue
			}
			res.Applied++
		}
	case KindDelete:
		for _, r := range ev.DegradeRules {
			if s.rules.Delete(r.ResourceKey()) {
				res.Deleted++
			}
		}
	}
	return res
}

func (s *Syncer) skip(ctx context.Context, ev Event, attr slog.Attr, err error) {
	s.opts.logger.Warn(ctx, "rule entry skipped",
		slog.String("event_id", ev.ID),
		slog.String("source", ev.Source),
		attr,
		xlog.Err(err))
}

func merge(a, b Result) Result {
	return Result{
		Applied: a.Applied + b.Applied,
		Skipped: a.Skipped + b.Skipped,
		Deleted: a.Deleted + b.Deleted,
	}
}
