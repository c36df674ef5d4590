package xdegrade

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// StatSource 熔断判定所需的统计来源，*xflowstat.Engine 满足此接口
type StatSource interface {
	GetTimeWindowStat(resourceID string, startMs, endMs int64) xflowstat.TimeWindowStat
}

// Permit 一次熔断判定的结果
type Permit struct {
	allowed    bool
	matched    bool
	probe      bool
	epoch      uint64
	resourceID string
	rule       Rule
}

// Allowed 是否放行
func (p Permit) Allowed() bool {
	return p.allowed
}

// ResourceID 熔断器所在的资源 ID，未匹配规则时为空
func (p Permit) ResourceID() string {
	return p.resourceID
}

// Rule 匹配到的规则
func (p Permit) Rule() (Rule, bool) {
	return p.rule, p.matched
}

// Probe 是否为探测请求
func (p Permit) Probe() bool {
	return p.probe
}

// Response 熔断时的响应
func (p Permit) Response() xresource.Response {
	return p.rule.Response()
}

// Engine 熔断引擎
type Engine struct {
	rules    *RuleStore
	stats    StatSource
	breakers sync.Map // resource id -> *breaker
	opts     *options
}

// NewEngine 创建熔断引擎
func NewEngine(rules *RuleStore, stats StatSource, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(xlog.Component("xdegrade"))
	return &Engine{rules: rules, stats: stats, opts: o}
}

// Rules 返回规则存储
func (e *Engine) Rules() *RuleStore {
	return e.rules
}

func (e *Engine) breaker(resourceID string, ruleID int64) *breaker {
	if v, ok := e.breakers.Load(resourceID); ok {
		return v.(*breaker)
	}
	v, _ := e.breakers.LoadOrStore(resourceID, newBreaker(resourceID, ruleID))
	return v.(*breaker)
}

// Permit 判定请求是否放行，未匹配规则时总是放行
func (e *Engine) Permit(service, path string, tsMs int64) (p Permit) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.logger.Stack(context.Background(), "breaker permit panicked, allowing request",
				xlog.Service(service), xlog.Err(fmt.Errorf("%v", r)))
			p = Permit{allowed: true}
		}
	}()

	rule, rid, ok := e.rules.Match(service, path)
	if !ok {
		return Permit{allowed: true}
	}
	b := e.breaker(rid, rule.ID)
	e.notify(rid, b.resetIfRuleChanged(rule.ID, tsMs))

	allowed, probe, epoch, trs := b.permit(rule, tsMs, e.opts.random)
	e.notify(rid, trs)
	return Permit{
		allowed:    allowed,
		matched:    true,
		probe:      probe,
		epoch:      epoch,
		resourceID: rid,
		rule:       rule,
	}
}

// Abandon 放弃一个已放行但未执行的请求，归还探测名额
func (e *Engine) Abandon(p Permit) {
	if !p.matched || !p.probe {
		return
	}
	if v, ok := e.breakers.Load(p.resourceID); ok {
		v.(*breaker).release(p.epoch)
	}
}

// OnComplete 请求完成后驱动熔断器判定
//
// 调用前请求结果应已写入统计来源。
func (e *Engine) OnComplete(p Permit, tsMs int64, success bool) {
	if !p.matched || !p.allowed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.opts.logger.Stack(context.Background(), "breaker evaluation panicked",
				xlog.Resource(p.resourceID), xlog.Err(fmt.Errorf("%v", r)))
		}
	}()

	v, ok := e.breakers.Load(p.resourceID)
	if !ok {
		return
	}
	b := v.(*breaker)

	if p.probe {
		e.notify(p.resourceID, b.probeDone(p.rule, p.epoch, tsMs, success))
		return
	}

	state, epoch, startMs, endMs := b.evalWindow(p.rule, tsMs)
	// half-open 期间只有渐进恢复按统计判定，探测恢复看探测结果
	gradual := state == StateHalfOpen && p.rule.recovery() == RecoveryGradual
	if state != StateClosed && !gradual {
		return
	}
	st := e.stats.GetTimeWindowStat(p.resourceID, startMs, endMs)
	if p.rule.tripped(st.Completed, st.Errors) {
		e.notify(p.resourceID, b.tripIf(state, epoch, tsMs))
	}
}

// State 返回资源熔断器的当前状态，不存在时为 closed
func (e *Engine) State(resourceID string) State {
	if v, ok := e.breakers.Load(resourceID); ok {
		return v.(*breaker).current()
	}
	return StateClosed
}

// States 返回所有熔断器的状态快照，按资源 ID 排序
func (e *Engine) States() []BreakerStatus {
	var out []BreakerStatus
	e.breakers.Range(func(_, v any) bool {
		out = append(out, v.(*breaker).status())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// Prune 移除已没有匹配规则的熔断器
func (e *Engine) Prune() int {
	n := 0
	e.breakers.Range(func(k, _ any) bool {
		id := k.(string)
		c, err := xresource.ParseID(id)
		if err != nil {
			e.breakers.Delete(id)
			n++
			return true
		}
		if _, rid, ok := e.rules.Match(c.Service, c.Path); !ok || rid != id {
			e.breakers.Delete(id)
			n++
		}
		return true
	})
	return n
}

func (e *Engine) notify(resourceID string, trs []transition) {
	for _, tr := range trs {
		if tr.to == StateOpen {
			e.opts.logger.Warn(context.Background(), "circuit opened",
				xlog.Resource(resourceID), xlog.State(tr.to.String()))
		} else {
			e.opts.logger.Info(context.Background(), "circuit state changed",
				xlog.Resource(resourceID), xlog.State(tr.to.String()))
		}
		if e.opts.onStateChange != nil {
			e.opts.onStateChange(resourceID, tr.from, tr.to)
		}
	}
}
