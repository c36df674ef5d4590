package xgate

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// Reason 拒绝原因
type Reason string

const (
	// ReasonNone 放行
	ReasonNone Reason = ""
	// ReasonRateLimited 超过并发或 QPS 上限
	ReasonRateLimited Reason = "rate_limited"
	// ReasonCircuitOpen 熔断中
	ReasonCircuitOpen Reason = "circuit_open"
)

// 默认拒绝响应
var (
	DefaultRateLimitedResponse = xresource.Response{
		Status:      http.StatusTooManyRequests,
		ContentType: "text/plain; charset=utf-8",
		Content:     "too many requests",
	}
	DefaultCircuitOpenResponse = xresource.Response{
		Status:      http.StatusServiceUnavailable,
		ContentType: "text/plain; charset=utf-8",
		Content:     "service unavailable",
	}
)

// Request 一次请求的资源维度
type Request struct {
	App     string
	IP      string
	Service string
	Path    string
}

// Components 转换为资源 ID 组成部分
func (r Request) Components() xresource.Components {
	return xresource.Components{App: r.App, IP: r.IP, Service: r.Service, Path: r.Path}
}

// Guard 请求入口
type Guard struct {
	engine   *xflowstat.Engine
	resolver *xresource.Resolver
	opts     *options
}

// New 创建 Guard
func New(engine *xflowstat.Engine, resolver *xresource.Resolver, opts ...Option) (*Guard, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if resolver == nil {
		return nil, ErrNilResolver
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Guard{engine: engine, resolver: resolver, opts: o}, nil
}

// Enter 判定请求是否放行
//
// 返回的 Entry 无论是否放行都可以调用 Exit，拒绝的 Entry 调用 Exit 不产生效果。
func (g *Guard) Enter(ctx context.Context, req Request) (*Entry, error) {
	if req.Service == "" {
		return nil, ErrEmptyService
	}
	start := time.Now()
	ts := g.engine.Now()
	e := &Entry{guard: g, req: req}

	if g.opts.degrade != nil {
		e.permit = g.opts.degrade.Permit(req.Service, req.Path, ts)
		if !e.permit.Allowed() {
			e.reason = ReasonCircuitOpen
			e.blockedBy = e.permit.ResourceID()
			e.response = orDefault(e.permit.Response(), DefaultCircuitOpenResponse)
			g.observe(ctx, e, start)
			return e, nil
		}
	}

	chain := g.resolver.Chain(req.Components())
	e.adm = g.engine.Admit(g.levels(chain, e.permit.ResourceID()), ts)
	if !e.adm.Allowed() {
		if g.opts.degrade != nil {
			g.opts.degrade.Abandon(e.permit)
		}
		e.reason = ReasonRateLimited
		e.blockedBy = e.adm.BlockedResource()
		e.response = DefaultRateLimitedResponse
		for _, l := range chain {
			if l.ResourceID == e.blockedBy {
				e.response = orDefault(l.Response, DefaultRateLimitedResponse)
				break
			}
		}
		g.observe(ctx, e, start)
		return e, nil
	}

	e.allowed = true
	g.observe(ctx, e, start)
	return e, nil
}

// levels 把资源链转换为准入级别，去重并补上熔断器所在资源
func (g *Guard) levels(chain []xresource.Limit, breakerID string) []xflowstat.Level {
	levels := make([]xflowstat.Level, 0, len(chain)+1)
	seen := make(map[string]struct{}, len(chain)+1)
	for _, l := range chain {
		if _, dup := seen[l.ResourceID]; dup {
			continue
		}
		seen[l.ResourceID] = struct{}{}
		levels = append(levels, xflowstat.Level{
			ResourceID:     l.ResourceID,
			MaxConcurrency: l.MaxConcurrency,
			MaxQPS:         l.MaxQPS,
		})
	}
	if breakerID != "" {
		if _, ok := seen[breakerID]; !ok {
			levels = append(levels, xflowstat.Level{
				ResourceID:     breakerID,
				MaxConcurrency: xflowstat.Unlimited,
				MaxQPS:         xflowstat.Unlimited,
			})
		}
	}
	return levels
}

func (g *Guard) observe(ctx context.Context, e *Entry, start time.Time) {
	g.opts.metrics.recordEnter(ctx, e.req.Service, e.reason, time.Since(start))
	if e.reason != ReasonNone {
		g.opts.logger.Debug(ctx, "request blocked",
			xlog.Service(e.req.Service),
			xlog.Resource(e.blockedBy),
			xlog.Reason(string(e.reason)))
	}
}

func orDefault(r, def xresource.Response) xresource.Response {
	if r.IsZero() {
		return def
	}
	if r.Status == 0 {
		r.Status = def.Status
	}
	if r.ContentType == "" {
		r.ContentType = def.ContentType
	}
	return r
}

// Entry 一次判定的结果
type Entry struct {
	guard     *Guard
	req       Request
	allowed   bool
	reason    Reason
	blockedBy string
	response  xresource.Response
	permit    xdegrade.Permit
	adm       *xflowstat.Admission
	exited    atomic.Bool
}

// Allowed 是否放行
func (e *Entry) Allowed() bool {
	return e.allowed
}

// Reason 拒绝原因，放行时为 ReasonNone
func (e *Entry) Reason() Reason {
	return e.reason
}

// BlockedResource 触发拒绝的资源 ID
func (e *Entry) BlockedResource() string {
	return e.blockedBy
}

// Response 拒绝时应返回的响应
func (e *Entry) Response() xresource.Response {
	return e.response
}

// Exit 请求结束，记录耗时与结果
//
// 重复调用只生效一次。
func (e *Entry) Exit(ctx context.Context, elapsed time.Duration, success bool) {
	if e == nil || !e.allowed || !e.exited.CompareAndSwap(false, true) {
		return
	}
	g := e.guard
	ts := g.engine.Now()
	g.engine.Complete(e.adm, ts, elapsed.Milliseconds(), success)
	if g.opts.degrade != nil {
		g.opts.degrade.OnComplete(e.permit, ts, success)
	}
	g.opts.metrics.recordExit(ctx, e.req.Service, success, elapsed)
}
