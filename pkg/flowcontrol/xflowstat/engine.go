package xflowstat

import (
	"sync/atomic"
	"time"
)

// Level 资源链上的一级
type Level struct {
	ResourceID     string
	MaxConcurrency int64
	MaxQPS         int64
}

// Admission 一次准入判定的结果
type Admission struct {
	allowed   bool
	blockedBy string
	byQPS     bool
	held      []string
	done      atomic.Bool
}

// Allowed 是否放行
func (a *Admission) Allowed() bool {
	return a.allowed
}

// BlockedResource 触发拦截的资源 ID，放行时为空
func (a *Admission) BlockedResource() string {
	return a.blockedBy
}

// BlockedByQPS 拦截是否由 QPS 上限触发（否则为并发上限）
func (a *Admission) BlockedByQPS() bool {
	return a.byQPS
}

// Resources 放行时占用了并发槽的资源，按链上顺序
func (a *Admission) Resources() []string {
	return a.held
}

// Engine 多级准入引擎
type Engine struct {
	table *Table
	clock func() time.Time
}

// New 创建准入引擎
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	t, err := NewTable(opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{table: t, clock: o.clock}, nil
}

// Table 返回底层统计表
func (e *Engine) Table() *Table {
	return e.table
}

// Admit 按顺序检查每一级，全部通过才放行
//
// 第 k 级拦截时，第 0..k-1 级的请求计数与并发槽全部回退，拦截只记在第 k 级，
// 因此各级的通过数只包含最终放行的请求。
func (e *Engine) Admit(levels []Level, tsMs int64) *Admission {
	adm := &Admission{held: make([]string, 0, len(levels))}
	for _, lv := range levels {
		switch e.table.incr(lv.ResourceID, tsMs, lv.MaxConcurrency, lv.MaxQPS) {
		case passed:
			adm.held = append(adm.held, lv.ResourceID)
			continue
		case blockedByQPS:
			adm.byQPS = true
			e.table.DecrConcurrentRequest(lv.ResourceID, tsMs)
		case blockedByConcurrency:
		}
		for _, id := range adm.held {
			e.table.revert(id, tsMs)
		}
		adm.held = nil
		adm.blockedBy = lv.ResourceID
		adm.done.Store(true)
		return adm
	}
	adm.allowed = true
	return adm
}

// Complete 为放行的请求记录耗时并归还并发槽
//
// 仅对放行的 Admission 生效，重复调用只生效一次。
func (e *Engine) Complete(adm *Admission, tsMs, elapsedMs int64, success bool) {
	if adm == nil || !adm.allowed || !adm.done.CompareAndSwap(false, true) {
		return
	}
	for _, id := range adm.held {
		e.table.AddRequestRT(id, tsMs, elapsedMs, success)
		e.table.DecrConcurrentRequest(id, tsMs)
	}
}

// AdmitNow 以引擎时钟为时间戳调用 Admit
func (e *Engine) AdmitNow(levels []Level) *Admission {
	return e.Admit(levels, e.clock().UnixMilli())
}

// CompleteNow 以引擎时钟为时间戳调用 Complete
func (e *Engine) CompleteNow(adm *Admission, elapsed time.Duration, success bool) {
	e.Complete(adm, e.clock().UnixMilli(), elapsed.Milliseconds(), success)
}

// Now 引擎时钟的当前毫秒时间戳
func (e *Engine) Now() int64 {
	return e.clock().UnixMilli()
}

// GetTimeWindowStat 见 Table.GetTimeWindowStat
func (e *Engine) GetTimeWindowStat(resourceID string, startMs, endMs int64) TimeWindowStat {
	return e.table.GetTimeWindowStat(resourceID, startMs, endMs)
}

// GetResourceTimeWindowStats 见 Table.GetResourceTimeWindowStats
func (e *Engine) GetResourceTimeWindowStats(resourceID string, startMs, endMs, stepSec int64) ([]ResourceTimeWindowStats, error) {
	return e.table.GetResourceTimeWindowStats(resourceID, startMs, endMs, stepSec)
}

// Resources 见 Table.Resources
func (e *Engine) Resources() []string {
	return e.table.Resources()
}

// ConcurrentRequests 见 Table.ConcurrentRequests
func (e *Engine) ConcurrentRequests(resourceID string) int64 {
	return e.table.ConcurrentRequests(resourceID)
}

// Concurrency 见 Table.Concurrency
func (e *Engine) Concurrency() map[string]int64 {
	return e.table.Concurrency()
}
