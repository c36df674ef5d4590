package xdegrade

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
)

const base = int64(1_700_000_000_000)

type harness struct {
	t        *testing.T
	stats    *xflowstat.Engine
	rules    *RuleStore
	breakers *Engine

	mu          sync.Mutex
	transitions []string
}

func newHarness(t *testing.T, rule Rule, opts ...Option) *harness {
	t.Helper()
	stats, err := xflowstat.New()
	require.NoError(t, err)
	h := &harness{t: t, stats: stats, rules: NewRuleStore()}
	require.NoError(t, h.rules.Upsert(rule))
	opts = append(opts, WithOnStateChange(func(_ string, from, to State) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, from.String()+"->"+to.String())
	}))
	h.breakers = NewEngine(h.rules, stats, opts...)
	return h
}

// call 模拟一次经过熔断判定的请求，返回是否被放行
func (h *harness) call(ts int64, success bool) bool {
	p := h.breakers.Permit("svc", "/p", ts)
	if !p.Allowed() {
		return false
	}
	adm := h.stats.Admit([]xflowstat.Level{{ResourceID: p.ResourceID()}}, ts)
	h.stats.Complete(adm, ts, 5, success)
	h.breakers.OnComplete(p, ts, success)
	return true
}

func (h *harness) state() State {
	return h.breakers.State("^^^svc^/p")
}

func TestEngine_MinRequestCount(t *testing.T) {
	h := newHarness(t, validRule())

	for i := range 9 {
		require.True(t, h.call(base+int64(i), false))
	}
	assert.Equal(t, StateClosed, h.state(), "9 failures below min request count")

	require.True(t, h.call(base+9, false))
	assert.Equal(t, StateOpen, h.state())

	// timeWindow 内短路
	assert.False(t, h.call(base+1000, true))
	assert.False(t, h.call(base+29_999, true))
	assert.Equal(t, []string{"closed->open"}, h.transitions)
}

func TestEngine_ImmediateRecovery(t *testing.T) {
	h := newHarness(t, validRule())
	for i := range 10 {
		h.call(base+int64(i), false)
	}
	require.Equal(t, StateOpen, h.state())

	reopenAt := base + 31_000
	assert.True(t, h.call(reopenAt, false))
	assert.Equal(t, StateClosed, h.state())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, h.transitions)

	// 闭合后只统计新数据，单个失败不会立即再次熔断
	assert.True(t, h.call(reopenAt+10, false))
	assert.Equal(t, StateClosed, h.state())
}

func TestEngine_AttemptRecovery(t *testing.T) {
	rule := validRule()
	rule.RecoveryStrategy = RecoveryAttempt
	rule.ProbeCount = 2
	h := newHarness(t, rule)
	for i := range 10 {
		h.call(base+int64(i), false)
	}
	require.Equal(t, StateOpen, h.state())

	at := base + 31_000
	p1 := h.breakers.Permit("svc", "/p", at)
	p2 := h.breakers.Permit("svc", "/p", at)
	p3 := h.breakers.Permit("svc", "/p", at)
	require.True(t, p1.Allowed())
	require.True(t, p1.Probe())
	require.True(t, p2.Allowed())
	assert.False(t, p3.Allowed(), "probe budget exhausted")
	assert.Equal(t, StateHalfOpen, h.state())

	// 放弃的探测归还名额
	h.breakers.Abandon(p2)
	p4 := h.breakers.Permit("svc", "/p", at)
	require.True(t, p4.Allowed())

	h.breakers.OnComplete(p1, at+5, true)
	assert.Equal(t, StateHalfOpen, h.state())
	h.breakers.OnComplete(p4, at+6, true)
	assert.Equal(t, StateClosed, h.state())
}

func TestEngine_AttemptProbeFailureReopens(t *testing.T) {
	rule := validRule()
	rule.RecoveryStrategy = RecoveryAttempt
	h := newHarness(t, rule)
	for i := range 10 {
		h.call(base+int64(i), false)
	}

	at := base + 31_000
	p := h.breakers.Permit("svc", "/p", at)
	require.True(t, p.Probe())
	h.breakers.OnComplete(p, at+100, false)
	assert.Equal(t, StateOpen, h.state())

	// 重新计时
	assert.False(t, h.call(at+29_000, true))
	assert.True(t, h.call(at+30_100, true))
	assert.Equal(t, StateClosed, h.state())

	// 过期的探测结果被忽略
	h.breakers.OnComplete(p, at+31_000, false)
	assert.Equal(t, StateClosed, h.state())
}

func TestEngine_GradualRecovery(t *testing.T) {
	rule := validRule()
	rule.RecoveryStrategy = RecoveryGradual
	rule.RecoveryTimeWindow = 10
	h := newHarness(t, rule, WithRandom(func() float64 { return 0.5 }))
	for i := range 10 {
		h.call(base+int64(i), false)
	}

	half := base + 31_000
	assert.False(t, h.call(half, true), "ramp starts at zero")
	assert.Equal(t, StateHalfOpen, h.state())
	assert.False(t, h.call(half+2_000, true))
	assert.True(t, h.call(half+6_000, true))
	assert.Equal(t, StateHalfOpen, h.state())
	assert.True(t, h.call(half+10_000, true))
	assert.Equal(t, StateClosed, h.state())
}

func TestEngine_GradualRecoveryReopensOnBreach(t *testing.T) {
	rule := validRule()
	rule.RecoveryStrategy = RecoveryGradual
	rule.RecoveryTimeWindow = 60
	rule.MinRequestCount = 2
	h := newHarness(t, rule, WithRandom(func() float64 { return 0 }))
	for i := range 2 {
		h.call(base+int64(i), false)
	}
	require.Equal(t, StateOpen, h.state())

	half := base + 31_000
	h.breakers.Permit("svc", "/p", half) // 进入 half-open
	require.Equal(t, StateHalfOpen, h.state())
	assert.True(t, h.call(half+1_000, false))
	assert.True(t, h.call(half+1_001, false))
	assert.Equal(t, StateOpen, h.state())
}

func TestEngine_ErrorCountStrategy(t *testing.T) {
	rule := validRule()
	rule.Strategy, rule.ExceptionCount, rule.MinRequestCount = StrategyErrorCount, 3, 0
	h := newHarness(t, rule)

	for i := range 20 {
		h.call(base+int64(i), true)
	}
	h.call(base+100, false)
	h.call(base+101, false)
	assert.Equal(t, StateClosed, h.state())
	h.call(base+102, false)
	assert.Equal(t, StateOpen, h.state())
}

func TestEngine_StatIntervalExpires(t *testing.T) {
	rule := validRule()
	rule.StatInterval = 5
	h := newHarness(t, rule)
	for i := range 5 {
		h.call(base+int64(i), false)
	}
	// 超出统计窗口后旧失败不再计入
	for i := range 5 {
		h.call(base+10_000+int64(i), false)
	}
	assert.Equal(t, StateClosed, h.state())
}

func TestEngine_NoRuleAlwaysAllows(t *testing.T) {
	h := newHarness(t, validRule())
	p := h.breakers.Permit("other", "/x", base)
	assert.True(t, p.Allowed())
	assert.Empty(t, p.ResourceID())
	_, ok := p.Rule()
	assert.False(t, ok)
	h.breakers.OnComplete(p, base, false)
	h.breakers.Abandon(p)
}

func TestEngine_RuleReplacementResets(t *testing.T) {
	h := newHarness(t, validRule())
	for i := range 10 {
		h.call(base+int64(i), false)
	}
	require.Equal(t, StateOpen, h.state())

	replacement := validRule()
	replacement.ID = 99
	require.NoError(t, h.rules.Upsert(replacement))
	assert.True(t, h.call(base+100, true))
	assert.Equal(t, StateClosed, h.state())
}

type panickingStats struct{}

func (panickingStats) GetTimeWindowStat(string, int64, int64) xflowstat.TimeWindowStat {
	panic("stats unavailable")
}

func TestEngine_FailOpen(t *testing.T) {
	rules := NewRuleStore()
	require.NoError(t, rules.Upsert(validRule()))
	e := NewEngine(rules, panickingStats{})

	p := e.Permit("svc", "/p", base)
	require.True(t, p.Allowed())
	assert.NotPanics(t, func() { e.OnComplete(p, base, false) })

	gradual := validRule()
	gradual.RecoveryStrategy, gradual.RecoveryTimeWindow = RecoveryGradual, 10
	require.NoError(t, rules.Upsert(gradual))
	e2 := NewEngine(rules, panickingStats{}, WithRandom(func() float64 { panic("rng") }))
	b := e2.breaker("^^^svc^/p", gradual.ID)
	b.mu.Lock()
	b.setLocked(StateOpen, base)
	b.mu.Unlock()

	var got Permit
	assert.NotPanics(t, func() { got = e2.Permit("svc", "/p", base+31_000) })
	assert.True(t, got.Allowed())
}

func TestEngine_StatesAndPrune(t *testing.T) {
	h := newHarness(t, validRule())
	for i := range 10 {
		h.call(base+int64(i), false)
	}
	states := h.breakers.States()
	require.Len(t, states, 1)
	assert.Equal(t, "^^^svc^/p", states[0].ResourceID)
	assert.Equal(t, "open", states[0].State)
	assert.EqualValues(t, 1, states[0].Trips)
	assert.Equal(t, base+9, states[0].OpenedAt)

	assert.Zero(t, h.breakers.Prune())
	require.True(t, h.rules.Delete("^^^svc^/p"))
	assert.Equal(t, 1, h.breakers.Prune())
	assert.Empty(t, h.breakers.States())
}
