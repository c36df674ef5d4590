package xflowstat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_AdmitAllLevels(t *testing.T) {
	e := newTestEngine(t)
	levels := []Level{
		{ResourceID: "api", MaxQPS: 10},
		{ResourceID: "svc", MaxConcurrency: 10},
		{ResourceID: "global"},
	}
	adm := e.Admit(levels, base)
	require.True(t, adm.Allowed())
	assert.Empty(t, adm.BlockedResource())
	assert.Equal(t, []string{"api", "svc", "global"}, adm.Resources())

	for _, id := range []string{"api", "svc", "global"} {
		assert.EqualValues(t, 1, e.Table().ConcurrentRequests(id), id)
	}

	e.Complete(adm, base+20, 20, true)
	e.Complete(adm, base+20, 20, true) // 重复调用无效
	for _, id := range []string{"api", "svc", "global"} {
		assert.Zero(t, e.Table().ConcurrentRequests(id), id)
		st := e.GetTimeWindowStat(id, base, base+1000)
		assert.EqualValues(t, 1, st.Completed, id)
		assert.EqualValues(t, 20, st.RTSum, id)
	}
}

func TestEngine_BlockReleasesHeldLevels(t *testing.T) {
	e := newTestEngine(t)
	levels := []Level{
		{ResourceID: "api"},
		{ResourceID: "svc", MaxConcurrency: 1},
		{ResourceID: "global"},
	}

	first := e.Admit(levels, base)
	require.True(t, first.Allowed())

	second := e.Admit(levels, base)
	require.False(t, second.Allowed())
	assert.Equal(t, "svc", second.BlockedResource())
	assert.False(t, second.BlockedByQPS())
	assert.Nil(t, second.Resources())

	// 拦截后 api 只剩第一个请求占用的并发槽，global 未被触达
	assert.EqualValues(t, 1, e.Table().ConcurrentRequests("api"))
	assert.EqualValues(t, 1, e.Table().ConcurrentRequests("svc"))
	assert.EqualValues(t, 1, e.Table().ConcurrentRequests("global"))

	// 被拦截的 Admission 调用 Complete 不产生影响
	e.Complete(second, base, 5, false)
	assert.Zero(t, e.GetTimeWindowStat("svc", base, base+1000).Errors)

	e.Complete(first, base, 5, true)
	for _, id := range []string{"api", "svc", "global"} {
		assert.Zero(t, e.Table().ConcurrentRequests(id), id)
	}
	// 拦截只记在 svc，api 的通过数只包含放行的请求
	api := e.GetTimeWindowStat("api", base, base+1000)
	assert.EqualValues(t, 1, api.Total)
	assert.Zero(t, api.Blocked)
	assert.EqualValues(t, 1, e.GetTimeWindowStat("svc", base, base+1000).Blocked)
}

func TestEngine_LaterBlockKeepsEarlierQPSQuota(t *testing.T) {
	e := newTestEngine(t)
	levels := []Level{
		{ResourceID: "api", MaxQPS: 3},
		{ResourceID: "global", MaxConcurrency: 1},
	}

	held := e.Admit(levels, base)
	require.True(t, held.Allowed())
	for i := range int64(3) {
		adm := e.Admit(levels, base+10+i)
		require.False(t, adm.Allowed())
		assert.Equal(t, "global", adm.BlockedResource(), "call %d", i)
		assert.False(t, adm.BlockedByQPS())
	}
	e.Complete(held, base+20, 5, true)

	// 同一秒内只放行过 1 个请求，api 还剩 2 个配额
	for i := range int64(2) {
		adm := e.Admit(levels, base+30+i)
		require.True(t, adm.Allowed(), "call %d", i)
		e.Complete(adm, base+40, 1, true)
	}
	adm := e.Admit(levels, base+50)
	require.False(t, adm.Allowed())
	assert.Equal(t, "api", adm.BlockedResource())
	assert.True(t, adm.BlockedByQPS())

	api := e.GetTimeWindowStat("api", base, base+1000)
	assert.EqualValues(t, 3, api.Total)
	assert.EqualValues(t, 1, api.Blocked)
	assert.EqualValues(t, 3, e.GetTimeWindowStat("global", base, base+1000).Blocked)
	assert.Empty(t, e.Concurrency())
}

func TestEngine_QPSBlockReleasesOwnSlot(t *testing.T) {
	e := newTestEngine(t)
	levels := []Level{{ResourceID: "api", MaxQPS: 1}, {ResourceID: "global"}}

	ok := e.Admit(levels, base)
	require.True(t, ok.Allowed())
	blocked := e.Admit(levels, base+10)
	require.False(t, blocked.Allowed())
	assert.True(t, blocked.BlockedByQPS())
	assert.EqualValues(t, 1, e.Table().ConcurrentRequests("api"))
}

func TestEngine_NilAndEmpty(t *testing.T) {
	e := newTestEngine(t)
	e.Complete(nil, base, 1, true)

	adm := e.Admit(nil, base)
	assert.True(t, adm.Allowed())
	e.Complete(adm, base, 1, true)
}

func TestEngine_Clock(t *testing.T) {
	now := time.UnixMilli(base + 250)
	e := newTestEngine(t, WithClock(func() time.Time { return now }))
	assert.Equal(t, base+250, e.Now())

	adm := e.AdmitNow([]Level{{ResourceID: "r"}})
	require.True(t, adm.Allowed())
	e.CompleteNow(adm, 40*time.Millisecond, false)

	st := e.GetTimeWindowStat("r", base, base+1000)
	assert.EqualValues(t, 1, st.Errors)
	assert.EqualValues(t, 40, st.MaxRT)
	assert.Equal(t, []string{"r"}, e.Resources())
}

func TestEngine_ParallelGaugeSettles(t *testing.T) {
	e := newTestEngine(t)
	levels := []Level{{ResourceID: "a", MaxConcurrency: 3}, {ResourceID: "b", MaxConcurrency: 2}}

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				adm := e.Admit(levels, base)
				if adm.Allowed() {
					e.Complete(adm, base, 1, true)
				}
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, e.Concurrency())
}
