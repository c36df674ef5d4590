package xflowstat

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = int64(1_700_000_000_000) // 秒边界上的毫秒时间戳

func newTestTable(t *testing.T, opts ...Option) *Table {
	t.Helper()
	tbl, err := NewTable(opts...)
	require.NoError(t, err)
	return tbl
}

func TestNewTable_RingTooSmall(t *testing.T) {
	_, err := NewTable(WithRingSeconds(1))
	assert.ErrorIs(t, err, ErrInvalidRingSize)

	tbl := newTestTable(t, WithRingSeconds(MinRingSeconds), WithShards(5))
	assert.Equal(t, MinRingSeconds, tbl.RingSeconds())
	assert.Len(t, tbl.shards, 8)
}

func TestIncrRequest_ConcurrencyBurst(t *testing.T) {
	const c, n = 5, 12
	tbl := newTestTable(t)

	admitted := 0
	for range n {
		if tbl.IncrRequest("r", base+10, c, Unlimited) {
			admitted++
		}
	}
	assert.Equal(t, c, admitted)
	assert.EqualValues(t, c, tbl.ConcurrentRequests("r"))

	st := tbl.GetTimeWindowStat("r", base, base+1000)
	assert.EqualValues(t, c, st.Total)
	assert.EqualValues(t, n-c, st.Blocked)
	assert.EqualValues(t, c, st.PeakConcurrency)
}

func TestIncrRequest_ConcurrencyBurstParallel(t *testing.T) {
	const c, n = 8, 200
	tbl := newTestTable(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tbl.IncrRequest("r", base, c, 0) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, c, admitted)
	st := tbl.GetTimeWindowStat("r", base, base+1000)
	assert.EqualValues(t, n-c, st.Blocked)
	assert.EqualValues(t, c, st.Total)
}

func TestIncrRequest_QPS(t *testing.T) {
	const q = 10
	tbl := newTestTable(t)

	blocked := 0
	for i := range q + 1 {
		if !tbl.IncrRequest("r", base+int64(i*50), Unlimited, q) {
			blocked++
		}
	}
	assert.Equal(t, 1, blocked)

	st := tbl.GetTimeWindowStat("r", base, base+1000)
	assert.EqualValues(t, q, st.Total)
	assert.EqualValues(t, 1, st.Blocked)
	// QPS 拦截时并发槽仍被占用，由调用方归还
	assert.EqualValues(t, q+1, tbl.ConcurrentRequests("r"))

	// 下一秒重新计数
	assert.True(t, tbl.IncrRequest("r", base+1000, Unlimited, q))
}

func TestAddRequestRT(t *testing.T) {
	tbl := newTestTable(t)
	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	tbl.AddRequestRT("r", base+100, 100, true)
	tbl.AddRequestRT("r", base+300, 300, false)

	st := tbl.GetTimeWindowStat("r", base, base+1000)
	assert.EqualValues(t, 2, st.Total)
	assert.EqualValues(t, 2, st.Completed)
	assert.EqualValues(t, 1, st.Errors)
	assert.InDelta(t, 200.0, st.AvgRT, 1e-9)
	assert.EqualValues(t, 100, st.MinRT)
	assert.EqualValues(t, 300, st.MaxRT)
	assert.InDelta(t, 0.5, st.ErrorRatio(), 1e-9)
	assert.InDelta(t, 2.0, st.RPS, 1e-9)
}

func TestGetTimeWindowStat_EmptyAndUnknown(t *testing.T) {
	tbl := newTestTable(t)
	st := tbl.GetTimeWindowStat("missing", base, base+5000)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.MinRT)
	assert.Zero(t, st.AvgRT)
	assert.Equal(t, base, st.StartTime)
	assert.Equal(t, base+5000, st.EndTime)
}

func TestRing_StaleSlotsAreInvisible(t *testing.T) {
	const size = 4
	tbl := newTestTable(t, WithRingSeconds(size))
	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	tbl.AddRequestRT("r", base, 10, false)

	// 同一槽位被 size 秒之后的写入复用
	later := base + size*1000
	require.True(t, tbl.IncrRequest("r", later, 0, 0))

	old := tbl.GetTimeWindowStat("r", base, base+1000)
	assert.Zero(t, old.Total)
	assert.Zero(t, old.Errors)

	cur := tbl.GetTimeWindowStat("r", later, later+1000)
	assert.EqualValues(t, 1, cur.Total)
}

func TestRing_StaleReadWithoutWrite(t *testing.T) {
	tbl := newTestTable(t, WithRingSeconds(3))
	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	// 读取 3 秒之后的同一槽位不应看到旧数据
	st := tbl.GetTimeWindowStat("r", base+3000, base+4000)
	assert.Zero(t, st.Total)
}

func TestRing_OlderWriteDoesNotClobber(t *testing.T) {
	tbl := newTestTable(t, WithRingSeconds(2))
	require.True(t, tbl.IncrRequest("r", base+2000, 0, 0))
	// 迟到的旧时间戳写入被丢弃
	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	st := tbl.GetTimeWindowStat("r", base+2000, base+3000)
	assert.EqualValues(t, 1, st.Total)

	// 旧时间戳的 QPS 检查从 0 计起，上限为 1 时仍反复放行
	for range 3 {
		require.True(t, tbl.IncrRequest("r", base+10, 0, 1))
	}
	assert.Zero(t, tbl.GetTimeWindowStat("r", base, base+1000).Total)
	assert.EqualValues(t, 1, tbl.GetTimeWindowStat("r", base+2000, base+3000).Total)
}

func TestGetTimeWindowStat_ClampedToRing(t *testing.T) {
	tbl := newTestTable(t, WithRingSeconds(5))
	for i := range int64(5) {
		require.True(t, tbl.IncrRequest("r", base+i*1000, 0, 0))
	}
	st := tbl.GetTimeWindowStat("r", base-3_600_000, base+5000)
	assert.EqualValues(t, 5, st.Total)
}

func TestGetResourceTimeWindowStats(t *testing.T) {
	tbl := newTestTable(t)
	now := base + 500
	require.True(t, tbl.IncrRequest("r", now, 0, 0))

	t.Run("single bucket", func(t *testing.T) {
		got, err := tbl.GetResourceTimeWindowStats("r", now-1000, now+3000, 30)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Len(t, got[0].Windows, 1)
		w := got[0].Windows[0]
		assert.Equal(t, "r", got[0].ResourceID)
		assert.EqualValues(t, 1, w.Total)
		assert.Equal(t, now-1000, w.StartTime)
		assert.Equal(t, now+3000, w.EndTime)
	})

	t.Run("multiple buckets", func(t *testing.T) {
		got, err := tbl.GetResourceTimeWindowStats("r", base-2000, base+2000, 1)
		require.NoError(t, err)
		require.Len(t, got[0].Windows, 4)
		assert.EqualValues(t, 1, got[0].Windows[2].Total)
		assert.Zero(t, got[0].Windows[0].Total)
	})

	t.Run("all resources", func(t *testing.T) {
		require.True(t, tbl.IncrRequest("a", now, 0, 0))
		got, err := tbl.GetResourceTimeWindowStats("", base, base+1000, 1)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ResourceID)
		assert.Equal(t, "r", got[1].ResourceID)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := tbl.GetResourceTimeWindowStats("r", base, base, 1)
		assert.ErrorIs(t, err, ErrInvalidRange)
		_, err = tbl.GetResourceTimeWindowStats("r", base, base+1000, 0)
		assert.ErrorIs(t, err, ErrInvalidRange)
		_, err = tbl.GetResourceTimeWindowStats("r", -1, base, 1)
		assert.ErrorIs(t, err, ErrInvalidRange)
		_, err = tbl.GetResourceTimeWindowStats("r", base, base+1000, math.MaxInt64/1000+1)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("huge step", func(t *testing.T) {
		got, err := tbl.GetResourceTimeWindowStats("r", base, base+1000, math.MaxInt64/1000)
		require.NoError(t, err)
		require.Len(t, got[0].Windows, 1)
		assert.Equal(t, base, got[0].Windows[0].StartTime)
		assert.Equal(t, base+1000, got[0].Windows[0].EndTime)
		assert.EqualValues(t, 1, got[0].Windows[0].Total)
	})
}

func TestGetResourceTimeWindowStats_BoundedByRing(t *testing.T) {
	tbl := newTestTable(t, WithRingSeconds(10))
	end := base + 1000
	require.True(t, tbl.IncrRequest("r", base, 0, 0))

	got, err := tbl.GetResourceTimeWindowStats("r", 0, end, 1)
	require.NoError(t, err)
	ws := got[0].Windows
	require.Len(t, ws, 10)
	assert.Equal(t, end-10_000, ws[0].StartTime)
	assert.Equal(t, end, ws[9].EndTime)
	assert.EqualValues(t, 1, ws[9].Total)

	// 窗口边界仍以 start 为基准
	got, err = tbl.GetResourceTimeWindowStats("r", 500, end, 3)
	require.NoError(t, err)
	ws = got[0].Windows
	require.Len(t, ws, 4)
	assert.Zero(t, (ws[0].StartTime-500)%3000)
	assert.LessOrEqual(t, ws[0].StartTime, end-10_000)
	assert.Equal(t, end, ws[3].EndTime)
}

func TestDecrConcurrentRequest_NeverNegative(t *testing.T) {
	tbl := newTestTable(t)
	tbl.DecrConcurrentRequest("missing", base)

	require.True(t, tbl.IncrRequest("r", base, 0, 0))
	tbl.DecrConcurrentRequest("r", base)
	tbl.DecrConcurrentRequest("r", base)
	assert.Zero(t, tbl.ConcurrentRequests("r"))
}

func TestConcurrentIncrDecr(t *testing.T) {
	tbl := newTestTable(t)
	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				ts := base + int64(g*37+i)
				if tbl.IncrRequest("r", ts, 4, 0) {
					assert.GreaterOrEqual(t, tbl.ConcurrentRequests("r"), int64(1))
					tbl.AddRequestRT("r", ts, 1, true)
					tbl.DecrConcurrentRequest("r", ts)
				}
				assert.GreaterOrEqual(t, tbl.ConcurrentRequests("r"), int64(0))
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, tbl.ConcurrentRequests("r"))
}

func TestResourcesAndConcurrency(t *testing.T) {
	tbl := newTestTable(t)
	require.True(t, tbl.IncrRequest("b", base, 0, 0))
	require.True(t, tbl.IncrRequest("a", base, 0, 0))
	tbl.DecrConcurrentRequest("a", base)

	assert.Equal(t, []string{"a", "b"}, tbl.Resources())
	assert.Equal(t, map[string]int64{"b": 1}, tbl.Concurrency())
}

func TestSecondsBetween(t *testing.T) {
	assert.EqualValues(t, 0, secondsBetween(base, base))
	assert.EqualValues(t, 1, secondsBetween(base, base+1))
	assert.EqualValues(t, 1, secondsBetween(base, base+1000))
	assert.EqualValues(t, 2, secondsBetween(base+999, base+1001))
	assert.EqualValues(t, -1, floorDiv(-1, 1000))
}
