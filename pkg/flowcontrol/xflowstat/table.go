package xflowstat

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// blockKind 准入拦截类型
type blockKind int

const (
	passed blockKind = iota
	blockedByConcurrency
	blockedByQPS
)

// resourceStat 单个资源的统计
type resourceStat struct {
	id          string
	ring        *ring
	concurrency atomic.Int64
}

// shard 资源表分片
type shard struct {
	m sync.Map // resource id -> *resourceStat
}

// Table 资源统计表
//
// 所有方法并发安全。
type Table struct {
	shards      []shard
	mask        uint64
	ringSeconds int
}

// NewTable 创建资源统计表
func NewTable(opts ...Option) (*Table, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.ringSeconds < MinRingSeconds {
		return nil, ErrInvalidRingSize
	}
	n := nextPowerOfTwo(o.shards)
	return &Table{
		shards:      make([]shard, n),
		mask:        uint64(n - 1),
		ringSeconds: o.ringSeconds,
	}, nil
}

// RingSeconds 环长度（秒）
func (t *Table) RingSeconds() int {
	return t.ringSeconds
}

func (t *Table) shardFor(id string) *shard {
	return &t.shards[xxhash.Sum64String(id)&t.mask]
}

// lookup 返回已存在的资源统计
func (t *Table) lookup(id string) *resourceStat {
	v, ok := t.shardFor(id).m.Load(id)
	if !ok {
		return nil
	}
	return v.(*resourceStat)
}

// obtain 返回资源统计，不存在时原子地创建
func (t *Table) obtain(id string) *resourceStat {
	sh := t.shardFor(id)
	if v, ok := sh.m.Load(id); ok {
		return v.(*resourceStat)
	}
	v, _ := sh.m.LoadOrStore(id, &resourceStat{id: id, ring: newRing(t.ringSeconds)})
	return v.(*resourceStat)
}

// IncrRequest 尝试为资源记一次请求
//
// 先占用并发槽，超过 maxConcurrency 时立即归还并记为拦截；再累加当前秒的
// 请求数，超过 maxQPS 时回退计数并记为拦截，此时并发槽仍被占用，由调用方
// 通过 DecrConcurrentRequest 归还。上限 <= 0 表示不限制。
//
// tsMs 所在的秒早于环上同位置槽位的秒时，写入落在一个临时槽位上：请求数从
// 0 开始计，QPS 检查总是通过，计数随后被丢弃。时钟回拨不做处理。
func (t *Table) IncrRequest(resourceID string, tsMs, maxConcurrency, maxQPS int64) bool {
	return t.incr(resourceID, tsMs, maxConcurrency, maxQPS) == passed
}

func (t *Table) incr(resourceID string, tsMs, maxConcurrency, maxQPS int64) blockKind {
	rs := t.obtain(resourceID)
	s := rs.ring.acquire(floorDiv(tsMs, 1000))

	cur := rs.concurrency.Add(1)
	if limited(maxConcurrency) && cur > maxConcurrency {
		rs.concurrency.Add(-1)
		s.blocked.Add(1)
		return blockedByConcurrency
	}
	s.observeConcurrency(cur)

	if n := s.total.Add(1); limited(maxQPS) && n > maxQPS {
		s.total.Add(-1)
		s.blocked.Add(1)
		return blockedByQPS
	}
	return passed
}

// revert 撤销一次已通过的 incr：回退当前秒的请求数并归还并发槽
func (t *Table) revert(resourceID string, tsMs int64) {
	rs := t.lookup(resourceID)
	if rs == nil {
		return
	}
	if s := rs.ring.peek(floorDiv(tsMs, 1000)); s != nil {
		s.total.Add(-1)
	}
	t.DecrConcurrentRequest(resourceID, tsMs)
}

// DecrConcurrentRequest 归还一个并发槽
//
// 计数不会降到 0 以下，多余的归还被忽略。时间戳参数保留给按秒记录水位的实现。
func (t *Table) DecrConcurrentRequest(resourceID string, _ int64) {
	rs := t.lookup(resourceID)
	if rs == nil {
		return
	}
	for {
		cur := rs.concurrency.Load()
		if cur <= 0 || rs.concurrency.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// AddRequestRT 记录一次请求完成的耗时与结果
func (t *Table) AddRequestRT(resourceID string, tsMs, elapsedMs int64, success bool) {
	rs := t.obtain(resourceID)
	s := rs.ring.acquire(floorDiv(tsMs, 1000))
	s.addRT(elapsedMs, success)
	s.observeConcurrency(rs.concurrency.Load())
}

// ConcurrentRequests 资源当前的并发数，资源不存在时为 0
func (t *Table) ConcurrentRequests(resourceID string) int64 {
	rs := t.lookup(resourceID)
	if rs == nil {
		return 0
	}
	return rs.concurrency.Load()
}

// GetTimeWindowStat 聚合 [startMs, endMs) 内的统计
//
// 早于环容量的秒不再可见；资源不存在时返回零值窗口。
func (t *Table) GetTimeWindowStat(resourceID string, startMs, endMs int64) TimeWindowStat {
	agg := newAggregator(startMs, endMs)
	rs := t.lookup(resourceID)
	if rs == nil || endMs <= startMs {
		return agg.result()
	}
	t.collect(rs, agg, startMs, endMs)
	return agg.result()
}

func (t *Table) collect(rs *resourceStat, agg *aggregator, startMs, endMs int64) {
	first := floorDiv(startMs, 1000)
	last := floorDiv(endMs-1, 1000)
	if span := last - first + 1; span > rs.ring.size() {
		first = last - rs.ring.size() + 1
	}
	for sec := first; sec <= last; sec++ {
		if s := rs.ring.peek(sec); s != nil {
			agg.add(s)
		}
	}
}

// GetResourceTimeWindowStats 将 [startMs, endMs) 按 stepSec 秒切分为连续窗口
//
// 窗口从 startMs 开始，不做对齐，最后一个窗口截断到 endMs。完全早于环容量的
// 窗口不再返回，窗口数因此不超过环长度。
// resourceID 为空时返回所有已登记资源（按 ID 排序），否则只返回该资源。
func (t *Table) GetResourceTimeWindowStats(resourceID string, startMs, endMs, stepSec int64) ([]ResourceTimeWindowStats, error) {
	if startMs < 0 || endMs <= startMs || stepSec <= 0 || stepSec > math.MaxInt64/1000 {
		return nil, ErrInvalidRange
	}
	stepMs := stepSec * 1000
	if lo := endMs - int64(t.ringSeconds)*1000; startMs < lo {
		startMs += (lo - startMs) / stepMs * stepMs
	}
	ids := []string{resourceID}
	if resourceID == "" {
		ids = t.Resources()
	}
	out := make([]ResourceTimeWindowStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.windows(id, startMs, endMs, stepMs))
	}
	return out, nil
}

func (t *Table) windows(resourceID string, startMs, endMs, stepMs int64) ResourceTimeWindowStats {
	rs := ResourceTimeWindowStats{ResourceID: resourceID}
	for from := startMs; from < endMs; {
		to := endMs
		if stepMs < endMs-from {
			to = from + stepMs
		}
		rs.Windows = append(rs.Windows, t.GetTimeWindowStat(resourceID, from, to))
		from = to
	}
	return rs
}

// Resources 返回已登记的资源 ID，按字典序排列
func (t *Table) Resources() []string {
	var ids []string
	for i := range t.shards {
		t.shards[i].m.Range(func(k, _ any) bool {
			ids = append(ids, k.(string))
			return true
		})
	}
	sort.Strings(ids)
	return ids
}

// Concurrency 返回各资源的当前并发数（仅包含非零项）
func (t *Table) Concurrency() map[string]int64 {
	out := make(map[string]int64)
	for i := range t.shards {
		t.shards[i].m.Range(func(k, v any) bool {
			if n := v.(*resourceStat).concurrency.Load(); n > 0 {
				out[k.(string)] = n
			}
			return true
		})
	}
	return out
}

func limited(ceiling int64) bool {
	return ceiling > 0 && ceiling != Unlimited
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
