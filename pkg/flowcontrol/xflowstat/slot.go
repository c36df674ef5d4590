package xflowstat

import (
	"math"
	"sync/atomic"
)

// noSample 表示槽位尚无 RT 样本
const noSample = math.MaxInt64

// slot 单秒统计数据
//
// 槽位一旦发布即只做原子累加，second 字段不可变；过期后整体替换。
type slot struct {
	second int64

	total     atomic.Int64 // 通过的请求数
	blocked   atomic.Int64
	completed atomic.Int64 // RT 样本数
	errors    atomic.Int64
	rtSum     atomic.Int64
	rtMin     atomic.Int64
	rtMax     atomic.Int64
	peak      atomic.Int64 // 本秒观测到的最大并发
}

func newSlot(second int64) *slot {
	s := &slot{second: second}
	s.rtMin.Store(noSample)
	return s
}

// observeConcurrency 记录并发水位
func (s *slot) observeConcurrency(n int64) {
	storeMax(&s.peak, n)
}

// addRT 记录一次完成
func (s *slot) addRT(elapsedMs int64, success bool) {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	s.completed.Add(1)
	s.rtSum.Add(elapsedMs)
	storeMin(&s.rtMin, elapsedMs)
	storeMax(&s.rtMax, elapsedMs)
	if !success {
		s.errors.Add(1)
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func storeMin(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
