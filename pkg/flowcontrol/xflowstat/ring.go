package xflowstat

import "sync/atomic"

// ring 固定长度的秒级环
type ring struct {
	slots []atomic.Pointer[slot]
}

func newRing(size int) *ring {
	return &ring{slots: make([]atomic.Pointer[slot], size)}
}

func (r *ring) size() int64 {
	return int64(len(r.slots))
}

func (r *ring) index(second int64) int64 {
	n := r.size()
	return ((second % n) + n) % n
}

// acquire 返回 second 对应的可写槽位，过期槽位通过 CAS 替换。
//
// 比当前槽位更旧的秒不会覆盖较新的数据，返回一个不挂到环上的临时槽位，
// 写入会被丢弃。
func (r *ring) acquire(second int64) *slot {
	p := &r.slots[r.index(second)]
	for {
		cur := p.Load()
		if cur != nil {
			if cur.second == second {
				return cur
			}
			if cur.second > second {
				return newSlot(second)
			}
		}
		fresh := newSlot(second)
		if p.CompareAndSwap(cur, fresh) {
			return fresh
		}
	}
}

// peek 返回 second 对应的槽位，过期或不存在时返回 nil
func (r *ring) peek(second int64) *slot {
	cur := r.slots[r.index(second)].Load()
	if cur == nil || cur.second != second {
		return nil
	}
	return cur
}
