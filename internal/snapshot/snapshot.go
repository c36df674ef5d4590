// Package snapshot 提供写时复制的键值快照存储。
//
// 读路径只做一次原子加载，不加锁；写操作串行化，复制当前快照后整体发布，
// 读者看到的要么是旧快照要么是新快照，不会出现部分更新。
package snapshot

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

type state[T any] struct {
	version uint64
	items   map[string]T
}

// Store 写时复制的快照存储
type Store[T any] struct {
	mu  sync.Mutex
	cur atomic.Pointer[state[T]]
	key func(T) string
}

// New 创建存储，key 从条目中提取主键
func New[T any](key func(T) string) *Store[T] {
	s := &Store[T]{key: key}
	s.cur.Store(&state[T]{items: map[string]T{}})
	return s
}

// Get 按主键查找
func (s *Store[T]) Get(key string) (T, bool) {
	v, ok := s.cur.Load().items[key]
	return v, ok
}

// All 返回全部条目，按主键排序
func (s *Store[T]) All() []T {
	items := s.cur.Load().items
	keys := slices.Sorted(maps.Keys(items))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, items[k])
	}
	return out
}

// Len 条目数
func (s *Store[T]) Len() int {
	return len(s.cur.Load().items)
}

// Version 快照版本，每次写入递增
func (s *Store[T]) Version() uint64 {
	return s.cur.Load().version
}

// Replace 以 items 整体替换当前内容，主键重复时后者覆盖前者
func (s *Store[T]) Replace(items []T) uint64 {
	next := make(map[string]T, len(items))
	for _, it := range items {
		next[s.key(it)] = it
	}
	return s.publish(func(map[string]T) map[string]T { return next })
}

// Upsert 插入或覆盖单个条目
func (s *Store[T]) Upsert(item T) uint64 {
	return s.publish(func(old map[string]T) map[string]T {
		next := maps.Clone(old)
		next[s.key(item)] = item
		return next
	})
}

// Delete 删除条目，返回是否存在过
func (s *Store[T]) Delete(key string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	if _, ok := old.items[key]; !ok {
		return old.version, false
	}
	next := maps.Clone(old.items)
	delete(next, key)
	s.cur.Store(&state[T]{version: old.version + 1, items: next})
	return old.version + 1, true
}

func (s *Store[T]) publish(mutate func(map[string]T) map[string]T) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	v := old.version + 1
	s.cur.Store(&state[T]{version: v, items: mutate(old.items)})
	return v
}
