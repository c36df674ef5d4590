package xresource

import (
	"errors"
	"fmt"

	"github.com/omeyang/xflow/internal/snapshot"
)

// Store 限流配置存储
//
// 读操作无锁，写操作整体发布新快照。停用的配置仍会保存，但 Get 视其为不存在。
type Store struct {
	s *snapshot.Store[RateLimitConfig]
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{s: snapshot.New(RateLimitConfig.ResourceKey)}
}

// Replace 整体替换全部配置
//
// 任一配置校验失败时不做任何修改。软删除的配置会被忽略。
func (s *Store) Replace(configs []RateLimitConfig) error {
	var errs []error
	keep := make([]RateLimitConfig, 0, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config id=%d: %w", c.ID, err))
			continue
		}
		if !c.Deleted {
			keep = append(keep, c)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.s.Replace(keep)
	return nil
}

// Upsert 插入或更新单个配置，软删除的配置转为删除
func (s *Store) Upsert(c RateLimitConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Deleted {
		s.s.Delete(c.ResourceKey())
		return nil
	}
	s.s.Upsert(c)
	return nil
}

// Delete 删除资源的配置，返回是否存在过
func (s *Store) Delete(resourceID string) bool {
	_, ok := s.s.Delete(resourceID)
	return ok
}

// Get 返回资源的生效配置
func (s *Store) Get(resourceID string) (RateLimitConfig, bool) {
	c, ok := s.s.Get(resourceID)
	if !ok || !c.IsEnabled() {
		return RateLimitConfig{}, false
	}
	return c, true
}

// Has 资源是否有生效配置
func (s *Store) Has(resourceID string) bool {
	_, ok := s.Get(resourceID)
	return ok
}

// All 返回全部配置（含停用），按资源 ID 排序
func (s *Store) All() []RateLimitConfig {
	return s.s.All()
}

// Len 配置条数
func (s *Store) Len() int {
	return s.s.Len()
}

// Version 存储版本，每次写入递增
func (s *Store) Version() uint64 {
	return s.s.Version()
}
