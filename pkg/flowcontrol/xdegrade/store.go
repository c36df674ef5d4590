package xdegrade

import (
	"errors"
	"fmt"

	"github.com/omeyang/xflow/internal/snapshot"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
)

// RuleStore 熔断规则存储，语义与 xresource.Store 一致
type RuleStore struct {
	s *snapshot.Store[Rule]
}

// NewRuleStore 创建空存储
func NewRuleStore() *RuleStore {
	return &RuleStore{s: snapshot.New(Rule.ResourceKey)}
}

// Replace 整体替换全部规则，任一规则无效时不做修改
func (s *RuleStore) Replace(rules []Rule) error {
	var errs []error
	keep := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule id=%d: %w", r.ID, err))
			continue
		}
		if !r.Deleted {
			keep = append(keep, r)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.s.Replace(keep)
	return nil
}

// Upsert 插入或更新规则，软删除的规则转为删除
func (s *RuleStore) Upsert(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Deleted {
		s.s.Delete(r.ResourceKey())
		return nil
	}
	s.s.Upsert(r)
	return nil
}

// Delete 删除资源的规则，返回是否存在过
func (s *RuleStore) Delete(resourceID string) bool {
	_, ok := s.s.Delete(resourceID)
	return ok
}

// Get 返回资源的生效规则
func (s *RuleStore) Get(resourceID string) (Rule, bool) {
	r, ok := s.s.Get(resourceID)
	if !ok || !r.IsEnabled() {
		return Rule{}, false
	}
	return r, true
}

// All 返回全部规则（含停用）
func (s *RuleStore) All() []Rule {
	return s.s.All()
}

// Len 规则条数
func (s *RuleStore) Len() int {
	return s.s.Len()
}

// Version 存储版本
func (s *RuleStore) Version() uint64 {
	return s.s.Version()
}

// Match 为请求匹配规则，返回规则与熔断器所在的资源 ID
//
// 优先级：接口规则 → 服务规则 → 服务默认规则。服务默认规则的熔断器按服务隔离。
func (s *RuleStore) Match(service, path string) (Rule, string, bool) {
	c := xresource.Components{Service: service, Path: path}
	if path != "" {
		if r, ok := s.Get(c.APIID()); ok {
			return r, c.APIID(), true
		}
	}
	if r, ok := s.Get(c.ServiceID()); ok {
		return r, c.ServiceID(), true
	}
	if r, ok := s.Get(xresource.ServiceDefaultID); ok {
		return r, c.ServiceID(), true
	}
	return Rule{}, "", false
}
