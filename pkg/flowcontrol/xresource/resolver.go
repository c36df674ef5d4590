package xresource

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultChainCacheSize 默认链缓存容量
const DefaultChainCacheSize = 4096

// Limit 资源链上一级的有效上限
type Limit struct {
	ResourceID     string
	MaxQPS         int64
	MaxConcurrency int64
	// Configured 是否有配置（全局资源无配置时仍在链上，只做统计）
	Configured bool
	// ConfigID 生效配置的 ID，服务默认回落时为默认配置的 ID
	ConfigID int64
	Response Response
}

type chainKey struct {
	version uint64
	id      string
}

// Resolver 资源层级解析器
type Resolver struct {
	store *Store
	cache *lru.Cache[chainKey, []Limit]
}

// ResolverOption 解析器选项
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	cacheSize int
}

// WithChainCacheSize 设置链缓存容量
func WithChainCacheSize(n int) ResolverOption {
	return func(o *resolverOptions) {
		o.cacheSize = n
	}
}

// NewResolver 创建解析器
func NewResolver(store *Store, opts ...ResolverOption) (*Resolver, error) {
	o := &resolverOptions{cacheSize: DefaultChainCacheSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.cacheSize <= 0 {
		return nil, ErrInvalidCacheSize
	}
	cache, err := lru.New[chainKey, []Limit](o.cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, cache: cache}, nil
}

// Store 返回配置存储
func (r *Resolver) Store() *Store {
	return r.store
}

// GetParentsTo 返回资源需要额外检查的父级资源 ID，末尾总是全局资源
func (r *Resolver) GetParentsTo(c Components) []string {
	parents := make([]string, 0, 4)
	if c.Path != "" {
		if c.App != "" {
			if id := BuildID(c.App, "", "", c.Service, ""); r.store.Has(id) {
				parents = append(parents, id)
			}
		}
		if c.IP != "" {
			if id := BuildID("", c.IP, "", c.Service, ""); r.store.Has(id) {
				parents = append(parents, id)
			}
		}
		if id := c.ServiceID(); r.store.Has(id) || r.store.Has(ServiceDefaultID) {
			parents = append(parents, id)
		}
	}
	return append(parents, GlobalID)
}

// LimitsFor 返回资源的有效上限
//
// 服务级资源没有独立配置时回落到服务默认配置；全局资源没有配置时返回不限制的上限。
func (r *Resolver) LimitsFor(resourceID string) (Limit, bool) {
	if c, ok := r.store.Get(resourceID); ok {
		return limitOf(resourceID, c), true
	}
	if isServiceID(resourceID) {
		if c, ok := r.store.Get(ServiceDefaultID); ok {
			return limitOf(resourceID, c), true
		}
	}
	if resourceID == GlobalID {
		return Limit{ResourceID: GlobalID}, true
	}
	return Limit{}, false
}

// Chain 返回请求需要依次检查的资源链：接口自身（若已配置）+ 父级
//
// 返回的切片被缓存共享，调用方不得修改。
func (r *Resolver) Chain(c Components) []Limit {
	key := chainKey{version: r.store.Version(), id: c.ID()}
	if v, ok := r.cache.Get(key); ok {
		return v
	}

	chain := make([]Limit, 0, 5)
	if c.Service != "" && c.Path != "" {
		if l, ok := r.LimitsFor(c.APIID()); ok {
			chain = append(chain, l)
		}
	}
	for _, id := range r.GetParentsTo(c) {
		if l, ok := r.LimitsFor(id); ok {
			chain = append(chain, l)
		}
	}
	r.cache.Add(key, chain)
	return chain
}

func limitOf(resourceID string, c RateLimitConfig) Limit {
	return Limit{
		ResourceID:     resourceID,
		MaxQPS:         c.QPS,
		MaxConcurrency: c.Concurrency,
		Configured:     true,
		ConfigID:       c.ID,
		Response:       c.Response(),
	}
}

// isServiceID 只有 service 维度且不是服务默认资源
func isServiceID(id string) bool {
	c, err := ParseID(id)
	if err != nil {
		return false
	}
	return c.App == "" && c.IP == "" && c.Node == "" && c.Path == "" &&
		c.Service != "" && c.Service != ServiceDefault
}
