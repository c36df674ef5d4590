package xresource

import "errors"

var (
	// ErrInvalidID 资源 ID 不是五段结构
	ErrInvalidID = errors.New("xresource: invalid resource id")

	// ErrInvalidType 未知的配置类型
	ErrInvalidType = errors.New("xresource: invalid config type")

	// ErrMissingDimension 配置类型要求的维度为空
	ErrMissingDimension = errors.New("xresource: missing dimension")

	// ErrInvalidDimension 维度中包含分隔符
	ErrInvalidDimension = errors.New("xresource: dimension contains delimiter")

	// ErrNegativeLimit QPS 或并发上限为负
	ErrNegativeLimit = errors.New("xresource: negative limit")

	// ErrInvalidCacheSize 链缓存容量非正
	ErrInvalidCacheSize = errors.New("xresource: cache size must be positive")
)
