package xrulesync

import "errors"

var (
	// ErrNilStore 存储为空
	ErrNilStore = errors.New("xrulesync: nil store")

	// ErrNilClient Redis 客户端为空
	ErrNilClient = errors.New("xrulesync: nil redis client")

	// ErrEmptyPath 规则文件路径为空
	ErrEmptyPath = errors.New("xrulesync: empty path")
)
