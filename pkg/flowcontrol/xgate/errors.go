package xgate

import "errors"

var (
	// ErrNilEngine 准入引擎为空
	ErrNilEngine = errors.New("xgate: nil engine")

	// ErrNilResolver 资源解析器为空
	ErrNilResolver = errors.New("xgate: nil resolver")

	// ErrEmptyService 请求缺少服务名
	ErrEmptyService = errors.New("xgate: empty service")
)
