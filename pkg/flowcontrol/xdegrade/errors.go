package xdegrade

import "errors"

var (
	// ErrInvalidType 未知的规则类型
	ErrInvalidType = errors.New("xdegrade: invalid rule type")

	// ErrMissingDimension 规则类型要求的维度为空
	ErrMissingDimension = errors.New("xdegrade: missing dimension")

	// ErrInvalidStrategy 未知的熔断策略或阈值无效
	ErrInvalidStrategy = errors.New("xdegrade: invalid strategy")

	// ErrInvalidRecovery 未知的恢复策略或恢复窗口无效
	ErrInvalidRecovery = errors.New("xdegrade: invalid recovery")

	// ErrInvalidWindow 统计窗口或熔断时长非正
	ErrInvalidWindow = errors.New("xdegrade: invalid window")
)
