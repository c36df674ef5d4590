package xlog

import (
	"log/slog"
	"time"
)

// =============================================================================
// 常用属性 Key 常量
// =============================================================================

const (
	// KeyError 错误字段
	KeyError = "error"

	// KeyStack 堆栈字段
	KeyStack = "stack"

	// KeyDuration 耗时字段
	KeyDuration = "duration"

	// KeyCount 计数字段
	KeyCount = "count"

	// KeyComponent 组件名称字段
	KeyComponent = "component"

	// KeyOperation 操作名称字段
	KeyOperation = "operation"

	// KeyResource 资源 ID 字段
	KeyResource = "resource"

	// KeyRule 规则 ID 字段
	KeyRule = "rule"

	// KeyState 熔断状态字段
	KeyState = "state"

	// KeyService 服务名字段
	KeyService = "service"

	// KeyReason 拦截原因字段
	KeyReason = "reason"
)

// =============================================================================
// 便捷属性构造函数
// =============================================================================

// Err 创建错误属性，err 为 nil 时返回空属性（会被 slog 忽略）
//
//	if err != nil {
//	    logger.Error(ctx, "load rules failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性（人类可读格式，如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 创建计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// Resource 创建资源 ID 属性
func Resource(id string) slog.Attr {
	return slog.String(KeyResource, id)
}

// Rule 创建规则 ID 属性
func Rule(id int64) slog.Attr {
	return slog.Int64(KeyRule, id)
}

// State 创建熔断状态属性
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Service 创建服务名属性
func Service(name string) slog.Attr {
	return slog.String(KeyService, name)
}

// Reason 创建拦截原因属性
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}
