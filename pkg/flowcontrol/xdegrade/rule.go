package xdegrade

import (
	"fmt"

	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
)

// RuleType 规则作用层级
type RuleType int

const (
	// TypeServiceDefault 服务默认规则，对没有独立规则的服务生效
	TypeServiceDefault RuleType = 1
	// TypeService 服务级规则
	TypeService RuleType = 2
	// TypeAPI 接口级规则
	TypeAPI RuleType = 3
)

// Strategy 熔断判定策略
type Strategy int

const (
	// StrategyErrorRatio 失败率达到 RatioThreshold
	StrategyErrorRatio Strategy = 1
	// StrategyErrorCount 失败数达到 ExceptionCount
	StrategyErrorCount Strategy = 2
)

// RecoveryStrategy 恢复策略
type RecoveryStrategy int

const (
	// RecoveryImmediate 立即恢复
	RecoveryImmediate RecoveryStrategy = 1
	// RecoveryGradual 渐进恢复
	RecoveryGradual RecoveryStrategy = 2
	// RecoveryAttempt 探测恢复
	RecoveryAttempt RecoveryStrategy = 3
)

// String 返回策略名
func (s RecoveryStrategy) String() string {
	switch s {
	case RecoveryImmediate:
		return "immediate"
	case RecoveryGradual:
		return "gradual"
	case RecoveryAttempt:
		return "attempt"
	default:
		return fmt.Sprintf("RecoveryStrategy(%d)", int(s))
	}
}

// Rule 熔断规则，时间类字段单位为秒
type Rule struct {
	ID         int64    `json:"id" koanf:"id"`
	ResourceID string   `json:"resourceId,omitempty" koanf:"resource_id"`
	Type       RuleType `json:"type" koanf:"type"`
	Service    string   `json:"service,omitempty" koanf:"service"`
	Path       string   `json:"path,omitempty" koanf:"path"`

	Strategy        Strategy `json:"strategy" koanf:"strategy"`
	RatioThreshold  float64  `json:"ratioThreshold,omitempty" koanf:"ratio_threshold"`
	ExceptionCount  int64    `json:"exceptionCount,omitempty" koanf:"exception_count"`
	MinRequestCount int64    `json:"minRequestCount" koanf:"min_request_count"`
	StatInterval    int64    `json:"statInterval" koanf:"stat_interval"`
	TimeWindow      int64    `json:"timeWindow" koanf:"time_window"`

	RecoveryStrategy   RecoveryStrategy `json:"recoveryStrategy,omitempty" koanf:"recovery_strategy"`
	RecoveryTimeWindow int64            `json:"recoveryTimeWindow,omitempty" koanf:"recovery_time_window"`
	// ProbeCount 探测恢复放行的请求数，默认 1
	ProbeCount int64 `json:"probeCount,omitempty" koanf:"probe_count"`

	ResponseStatus      int    `json:"responseStatus,omitempty" koanf:"response_status"`
	ResponseContentType string `json:"responseContentType,omitempty" koanf:"response_content_type"`
	ResponseContent     string `json:"responseContent,omitempty" koanf:"response_content"`

	// Enabled 为 nil 时视为启用
	Enabled *bool `json:"enable,omitempty" koanf:"enabled"`
	Deleted bool  `json:"isDeleted,omitempty" koanf:"deleted"`
}

// IsEnabled 规则是否启用
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Response 熔断时的响应
func (r Rule) Response() xresource.Response {
	return xresource.Response{Status: r.ResponseStatus, ContentType: r.ResponseContentType, Content: r.ResponseContent}
}

// ResourceKey 规则对应的资源 ID
func (r Rule) ResourceKey() string {
	if r.ResourceID != "" {
		return r.ResourceID
	}
	switch r.Type {
	case TypeServiceDefault:
		return xresource.ServiceDefaultID
	case TypeService:
		return xresource.BuildID("", "", "", r.Service, "")
	case TypeAPI:
		return xresource.BuildID("", "", "", r.Service, r.Path)
	default:
		return ""
	}
}

// Validate 校验规则
func (r Rule) Validate() error {
	switch r.Type {
	case TypeServiceDefault:
	case TypeService:
		if r.Service == "" && r.ResourceID == "" {
			return fmt.Errorf("%w: service rule id=%d", ErrMissingDimension, r.ID)
		}
	case TypeAPI:
		if (r.Service == "" || r.Path == "") && r.ResourceID == "" {
			return fmt.Errorf("%w: api rule id=%d", ErrMissingDimension, r.ID)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidType, int(r.Type))
	}
	if r.ResourceID != "" {
		if _, err := xresource.ParseID(r.ResourceID); err != nil {
			return err
		}
	}

	switch r.Strategy {
	case StrategyErrorRatio:
		if r.RatioThreshold <= 0 || r.RatioThreshold > 1 {
			return fmt.Errorf("%w: ratio threshold %v", ErrInvalidStrategy, r.RatioThreshold)
		}
	case StrategyErrorCount:
		if r.ExceptionCount <= 0 {
			return fmt.Errorf("%w: exception count %d", ErrInvalidStrategy, r.ExceptionCount)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidStrategy, int(r.Strategy))
	}

	if r.StatInterval <= 0 || r.TimeWindow <= 0 || r.MinRequestCount < 0 {
		return fmt.Errorf("%w: statInterval=%d timeWindow=%d minRequestCount=%d",
			ErrInvalidWindow, r.StatInterval, r.TimeWindow, r.MinRequestCount)
	}

	switch r.recovery() {
	case RecoveryImmediate, RecoveryAttempt:
	case RecoveryGradual:
		if r.RecoveryTimeWindow <= 0 {
			return fmt.Errorf("%w: gradual recovery needs recoveryTimeWindow", ErrInvalidRecovery)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRecovery, int(r.RecoveryStrategy))
	}
	if r.ProbeCount < 0 {
		return fmt.Errorf("%w: probe count %d", ErrInvalidRecovery, r.ProbeCount)
	}
	return nil
}

// recovery 未设置时为立即恢复
func (r Rule) recovery() RecoveryStrategy {
	if r.RecoveryStrategy == 0 {
		return RecoveryImmediate
	}
	return r.RecoveryStrategy
}

func (r Rule) probeCount() int64 {
	if r.ProbeCount <= 0 {
		return 1
	}
	return r.ProbeCount
}

// tripped 判断统计是否超过阈值
func (r Rule) tripped(completed, errs int64) bool {
	if completed == 0 || completed < r.MinRequestCount {
		return false
	}
	switch r.Strategy {
	case StrategyErrorRatio:
		return float64(errs)/float64(completed) >= r.RatioThreshold
	case StrategyErrorCount:
		return errs >= r.ExceptionCount
	default:
		return false
	}
}
