package xrulesync

import (
	"github.com/google/uuid"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
)

// Kind 事件类型
type Kind uint8

const (
	// KindSnapshot 全量替换
	KindSnapshot Kind = iota + 1
	// KindUpsert 增量写入
	KindUpsert
	// KindDelete 删除
	KindDelete
)

// String 返回事件类型名
func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindUpsert:
		return "upsert"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Target 事件作用的存储
type Target uint8

const (
	// TargetAll 限流配置与熔断规则
	TargetAll Target = iota
	// TargetRateLimits 仅限流配置
	TargetRateLimits
	// TargetDegradeRules 仅熔断规则
	TargetDegradeRules
)

func (t Target) rateLimits() bool { return t == TargetAll || t == TargetRateLimits }

func (t Target) degradeRules() bool { return t == TargetAll || t == TargetDegradeRules }

// Event 一次配置变更
type Event struct {
	ID     string
	Kind   Kind
	Target Target
	// Source 来源描述，用于日志
	Source       string
	RateLimits   []xresource.RateLimitConfig
	DegradeRules []xdegrade.Rule
}

// NewEvent 创建带唯一 ID 的事件
func NewEvent(kind Kind, target Target, source string) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Target: target, Source: source}
}

// Result 事件应用结果
type Result struct {
	Applied int
	Skipped int
	Deleted int
}
