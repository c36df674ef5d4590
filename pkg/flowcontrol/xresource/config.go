package xresource

import (
	"fmt"
	"strings"
)

// ConfigType 限流配置的作用层级
type ConfigType int

const (
	// TypeGlobal 全局
	TypeGlobal ConfigType = 1
	// TypeServiceDefault 服务默认，对没有独立配置的服务生效
	TypeServiceDefault ConfigType = 2
	// TypeService 单个服务
	TypeService ConfigType = 3
	// TypeAPI 单个接口（service+path）
	TypeAPI ConfigType = 4
	// TypeApp 调用方应用（app+service）
	TypeApp ConfigType = 5
	// TypeIP 调用方 IP（ip+service）
	TypeIP ConfigType = 6
)

// String 返回层级名
func (t ConfigType) String() string {
	switch t {
	case TypeGlobal:
		return "global"
	case TypeServiceDefault:
		return "service_default"
	case TypeService:
		return "service"
	case TypeAPI:
		return "api"
	case TypeApp:
		return "app"
	case TypeIP:
		return "ip"
	default:
		return fmt.Sprintf("ConfigType(%d)", int(t))
	}
}

// Response 被拦截时返回给调用方的内容，零值表示使用默认响应
type Response struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// IsZero 是否未配置
func (r Response) IsZero() bool {
	return r.Status == 0 && r.ContentType == "" && r.Content == ""
}

// RateLimitConfig 限流配置
//
// ResourceID 为空时由 Type 与各维度推导。QPS、Concurrency 为 0 表示该维度不限制。
type RateLimitConfig struct {
	ID          int64      `json:"id" koanf:"id"`
	ResourceID  string     `json:"resourceId,omitempty" koanf:"resource_id"`
	Type        ConfigType `json:"type" koanf:"type"`
	App         string     `json:"app,omitempty" koanf:"app"`
	IP          string     `json:"ip,omitempty" koanf:"ip"`
	Service     string     `json:"service,omitempty" koanf:"service"`
	Path        string     `json:"path,omitempty" koanf:"path"`
	QPS         int64      `json:"qps" koanf:"qps"`
	Concurrency int64      `json:"concurrents" koanf:"concurrency"`

	// Enabled 为 nil 时视为启用
	Enabled *bool `json:"enable,omitempty" koanf:"enabled"`
	// Deleted 软删除标记，同步时转换为删除
	Deleted bool `json:"isDeleted,omitempty" koanf:"deleted"`

	ResponseStatus      int    `json:"responseStatus,omitempty" koanf:"response_status"`
	ResponseContentType string `json:"responseContentType,omitempty" koanf:"response_content_type"`
	ResponseContent     string `json:"responseContent,omitempty" koanf:"response_content"`
}

// IsEnabled 配置是否启用
func (c RateLimitConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Response 拦截响应
func (c RateLimitConfig) Response() Response {
	return Response{Status: c.ResponseStatus, ContentType: c.ResponseContentType, Content: c.ResponseContent}
}

// ResourceKey 配置对应的资源 ID
func (c RateLimitConfig) ResourceKey() string {
	if c.ResourceID != "" {
		return c.ResourceID
	}
	switch c.Type {
	case TypeGlobal:
		return GlobalID
	case TypeServiceDefault:
		return ServiceDefaultID
	case TypeService:
		return BuildID("", "", "", c.Service, "")
	case TypeAPI:
		return BuildID("", "", "", c.Service, c.Path)
	case TypeApp:
		return BuildID(c.App, "", "", c.Service, "")
	case TypeIP:
		return BuildID("", c.IP, "", c.Service, "")
	default:
		return ""
	}
}

// Validate 校验配置
func (c RateLimitConfig) Validate() error {
	for _, d := range []string{c.App, c.IP, c.Service, c.Path} {
		if strings.Contains(d, Delimiter) {
			return fmt.Errorf("%w: %q", ErrInvalidDimension, d)
		}
	}
	if c.QPS < 0 || c.Concurrency < 0 {
		return fmt.Errorf("%w: qps=%d concurrency=%d", ErrNegativeLimit, c.QPS, c.Concurrency)
	}

	var required []string
	switch c.Type {
	case TypeGlobal, TypeServiceDefault:
	case TypeService:
		required = []string{c.Service}
	case TypeAPI:
		required = []string{c.Service, c.Path}
	case TypeApp:
		required = []string{c.App, c.Service}
	case TypeIP:
		required = []string{c.IP, c.Service}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidType, int(c.Type))
	}
	if c.ResourceID != "" {
		if _, err := ParseID(c.ResourceID); err != nil {
			return err
		}
		return nil
	}
	for _, d := range required {
		if d == "" {
			return fmt.Errorf("%w: %s config id=%d", ErrMissingDimension, c.Type, c.ID)
		}
	}
	return nil
}
