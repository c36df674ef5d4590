package xresource

import (
	"fmt"
	"strings"
)

const (
	// Delimiter 资源 ID 维度分隔符
	Delimiter = "^"

	// GlobalNode 全局资源的 node 维度
	GlobalNode = "_global"

	// ServiceDefault 服务默认配置使用的 service 维度
	ServiceDefault = "service_default"
)

var (
	// GlobalID 全局资源 ID
	GlobalID = BuildID("", "", GlobalNode, "", "")

	// ServiceDefaultID 服务默认配置的资源 ID
	ServiceDefaultID = BuildID("", "", "", ServiceDefault, "")
)

// Components 资源 ID 的五个维度
type Components struct {
	App     string `json:"app,omitempty"`
	IP      string `json:"ip,omitempty"`
	Node    string `json:"node,omitempty"`
	Service string `json:"service,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ID 拼接资源 ID
func (c Components) ID() string {
	return BuildID(c.App, c.IP, c.Node, c.Service, c.Path)
}

// ServiceID 只保留 service 维度的资源 ID
func (c Components) ServiceID() string {
	return BuildID("", "", "", c.Service, "")
}

// APIID service+path 资源 ID
func (c Components) APIID() string {
	return BuildID("", "", "", c.Service, c.Path)
}

// BuildID 按 app^ip^node^service^path 拼接资源 ID
func BuildID(app, ip, node, service, path string) string {
	var b strings.Builder
	b.Grow(len(app) + len(ip) + len(node) + len(service) + len(path) + 4)
	b.WriteString(app)
	b.WriteString(Delimiter)
	b.WriteString(ip)
	b.WriteString(Delimiter)
	b.WriteString(node)
	b.WriteString(Delimiter)
	b.WriteString(service)
	b.WriteString(Delimiter)
	b.WriteString(path)
	return b.String()
}

// ParseID 解析资源 ID
func ParseID(id string) (Components, error) {
	parts := strings.Split(id, Delimiter)
	if len(parts) != 5 {
		return Components{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return Components{App: parts[0], IP: parts[1], Node: parts[2], Service: parts[3], Path: parts[4]}, nil
}
