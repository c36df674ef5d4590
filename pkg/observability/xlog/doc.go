// Package xlog 基于 log/slog 的结构化日志库，为 xflow 各组件提供统一的日志出口。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，后续 Set 操作被跳过）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("info").
//		SetFormat("json").
//		SetRotation("/var/log/xflowd.log", xlog.RotationConfig{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// Builder 方法：SetLevel、SetLevelString、SetFormat、SetOutput、SetRotation、
// SetAddSource、SetOnError、SetReplaceAttr。
//
// # 静默 Logger
//
// 组件的 logger 选项为空时统一回落到 [Discard]，调用方无需判空。
//
// # 日志级别
//
// Level 即 slog.Level。配置中的级别字符串经 [ParseLevel] 解析，
// Builder.SetLevelString 空串时保持 Info。
//
// # 便捷属性
//
// 通用：[Err]、[Duration]、[Component]、[Operation]、[Count]。
// 流控领域：[Resource]、[Rule]、[State]、[Service]、[Reason]。
//
// # 派生 Logger
//
// [Logger.With] 和 [Logger.WithGroup] 返回 [Logger] 接口，派生 logger 沿用父级的
// 级别与错误回调。
package xlog
