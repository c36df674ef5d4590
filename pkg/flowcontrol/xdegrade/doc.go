// Package xdegrade 实现基于资源统计的熔断降级。
//
// 熔断规则按 接口 → 服务 → 服务默认 的优先级匹配，每个被匹配的资源持有一个
// 独立的熔断器，状态沿用 gobreaker 的 closed / open / half-open 三态：
//
//	closed ──(窗口内失败率或失败数超阈值)──▶ open
//	open ──(TimeWindow 秒后的首个请求)──▶ half-open
//	half-open ──(按恢复策略)──▶ closed 或 open
//
// 判定在请求完成时进行（[Engine.OnComplete]），统计窗口为最近 StatInterval 秒，
// 且只统计最近一次闭合之后的数据。样本数（完成请求数）低于 MinRequestCount 时不做判定。
//
// 恢复策略：
//   - RecoveryImmediate: 进入 half-open 即闭合
//   - RecoveryAttempt: 放行 ProbeCount 个探测请求，全部成功则闭合，任一失败重新打开
//   - RecoveryGradual: 在 RecoveryTimeWindow 秒内按 已过时间/恢复窗口 的比例随机放行，
//     期间再次超阈值则重新打开，窗口结束后闭合
//
// 熔断判定内部出现 panic 时放行请求（fail-open），并记录堆栈日志。
package xdegrade
