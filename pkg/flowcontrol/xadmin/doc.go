// Package xadmin 提供只读的流控监控 HTTP 接口。
//
// 路由：
//
//	GET /flow/stats?resource=&start=&end=&bucket=   时间窗口统计，时间为毫秒时间戳，bucket 为秒
//	GET /flow/ratelimits                            当前限流配置
//	GET /flow/degrade-rules                         当前熔断规则
//	GET /flow/breakers                              熔断器状态
//	GET /flow/concurrency?resource=                 当前并发数
//	GET /healthz                                    存活检查
package xadmin
