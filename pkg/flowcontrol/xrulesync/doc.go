// Package xrulesync 把限流配置和熔断规则从外部来源同步到内存存储。
//
// 来源（FileSource、RedisSource）产生 Event，Syncer 在单个后台任务中按序应用：
//
//	events := make(chan xrulesync.Event, 16)
//	syncer, _ := xrulesync.NewSyncer(limits, rules, xrulesync.WithLogger(logger))
//	go source.Run(ctx, events)
//	syncer.Run(ctx, events)
//
// 非法条目记录日志后跳过，不影响同一事件中的其他条目；
// 软删除（isDeleted）的条目按删除处理。
package xrulesync
