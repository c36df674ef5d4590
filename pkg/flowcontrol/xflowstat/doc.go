// Package xflowstat 提供按秒分桶的资源流量统计与多级准入控制。
//
// # 数据结构
//
// 每个资源持有一个固定长度的秒级环（默认 600 个槽位，即 10 分钟），
// 槽位按 epoch 秒号取模定位。槽位记录的秒号与目标秒号不一致时视为过期：
// 写入前通过 CAS 整体替换为新槽位，读取时按零值处理，因此不需要后台清理。
//
// 资源表按 xxhash 分片，首次访问时原子地插入，同一资源 ID 只会有一个统计实例。
//
// # 准入
//
// [Engine.Admit] 依次检查资源链上每一级的并发与 QPS 上限：
//
//	adm := engine.Admit([]xflowstat.Level{
//	    {ResourceID: apiID, MaxQPS: 100},
//	    {ResourceID: serviceID, MaxConcurrency: 50},
//	    {ResourceID: xresource.GlobalID},
//	}, nowMs)
//	if !adm.Allowed() {
//	    // adm.BlockedResource() 给出触发拦截的资源
//	}
//	defer engine.Complete(adm, doneMs, elapsedMs, err == nil)
//
// 任一级拦截时，已占用的并发槽全部归还；通过时由 [Engine.Complete] 统一归还，
// Complete 可重复调用，只生效一次。
//
// 上限 <= 0 或 [Unlimited] 表示不限制。
package xflowstat
