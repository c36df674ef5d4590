// Package xgate 把熔断、资源解析和多级准入串成一次请求的入口与出口。
//
// 一次请求的流程：
//
//  1. 熔断判定（xdegrade），熔断中直接拒绝
//  2. 解析资源链（xresource），熔断器所在资源不在链上时以不限制的一级加入统计
//  3. 多级准入（xflowstat）
//  4. 请求完成后 Exit 记录耗时、归还并发槽、驱动熔断判定
//
// 基本用法：
//
//	entry, err := guard.Enter(ctx, xgate.Request{Service: "order", Path: "/create"})
//	if err != nil {
//	    return err
//	}
//	if !entry.Allowed() {
//	    // 使用 entry.Response() 返回拒绝响应
//	}
//	defer entry.Exit(ctx, time.Since(start), err == nil)
//
// HTTPMiddleware 提供 net/http 中间件形式。
package xgate
