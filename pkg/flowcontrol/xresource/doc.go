// Package xresource 定义流控资源标识、限流配置存储与资源层级解析。
//
// # 资源 ID
//
// 资源 ID 由五个维度按 "^" 拼接：app^ip^node^service^path，缺省维度为空串。
//
//	xresource.BuildID("", "192.168.1.1", "", "xservice", "") // "^192.168.1.1^^xservice^"
//	xresource.GlobalID                                     // "^^_global^^"
//	xresource.ServiceDefaultID                             // "^^^service_default^"
//
// # 层级解析
//
// [Resolver.GetParentsTo] 给出一个资源需要额外检查的父级：
//
//  1. 带 path 且带 app 时，检查 app+service（若已配置）
//  2. 带 path 且带 ip 时，检查 ip+service（若已配置）
//  3. 带 path 时，检查 service（若 service 或 service_default 已配置）
//  4. 总是追加全局资源
//
// app+path+service 这一层不参与检查。
//
// [Resolver.Chain] 在父级之前加上接口自身（service+path），并附上每一级的有效上限，
// 结果按 (存储版本, 资源 ID) 缓存在 LRU 中，配置变更后自动失效。
package xresource
