// Package xconf 基于 koanf 的配置加载与热更新。
//
// 支持 YAML 与 JSON 两种格式，按文件扩展名自动识别（.yaml/.yml/.json），
// 也可通过 [NewFromBytes] 从内存数据创建（例如 ConfigMap 内容）。
//
// # 加载
//
//	cfg, err := xconf.New("/etc/xflow/xflowd.yaml")
//	var server ServerConfig
//	err = cfg.Unmarshal("server", &server)
//
// # 热更新
//
// [Watch] 监视配置文件所在目录（兼容编辑器与 ConfigMap 的 rename 写入方式），
// 防抖后重新加载。内容摘要（xxhash）未变化的事件不会触发回调：
//
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) { ... })
//	go w.Run(ctx) // ctx 取消后退出并关闭底层 fsnotify watcher
//
// 重载失败时保留旧配置，错误通过回调通知调用方。
package xconf
