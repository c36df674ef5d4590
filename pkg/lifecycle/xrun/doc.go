// Package xrun 管理 xflowd 进程内多个后台服务的并发运行与协调关闭。
//
// 基于 errgroup：任一服务返回错误、收到系统信号或父 context 取消时，
// 其余服务都会收到取消信号，[Group.Wait] 返回第一个有意义的退出原因。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.Named("admin", xrun.HTTPServer(adminServer, 5*time.Second)),
//	    xrun.Named("rules", syncer.Run),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
package xrun
