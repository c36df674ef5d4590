// xflowd 是流控守护进程：作为反向代理对上游请求执行限流与熔断，
// 并提供只读的监控接口。
//
// 用法:
//
//	xflowd serve -c /etc/xflow/xflowd.yaml
//	xflowd check-rules rules.yaml
//
// 退出码:
//
//	0: 正常退出（包括收到 SIGINT/SIGTERM）
//	1: 运行失败
//	2: 规则文件校验不通过或参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xflow/pkg/lifecycle/xrun"
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xflowd",
		Usage:   "API 网关流控守护进程",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Commands: []*cli.Command{
			serveCommand(),
			checkRulesCommand(),
		},
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	if err := createApp().Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, xrun.ErrSignal) {
			return 0
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
