package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xflow/pkg/flowcontrol/xrulesync"
)

func checkRulesCommand() *cli.Command {
	return &cli.Command{
		Name:      "check-rules",
		Usage:     "校验规则文件",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("需要且只需要一个规则文件参数", 2)
			}
			return checkRules(cmd.Root().Writer, cmd.Args().First())
		},
	}
}

// checkRules 逐条校验规则，输出统计；存在非法条目时返回退出码 2
func checkRules(w io.Writer, path string) error {
	ev, err := xrulesync.LoadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("读取规则文件失败: %v", err), 2)
	}

	invalid := 0
	deleted := 0
	for _, c := range ev.RateLimits {
		if c.Deleted {
			deleted++
			continue
		}
		if err := c.Validate(); err != nil {
			invalid++
			fmt.Fprintf(w, "rate_limits id=%d: %v\n", c.ID, err)
		}
	}
	for _, r := range ev.DegradeRules {
		if r.Deleted {
			deleted++
			continue
		}
		if err := r.Validate(); err != nil {
			invalid++
			fmt.Fprintf(w, "degrade_rules id=%d: %v\n", r.ID, err)
		}
	}
	fmt.Fprintf(w, "rate_limits=%d degrade_rules=%d deleted=%d invalid=%d\n",
		len(ev.RateLimits), len(ev.DegradeRules), deleted, invalid)
	if invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d 条规则非法", invalid), 2)
	}
	return nil
}
