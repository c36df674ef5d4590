package main

import (
	"fmt"
	"time"

	"github.com/omeyang/xflow/pkg/config/xconf"
	"github.com/omeyang/xflow/pkg/flowcontrol/xcond"
	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/flowcontrol/xreport"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/flowcontrol/xrulesync"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// daemonConfig 守护进程配置
type daemonConfig struct {
	Server  serverConfig  `koanf:"server"`
	Log     logConfig     `koanf:"log"`
	Flow    flowConfig    `koanf:"flow"`
	Gateway gatewayConfig `koanf:"gateway"`
	Rules   rulesConfig   `koanf:"rules"`
	Report  reportConfig  `koanf:"report"`
}

type serverConfig struct {
	AdminAddr       string        `koanf:"admin_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type logConfig struct {
	Level    string              `koanf:"level"`
	Format   string              `koanf:"format"`
	File     string              `koanf:"file"`
	Rotation xlog.RotationConfig `koanf:"rotation"`
}

type flowConfig struct {
	RingSeconds    int           `koanf:"ring_seconds"`
	Shards         int           `koanf:"shards"`
	ChainCacheSize int           `koanf:"chain_cache_size"`
	PruneInterval  time.Duration `koanf:"prune_interval"`
}

// gatewayConfig 反向代理配置，Addr 为空时不启动代理
type gatewayConfig struct {
	Addr     string       `koanf:"addr"`
	Upstream string       `koanf:"upstream"`
	Bypass   []xcond.Config `koanf:"bypass"`
}

type rulesConfig struct {
	File  string      `koanf:"file"`
	Redis redisConfig `koanf:"redis"`
}

type redisConfig struct {
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	KeyPrefix      string        `koanf:"key_prefix"`
	ResyncInterval time.Duration `koanf:"resync_interval"`
}

type reportConfig struct {
	Spec string `koanf:"spec"`
	Top  int    `koanf:"top"`
}

func defaultConfig() daemonConfig {
	return daemonConfig{
		Server: serverConfig{AdminAddr: ":9090", ShutdownTimeout: 10 * time.Second},
		Log:    logConfig{Level: "info", Format: "text"},
		Flow: flowConfig{
			RingSeconds:    xflowstat.DefaultRingSeconds,
			Shards:         xflowstat.DefaultShards,
			ChainCacheSize: xresource.DefaultChainCacheSize,
			PruneInterval:  5 * time.Minute,
		},
		Rules: rulesConfig{Redis: redisConfig{
			KeyPrefix:      xrulesync.DefaultKeyPrefix,
			ResyncInterval: xrulesync.DefaultResyncInterval,
		}},
		Report: reportConfig{Spec: xreport.DefaultSpec, Top: xreport.DefaultTop},
	}
}

// loadConfig 读取配置文件，未出现的键保留默认值；path 为空时返回默认配置
func loadConfig(path string) (daemonConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	c, err := xconf.New(path)
	if err != nil {
		return cfg, err
	}
	if err := c.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c daemonConfig) validate() error {
	if c.Server.AdminAddr == "" {
		return fmt.Errorf("server.admin_addr is required")
	}
	if c.Gateway.Addr != "" && c.Gateway.Upstream == "" {
		return fmt.Errorf("gateway.upstream is required when gateway.addr is set")
	}
	if c.Rules.File == "" && c.Rules.Redis.Addr == "" {
		return fmt.Errorf("one of rules.file or rules.redis.addr is required")
	}
	for i, s := range c.Gateway.Bypass {
		if _, err := s.Condition(); err != nil {
			return fmt.Errorf("gateway.bypass[%d]: %w", i, err)
		}
	}
	return nil
}
