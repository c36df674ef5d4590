package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/omeyang/xflow/pkg/flowcontrol/xadmin"
	"github.com/omeyang/xflow/pkg/flowcontrol/xcond"
	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/flowcontrol/xgate"
	"github.com/omeyang/xflow/pkg/flowcontrol/xreport"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/flowcontrol/xrulesync"
	"github.com/omeyang/xflow/pkg/lifecycle/xrun"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动流控守护进程",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "配置文件路径（YAML/JSON）",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("加载配置失败: %v", err), 2)
			}
			return serve(ctx, cfg)
		},
	}
}

// daemon 守护进程的组件
type daemon struct {
	logger   xlog.Logger
	closeLog func() error
	engine   *xflowstat.Engine
	limits   *xresource.Store
	rules    *xdegrade.RuleStore
	breakers *xdegrade.Engine
	guard    *xgate.Guard
	syncer   *xrulesync.Syncer
	sources  []xrulesync.Source
	redis    redis.UniversalClient
	reporter *xreport.Reporter
	admin    *http.Server
	gateway  *http.Server
}

func newDaemon(cfg daemonConfig) (*daemon, error) {
	b := xlog.New().SetLevelString(cfg.Log.Level).SetFormat(cfg.Log.Format)
	if cfg.Log.File != "" {
		b = b.SetRotation(cfg.Log.File, cfg.Log.Rotation)
	}
	logger, closeLog, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	d := &daemon{logger: logger, closeLog: closeLog}
	if err := d.init(cfg); err != nil {
		return nil, errors.Join(err, d.close())
	}
	return d, nil
}

func (d *daemon) init(cfg daemonConfig) error {
	var err error
	d.engine, err = xflowstat.New(
		xflowstat.WithRingSeconds(cfg.Flow.RingSeconds),
		xflowstat.WithShards(cfg.Flow.Shards))
	if err != nil {
		return fmt.Errorf("build stat engine: %w", err)
	}
	d.limits = xresource.NewStore()
	d.rules = xdegrade.NewRuleStore()
	resolver, err := xresource.NewResolver(d.limits, xresource.WithChainCacheSize(cfg.Flow.ChainCacheSize))
	if err != nil {
		return fmt.Errorf("build resolver: %w", err)
	}

	metrics, err := xgate.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("build metrics: %w", err)
	}
	d.breakers = xdegrade.NewEngine(d.rules, d.engine,
		xdegrade.WithLogger(d.logger),
		xdegrade.WithOnStateChange(metrics.RecordTransition))
	d.guard, err = xgate.New(d.engine, resolver,
		xgate.WithDegrade(d.breakers),
		xgate.WithLogger(d.logger),
		xgate.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("build guard: %w", err)
	}

	d.syncer, err = xrulesync.NewSyncer(d.limits, d.rules, xrulesync.WithLogger(d.logger))
	if err != nil {
		return err
	}
	if err := d.initSources(cfg.Rules); err != nil {
		return err
	}

	d.reporter, err = xreport.New(d.engine,
		xreport.WithSpec(cfg.Report.Spec),
		xreport.WithTop(cfg.Report.Top),
		xreport.WithLogger(d.logger))
	if err != nil {
		return err
	}

	d.admin = &http.Server{
		Addr:              cfg.Server.AdminAddr,
		Handler:           xadmin.NewHandler(d.engine, d.limits, d.rules, d.breakers, xadmin.WithLogger(d.logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.Gateway.Addr != "" {
		h, err := gatewayHandler(d.guard, cfg.Gateway, d.logger)
		if err != nil {
			return err
		}
		d.gateway = &http.Server{Addr: cfg.Gateway.Addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	}
	return nil
}

func (d *daemon) initSources(cfg rulesConfig) error {
	srcOpts := []xrulesync.SourceOption{xrulesync.WithSourceLogger(d.logger)}
	if cfg.File != "" {
		src, err := xrulesync.NewFileSource(cfg.File, srcOpts...)
		if err != nil {
			return err
		}
		d.sources = append(d.sources, src)
	}
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		src, err := xrulesync.NewRedisSource(d.redis, append(srcOpts,
			xrulesync.WithKeyPrefix(cfg.Redis.KeyPrefix),
			xrulesync.WithResyncInterval(cfg.Redis.ResyncInterval))...)
		if err != nil {
			return err
		}
		d.sources = append(d.sources, src)
	}
	return nil
}

// gatewayHandler 反向代理到上游，经过流控中间件
func gatewayHandler(guard *xgate.Guard, cfg gatewayConfig, logger xlog.Logger) (http.Handler, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse gateway.upstream: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn(r.Context(), "upstream request failed", xlog.Err(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	opts := make([]xgate.MiddlewareOption, 0, len(cfg.Bypass))
	if len(cfg.Bypass) > 0 {
		conds := make([]xcond.Condition, 0, len(cfg.Bypass))
		for _, s := range cfg.Bypass {
			c, err := s.Condition()
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		opts = append(opts, xgate.WithBypass(conds...))
	}
	return xgate.HTTPMiddleware(guard, opts...)(proxy), nil
}

func (d *daemon) services(cfg daemonConfig) []xrun.NamedService {
	events := make(chan xrulesync.Event, 16)
	svcs := []xrun.NamedService{
		xrun.Named("rule-syncer", func(ctx context.Context) error { return d.syncer.Run(ctx, events) }),
		xrun.Named("admin", xrun.HTTPServer(d.admin, cfg.Server.ShutdownTimeout)),
		xrun.Named("reporter", d.reporter.Run),
		xrun.Named("breaker-prune", xrun.Ticker(cfg.Flow.PruneInterval, false, func(ctx context.Context) error {
			if n := d.breakers.Prune(); n > 0 {
				d.logger.Info(ctx, "breakers pruned", xlog.Count(int64(n)))
			}
			return nil
		})),
	}
	for i, src := range d.sources {
		svcs = append(svcs, xrun.Named(fmt.Sprintf("rule-source-%d", i), func(ctx context.Context) error {
			return src.Run(ctx, events)
		}))
	}
	if d.gateway != nil {
		svcs = append(svcs, xrun.Named("gateway", xrun.HTTPServer(d.gateway, cfg.Server.ShutdownTimeout)))
	}
	return svcs
}

func (d *daemon) close() error {
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.closeLog != nil {
		errs = append(errs, d.closeLog())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg daemonConfig) error {
	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	d.logger.Info(ctx, "xflowd starting",
		xlog.Component("xflowd"),
		slog.String("admin_addr", cfg.Server.AdminAddr),
		slog.String("gateway_addr", cfg.Gateway.Addr))
	err = xrun.Run(ctx, []xrun.Option{xrun.WithLogger(d.logger), xrun.WithName("xflowd")}, d.services(cfg)...)
	if err != nil && !errors.Is(err, xrun.ErrSignal) {
		d.logger.Error(ctx, "xflowd stopped with error", xlog.Err(err))
	} else {
		d.logger.Info(ctx, "xflowd stopped")
	}
	return errors.Join(err, d.close())
}
