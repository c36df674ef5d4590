package xrun

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// Service 可由 Group 管理的服务：阻塞运行直到 ctx 取消或出错。
type Service func(ctx context.Context) error

// NamedService 带名称的服务，名称用于启停日志。
type NamedService struct {
	Name string
	Run  Service
}

// Named 为服务附加名称。
func Named(name string, run Service) NamedService {
	return NamedService{Name: name, Run: run}
}

// Group 基于 errgroup + context 管理多个服务的并发运行和协调关闭。
//
// Go、Cancel 可并发调用，Wait 应仅调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	logger   xlog.Logger
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 context 在任一服务出错或 Cancel 后取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		logger:   o.logger.With(xlog.Component(o.name)),
		opts:     o,
	}, egCtx
}

// Go 启动一个具名服务。服务返回非 nil 错误（context.Canceled 除外）时记录 Warn 日志，
// 并触发其余服务的取消。
func (g *Group) Go(name string, fn Service) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		g.logger.Debug(g.ctx, "service starting", slog.String("service", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Warn(g.ctx, "service exited with error", slog.String("service", name), xlog.Err(err))
		} else {
			g.logger.Debug(g.ctx, "service stopped", slog.String("service", name))
		}
		return err
	})
}

// Wait 等待所有服务退出。
//
// 服务因 Group 取消而返回的 context.Canceled 会被过滤；若取消带有显式原因
// （如 *SignalError），返回该原因。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()

	if err == nil || errors.Is(err, context.Canceled) {
		if g.causeCtx.Err() == nil {
			// 取消并非来自 Group：服务自身返回了 Canceled
			return err
		}
		if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	}
	return err
}

// Cancel 以 cause 为原因取消所有服务，cause 不应包装 context.Canceled。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Context 返回 Group 的 context。
func (g *Group) Context() context.Context {
	return g.ctx
}

// Run 运行一组具名服务并监听系统信号，直到全部退出。
//
// 收到信号时返回 *SignalError（errors.Is(err, ErrSignal) 成立）。
func Run(ctx context.Context, opts []Option, services ...NamedService) error {
	g, _ := NewGroup(ctx, opts...)

	if !g.opts.noSignalHandler {
		signals := g.opts.signals
		if len(signals) == 0 {
			signals = DefaultSignals()
		}
		g.Go("signal", func(ctx context.Context) error {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, signals...)
			defer signal.Stop(ch)
			return waitSignal(ctx, g, ch)
		})
	}

	for _, svc := range services {
		g.Go(svc.Name, svc.Run)
	}
	return g.Wait()
}

// waitSignal 等待第一个信号并以 *SignalError 取消 Group
func waitSignal(ctx context.Context, g *Group, ch <-chan os.Signal) error {
	select {
	case sig := <-ch:
		g.logger.Info(ctx, "received signal", slog.String("signal", sig.String()))
		g.Cancel(&SignalError{Signal: sig})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPServerInterface 可优雅关闭的 HTTP 服务器，*http.Server 天然满足。
type HTTPServerInterface interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 将 http.Server 包装为支持优雅关闭的服务。
//
// ctx 取消后调用 Shutdown，shutdownTimeout <= 0 表示等待所有在途请求结束。
func HTTPServer(server HTTPServerInterface, shutdownTimeout time.Duration) Service {
	return func(ctx context.Context) error {
		if server == nil {
			return ErrNilServer
		}
		shutdownErr := make(chan error, 1)
		listenDone := make(chan struct{})

		go func() {
			select {
			case <-ctx.Done():
				sctx := context.WithoutCancel(ctx)
				if shutdownTimeout > 0 {
					var cancel context.CancelFunc
					sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
					defer cancel()
				}
				shutdownErr <- server.Shutdown(sctx)
			case <-listenDone:
			}
		}()

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			select {
			case e := <-shutdownErr:
				return e
			case <-ctx.Done():
				return <-shutdownErr
			default:
				// 外部直接关闭了 server
				close(listenDone)
				return nil
			}
		}
		close(listenDone)
		return err
	}
}

// Ticker 返回周期执行 fn 的服务。fn 返回错误时服务退出。
// immediate 为 true 时启动后先执行一次。
func Ticker(interval time.Duration, immediate bool, fn Service) Service {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
