package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 配置变更回调
//
// 内容变化并重载成功时 err 为 nil；读取、解析或监视出错时 err 非 nil，
// 此时 cfg 仍持有上一次成功加载的内容。
type WatchCallback func(cfg Config, err error)

// Watcher 配置文件监视器
type Watcher struct {
	cfg      Config
	fs       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
	filename string

	mu    sync.Mutex
	timer *time.Timer
}

// Watch 创建配置文件监视器，调用 Run 开始监视。
//
// 监视文件所在目录而非文件本身：编辑器保存与 ConfigMap 更新都可能以
// 删除/重命名的方式替换文件，直接监视文件会丢失事件。
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil || cfg.Path() == "" {
		return nil, ErrNotWatchable
	}
	if callback == nil {
		return nil, errors.New("xconf: nil watch callback")
	}

	o := &watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(o)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch directory %s: %w", dir, err), fsw.Close())
	}

	return &Watcher{
		cfg:      cfg,
		fs:       fsw,
		callback: callback,
		debounce: o.debounce,
		filename: filepath.Base(cfg.Path()),
	}, nil
}

// Run 阻塞处理文件事件，直到 ctx 取消。返回前关闭底层 watcher，
// 因此同一个 Watcher 只能 Run 一次。
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.onEvent(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.callback(w.cfg, fmt.Errorf("xconf: watch error: %w", err))
		}
	}
}

func (w *Watcher) onEvent(ctx context.Context, ev fsnotify.Event) {
	if filepath.Base(ev.Name) != w.filename {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		changed, err := w.cfg.Reload()
		if err != nil || changed {
			w.callback(w.cfg, err)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	_ = w.fs.Close()
}
