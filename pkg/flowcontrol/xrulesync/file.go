package xrulesync

import (
	"context"
	"fmt"

	"github.com/omeyang/xflow/pkg/config/xconf"
	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// 规则文件中的配置路径
const (
	KeyRateLimits   = "rate_limits"
	KeyDegradeRules = "degrade_rules"
)

// FileSource 从 YAML/JSON 规则文件加载规则，文件变化时重新产生全量事件
type FileSource struct {
	path string
	opts *sourceOptions
}

// NewFileSource 创建文件来源
func NewFileSource(path string, opts ...SourceOption) (*FileSource, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	o := defaultSourceOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &FileSource{path: path, opts: o}, nil
}

// Run 发送初始全量事件，然后监视文件直到 ctx 取消
func (s *FileSource) Run(ctx context.Context, out chan<- Event) error {
	cfg, err := xconf.New(s.path)
	if err != nil {
		return err
	}
	ev, err := Decode(cfg, s.source())
	if err != nil {
		return err
	}
	if !send(ctx, out, ev) {
		return nil
	}

	w, err := xconf.Watch(cfg, func(c xconf.Config, werr error) {
		if werr != nil {
			s.opts.logger.Warn(ctx, "rule file reload failed, keeping previous rules",
				xlog.Component("xrulesync"), xlog.Err(werr))
			return
		}
		ev, derr := Decode(c, s.source())
		if derr != nil {
			s.opts.logger.Warn(ctx, "rule file decode failed, keeping previous rules",
				xlog.Component("xrulesync"), xlog.Err(derr))
			return
		}
		send(ctx, out, ev)
	}, s.opts.watchOpts...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (s *FileSource) source() string {
	return "file:" + s.path
}

// LoadFile 读取规则文件并返回全量事件
func LoadFile(path string) (Event, error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return Event{}, err
	}
	return Decode(cfg, "file:"+path)
}

// Decode 从配置中解析规则，返回全量事件
func Decode(cfg xconf.Config, source string) (Event, error) {
	ev := NewEvent(KindSnapshot, TargetAll, source)
	var limits []xresource.RateLimitConfig
	if err := cfg.Unmarshal(KeyRateLimits, &limits); err != nil {
		return Event{}, fmt.Errorf("xrulesync: decode %s: %w", KeyRateLimits, err)
	}
	var rules []xdegrade.Rule
	if err := cfg.Unmarshal(KeyDegradeRules, &rules); err != nil {
		return Event{}, fmt.Errorf("xrulesync: decode %s: %w", KeyDegradeRules, err)
	}
	ev.RateLimits = limits
	ev.DegradeRules = rules
	return ev, nil
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
