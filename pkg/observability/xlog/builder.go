package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 轮转默认值
const (
	// DefaultMaxSizeMB 默认单个日志文件最大大小（MB）
	DefaultMaxSizeMB = 100
	// DefaultMaxBackups 默认保留的备份文件数量
	DefaultMaxBackups = 7
	// DefaultMaxAgeDays 默认保留备份的天数
	DefaultMaxAgeDays = 30
)

// ReplaceAttrFunc 属性替换函数类型
//
// 用于字段重命名、脱敏、过滤等治理场景。返回空 Key 的 Attr 会移除该属性。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// RotationConfig 文件轮转配置，零值字段使用默认值
type RotationConfig struct {
	// MaxSizeMB 单个日志文件最大大小（MB），默认 DefaultMaxSizeMB
	MaxSizeMB int `koanf:"max_size_mb"`

	// MaxBackups 保留的备份文件数量，默认 DefaultMaxBackups
	MaxBackups int `koanf:"max_backups"`

	// MaxAgeDays 保留备份的天数，默认 DefaultMaxAgeDays
	MaxAgeDays int `koanf:"max_age_days"`

	// Compress 是否 gzip 压缩备份文件
	Compress bool `koanf:"compress"`

	// LocalTime 备份文件名是否使用本地时间（默认 UTC）
	LocalTime bool `koanf:"local_time"`
}

func (c RotationConfig) withDefaults() RotationConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	return c
}

// Builder 日志配置构建器
type Builder struct {
	output      io.Writer
	level       Level
	format      string
	addSource   bool
	replaceAttr ReplaceAttrFunc
	closer      io.Closer
	onError     func(error)
	err         error
}

// New 创建配置构建器，默认输出到 stderr、Info 级别、text 格式
func New() *Builder {
	return &Builder{
		output: os.Stderr,
		level:  LevelInfo,
		format: "text",
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("xlog: nil output")
		return b
	}
	b.output = w
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	if b.err != nil {
		return b
	}
	b.level = level
	return b
}

// SetLevelString 通过字符串设置日志级别，空串保持默认
func (b *Builder) SetLevelString(s string) *Builder {
	if b.err != nil || strings.TrimSpace(s) == "" {
		return b
	}
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空串保持默认
func (b *Builder) SetFormat(format string) *Builder {
	if b.err != nil {
		return b
	}
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		return b
	case "text", "json":
		b.format = normalized
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// SetAddSource 是否在日志中添加源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetRotation 输出到带轮转的文件
//
// 文件在首次写入时创建，父目录需存在或可创建。
func (b *Builder) SetRotation(filename string, cfg RotationConfig) *Builder {
	if b.err != nil {
		return b
	}
	if strings.TrimSpace(filename) == "" {
		b.err = errors.New("xlog: empty rotation filename")
		return b
	}
	cfg = cfg.withDefaults()
	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}
	b.output = lj
	b.closer = lj
	return b
}

// SetOnError 设置内部错误回调
//
// 当 Handler.Handle() 失败时（磁盘满、writer 异常等）同步调用，应保持轻量。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetReplaceAttr 设置属性替换函数
//
// 示例 - 脱敏：
//
//	logger, _, _ := xlog.New().
//		SetReplaceAttr(func(groups []string, a slog.Attr) slog.Attr {
//			if a.Key == "password" {
//				return slog.String(a.Key, "***")
//			}
//			return a
//		}).
//		Build()
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// Build 构建 Logger 实例
//
// 返回值：
//   - Logger: 日志实例
//   - func() error: 清理函数，关闭轮转文件，可重复调用
//   - error: 配置错误
func (b *Builder) Build() (Logger, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:     b.level,
		AddSource: b.addSource,
	}
	if b.replaceAttr != nil {
		opts.ReplaceAttr = b.replaceAttr
	}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}

	var once sync.Once
	closer := b.closer
	cleanup := func() error {
		var err error
		once.Do(func() {
			if closer != nil {
				err = closer.Close()
			}
		})
		return err
	}

	return newLogger(handler, b.addSource, b.onError), cleanup, nil
}
