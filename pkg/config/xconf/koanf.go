package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var _ Config = (*koanfConfig)(nil)

// koanfConfig 是 Config 接口的 koanf 实现。
type koanfConfig struct {
	mu     sync.RWMutex
	k      *koanf.Koanf
	digest uint64
	path   string
	format Format
	opts   *options
}

// New 从文件路径创建配置实例，根据扩展名检测格式。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return build(data, format, path, opts)
}

// NewFromBytes 从字节数据创建配置实例，需显式指定格式。
// 空数据会得到空配置，Unmarshal 返回目标的零值。
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}
	return build(data, format, "", opts)
}

func build(data []byte, format Format, path string, opts []Option) (*koanfConfig, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	k, err := parse(data, format, o.delim)
	if err != nil {
		return nil, err
	}
	return &koanfConfig{
		k:      k,
		digest: xxhash.Sum64(data),
		path:   path,
		format: format,
		opts:   o,
	}, nil
}

// Client 返回底层的 koanf 实例。
func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

// Unmarshal 将指定路径的配置反序列化到目标结构体。
func (c *koanfConfig) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Reload 重新加载配置文件。解析失败时保留旧配置。
func (c *koanfConfig) Reload() (bool, error) {
	if c.path == "" {
		return false, ErrNotWatchable
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	digest := xxhash.Sum64(data)
	if digest == c.Digest() {
		return false, nil
	}
	k, err := parse(data, c.format, c.opts.delim)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.k = k
	c.digest = digest
	c.mu.Unlock()
	return true, nil
}

// Digest 返回当前内容摘要。
func (c *koanfConfig) Digest() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest
}

// Path 返回配置文件路径。
func (c *koanfConfig) Path() string {
	return c.path
}

// Format 返回配置格式。
func (c *koanfConfig) Format() Format {
	return c.format
}

// =============================================================================
// 内部辅助函数
// =============================================================================

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
}

func parse(data []byte, format Format, delim string) (*koanf.Koanf, error) {
	k := koanf.New(delim)
	if len(data) == 0 {
		return k, nil
	}
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return k, nil
}
