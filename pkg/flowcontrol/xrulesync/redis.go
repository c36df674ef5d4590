package xrulesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// 变更通知的动作
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// ChangeMessage 变更通知的消息体
//
// 消息体为空或无法解析时，按对应存储的全量重新加载处理。
type ChangeMessage struct {
	Action     string `json:"action"`
	ResourceID string `json:"resourceId"`
}

// RedisSource 从 Redis 哈希加载规则并订阅变更通知
//
// 哈希 <prefix>rate_limits 与 <prefix>degrade_rules 的字段为资源 ID，值为 JSON 编码的条目；
// 变更通知发布在 <prefix>rate_limits:changed 与 <prefix>degrade_rules:changed。
type RedisSource struct {
	client redis.UniversalClient
	opts   *sourceOptions
	cb     *gobreaker.CircuitBreaker[Event]
}

// NewRedisSource 创建 Redis 来源
func NewRedisSource(client redis.UniversalClient, opts ...SourceOption) (*RedisSource, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultSourceOptions()
	for _, opt := range opts {
		opt(o)
	}
	s := &RedisSource{client: client, opts: o}
	s.cb = gobreaker.NewCircuitBreaker[Event](gobreaker.Settings{
		Name:    "xrulesync.redis",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn(context.Background(), "rule source breaker state changed",
				xlog.Component(name), slog.String("from", from.String()), xlog.State(to.String()))
		},
	})
	return s, nil
}

// RateLimitsKey 限流配置哈希键
func (s *RedisSource) RateLimitsKey() string { return s.opts.keyPrefix + KeyRateLimits }

// DegradeRulesKey 熔断规则哈希键
func (s *RedisSource) DegradeRulesKey() string { return s.opts.keyPrefix + KeyDegradeRules }

// RateLimitsChannel 限流配置变更通道
func (s *RedisSource) RateLimitsChannel() string { return s.RateLimitsKey() + ":changed" }

// DegradeRulesChannel 熔断规则变更通道
func (s *RedisSource) DegradeRulesChannel() string { return s.DegradeRulesKey() + ":changed" }

// Run 先订阅变更通道再加载全量，避免加载与订阅之间的变更丢失
func (s *RedisSource) Run(ctx context.Context, out chan<- Event) error {
	ps := s.client.Subscribe(ctx, s.RateLimitsChannel(), s.DegradeRulesChannel())
	defer func() { _ = ps.Close() }()
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("xrulesync: subscribe: %w", err)
	}
	msgs := ps.Channel()

	s.resync(ctx, out, TargetAll)

	var tick <-chan time.Time
	if s.opts.resyncInterval > 0 {
		t := time.NewTicker(s.opts.resyncInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.resync(ctx, out, TargetAll)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(ctx, out, msg)
		}
	}
}

func (s *RedisSource) handle(ctx context.Context, out chan<- Event, msg *redis.Message) {
	target := TargetRateLimits
	if msg.Channel == s.DegradeRulesChannel() {
		target = TargetDegradeRules
	}

	var change ChangeMessage
	if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil || change.ResourceID == "" {
		s.resync(ctx, out, target)
		return
	}

	switch change.Action {
	case ActionDelete:
		ev := NewEvent(KindDelete, target, s.source())
		if target == TargetRateLimits {
			ev.RateLimits = []xresource.RateLimitConfig{{ResourceID: change.ResourceID}}
		} else {
			ev.DegradeRules = []xdegrade.Rule{{ResourceID: change.ResourceID}}
		}
		send(ctx, out, ev)
	case ActionUpsert:
		ev, err := s.loadOne(ctx, target, change.ResourceID)
		if err != nil {
			s.opts.logger.Warn(ctx, "rule entry load failed, falling back to full reload",
				xlog.Resource(change.ResourceID), xlog.Err(err))
			s.resync(ctx, out, target)
			return
		}
		send(ctx, out, ev)
	default:
		s.resync(ctx, out, target)
	}
}

func (s *RedisSource) resync(ctx context.Context, out chan<- Event, target Target) {
	ev, err := s.Load(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			s.opts.logger.Warn(ctx, "rule reload failed, keeping previous rules",
				xlog.Component("xrulesync"), xlog.Err(err))
		}
		return
	}
	send(ctx, out, ev)
}

// Load 读取全量规则，带重试与熔断保护
func (s *RedisSource) Load(ctx context.Context, target Target) (Event, error) {
	return s.cb.Execute(func() (Event, error) {
		return retry.NewWithData[Event](
			retry.Context(ctx),
			retry.Attempts(s.opts.attempts),
			retry.Delay(s.opts.delay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				s.opts.logger.Debug(ctx, "rule load retry",
					xlog.Count(int64(n)+1), xlog.Err(err))
			}),
		).Do(func() (Event, error) {
			return s.load(ctx, target)
		})
	})
}

func (s *RedisSource) load(ctx context.Context, target Target) (Event, error) {
	ev := NewEvent(KindSnapshot, target, s.source())
	if target.rateLimits() {
		m, err := s.client.HGetAll(ctx, s.RateLimitsKey()).Result()
		if err != nil {
			return Event{}, err
		}
		ev.RateLimits = decodeEntries(ctx, s.opts.logger, m, fillRateLimitID)
	}
	if target.degradeRules() {
		m, err := s.client.HGetAll(ctx, s.DegradeRulesKey()).Result()
		if err != nil {
			return Event{}, err
		}
		ev.DegradeRules = decodeEntries(ctx, s.opts.logger, m, fillRuleID)
	}
	return ev, nil
}

func (s *RedisSource) loadOne(ctx context.Context, target Target, resourceID string) (Event, error) {
	key := s.RateLimitsKey()
	if target == TargetDegradeRules {
		key = s.DegradeRulesKey()
	}
	raw, err := s.client.HGet(ctx, key, resourceID).Result()
	if errors.Is(err, redis.Nil) {
		return Event{}, fmt.Errorf("xrulesync: %s has no field %q", key, resourceID)
	}
	if err != nil {
		return Event{}, err
	}

	ev := NewEvent(KindUpsert, target, s.source())
	if target == TargetRateLimits {
		var c xresource.RateLimitConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return Event{}, err
		}
		fillRateLimitID(&c, resourceID)
		ev.RateLimits = []xresource.RateLimitConfig{c}
	} else {
		var r xdegrade.Rule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return Event{}, err
		}
		fillRuleID(&r, resourceID)
		ev.DegradeRules = []xdegrade.Rule{r}
	}
	return ev, nil
}

func (s *RedisSource) source() string {
	return "redis:" + s.opts.keyPrefix
}

// fillRateLimitID 条目未写 resource_id 时取哈希字段名
func fillRateLimitID(c *xresource.RateLimitConfig, field string) {
	if c.ResourceID == "" {
		c.ResourceID = field
	}
}

func fillRuleID(r *xdegrade.Rule, field string) {
	if r.ResourceID == "" {
		r.ResourceID = field
	}
}

// decodeEntries 解析哈希值，无法解析的条目记录日志后跳过
func decodeEntries[T any](ctx context.Context, logger xlog.Logger, m map[string]string, fill func(*T, string)) []T {
	out := make([]T, 0, len(m))
	for field, raw := range m {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			logger.Warn(ctx, "rule entry decode failed", xlog.Resource(field), xlog.Err(err))
			continue
		}
		fill(&v, field)
		out = append(out, v)
	}
	return out
}
