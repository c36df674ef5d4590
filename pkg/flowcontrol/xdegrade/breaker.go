package xdegrade

import (
	"sync"
	"sync/atomic"

	"github.com/sony/gobreaker/v2"
)

// State 熔断器状态
type State = gobreaker.State

// 熔断器状态常量
const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// transition 一次状态变更
type transition struct {
	from, to State
	at       int64
}

// breaker 单个资源的熔断器
//
// state 用于 closed 状态的无锁快路径，其余字段由 mu 保护。
type breaker struct {
	resourceID string
	state      atomic.Int32

	mu         sync.Mutex
	ruleID     int64
	epoch      uint64 // 每次状态变更递增，用于识别过期的探测结果
	openedAt   int64
	halfOpenAt int64
	closedAt   int64
	issued     int64 // 本轮 half-open 已放行的探测数
	succeeded  int64 // 本轮 half-open 已成功的探测数
	trips      int64
}

func newBreaker(resourceID string, ruleID int64) *breaker {
	b := &breaker{resourceID: resourceID, ruleID: ruleID}
	b.state.Store(int32(StateClosed))
	return b
}

func (b *breaker) current() State {
	return State(b.state.Load())
}

// setLocked 变更状态，调用方持有 mu
func (b *breaker) setLocked(to State, now int64) transition {
	from := b.current()
	b.epoch++
	b.issued, b.succeeded = 0, 0
	switch to {
	case StateOpen:
		b.openedAt = now
		b.trips++
	case StateHalfOpen:
		b.halfOpenAt = now
	case StateClosed:
		b.closedAt = now
	}
	b.state.Store(int32(to))
	return transition{from: from, to: to, at: now}
}

// resetIfRuleChanged 规则被替换为另一条时重新开始
func (b *breaker) resetIfRuleChanged(ruleID int64, now int64) []transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ruleID == ruleID {
		return nil
	}
	b.ruleID = ruleID
	if b.current() == StateClosed {
		return nil
	}
	return []transition{b.setLocked(StateClosed, now)}
}

// permit 判定是否放行，probe 表示放行的是探测请求
func (b *breaker) permit(r Rule, now int64, random func() float64) (allowed, probe bool, epoch uint64, trs []transition) {
	if b.current() == StateClosed {
		return true, false, 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateClosed:
		return true, false, b.epoch, nil
	case StateOpen:
		if now-b.openedAt < r.TimeWindow*1000 {
			return false, false, b.epoch, nil
		}
		trs = append(trs, b.setLocked(StateHalfOpen, now))
	}

	switch r.recovery() {
	case RecoveryAttempt:
		if b.issued >= r.probeCount() {
			return false, false, b.epoch, trs
		}
		b.issued++
		return true, true, b.epoch, trs
	case RecoveryGradual:
		elapsed := now - b.halfOpenAt
		window := r.RecoveryTimeWindow * 1000
		if elapsed >= window {
			trs = append(trs, b.setLocked(StateClosed, now))
			return true, false, b.epoch, trs
		}
		return random() < float64(elapsed)/float64(window), false, b.epoch, trs
	default:
		trs = append(trs, b.setLocked(StateClosed, now))
		return true, false, b.epoch, trs
	}
}

// release 归还未执行的探测名额
func (b *breaker) release(epoch uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch == epoch && b.current() == StateHalfOpen && b.issued > 0 {
		b.issued--
	}
}

// probeDone 处理探测结果
func (b *breaker) probeDone(r Rule, epoch uint64, now int64, success bool) []transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch != epoch || b.current() != StateHalfOpen {
		return nil
	}
	if !success {
		return []transition{b.setLocked(StateOpen, now)}
	}
	b.succeeded++
	if b.succeeded >= r.probeCount() {
		return []transition{b.setLocked(StateClosed, now)}
	}
	return nil
}

// tripIf 在状态与 epoch 未变化时打开熔断器
func (b *breaker) tripIf(expect State, epoch uint64, now int64) []transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current() != expect || b.epoch != epoch {
		return nil
	}
	return []transition{b.setLocked(StateOpen, now)}
}

// evalWindow 返回当前状态下参与判定的统计窗口 [startMs, endMs)
func (b *breaker) evalWindow(r Rule, now int64) (state State, epoch uint64, startMs, endMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sec := now / 1000
	startMs = (sec - r.StatInterval + 1) * 1000
	endMs = (sec + 1) * 1000

	floor := b.closedAt
	if b.current() == StateHalfOpen {
		floor = b.halfOpenAt
	}
	if floor > 0 {
		startMs = max(startMs, floor/1000*1000)
	}
	return b.current(), b.epoch, startMs, endMs
}

// status 导出状态快照
func (b *breaker) status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		ResourceID: b.resourceID,
		RuleID:     b.ruleID,
		State:      b.current().String(),
		OpenedAt:   b.openedAt,
		HalfOpenAt: b.halfOpenAt,
		Trips:      b.trips,
	}
}

// BreakerStatus 熔断器状态快照
type BreakerStatus struct {
	ResourceID string `json:"resourceId"`
	RuleID     int64  `json:"ruleId"`
	State      string `json:"state"`
	OpenedAt   int64  `json:"openedAt,omitempty"`
	HalfOpenAt int64  `json:"halfOpenAt,omitempty"`
	Trips      int64  `json:"trips"`
}
