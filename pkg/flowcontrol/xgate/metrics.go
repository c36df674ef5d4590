package xgate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
)

const (
	// instrumentationScope Meter 名称
	instrumentationScope = "xflow"
	// instrumentationVersion 仪表化版本号
	instrumentationVersion = "1.0.0"

	metricNameRequestsTotal      = "xflow.requests.total"
	metricNameBlockedTotal       = "xflow.blocked.total"
	metricNameAdmitDuration      = "xflow.admit.duration"
	metricNameRequestDuration    = "xflow.request.duration"
	metricNameCircuitTransitions = "xflow.circuit.transitions"

	attrService  = "service"
	attrReason   = "reason"
	attrOutcome  = "outcome"
	attrFrom     = "from"
	attrTo       = "to"
	attrResource = "resource"
)

var (
	admitBuckets   = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}
	requestBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}
)

// Metrics 流控指标收集器
//
// nil 指针的所有方法都是空操作。
type Metrics struct {
	requestsTotal      metric.Int64Counter
	blockedTotal       metric.Int64Counter
	admitDuration      metric.Float64Histogram
	requestDuration    metric.Float64Histogram
	circuitTransitions metric.Int64Counter
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter(instrumentationScope,
		metric.WithInstrumentationVersion(instrumentationVersion))

	m := &Metrics{}
	var err error
	if m.requestsTotal, err = meter.Int64Counter(metricNameRequestsTotal,
		metric.WithDescription("进入流控判定的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.blockedTotal, err = meter.Int64Counter(metricNameBlockedTotal,
		metric.WithDescription("被拒绝的请求数"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.circuitTransitions, err = meter.Int64Counter(metricNameCircuitTransitions,
		metric.WithDescription("熔断器状态转换次数"), metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.admitDuration, err = meter.Float64Histogram(metricNameAdmitDuration,
		metric.WithDescription("流控判定耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(admitBuckets...)); err != nil {
		return nil, err
	}
	if m.requestDuration, err = meter.Float64Histogram(metricNameRequestDuration,
		metric.WithDescription("放行请求的处理耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordEnter(ctx context.Context, service string, reason Reason, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	svc := attribute.String(attrService, service)
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(svc))
	m.admitDuration.Record(ctx, d.Seconds(), metric.WithAttributes(svc))
	if reason != ReasonNone {
		m.blockedTotal.Add(ctx, 1, metric.WithAttributes(svc, attribute.String(attrReason, string(reason))))
	}
}

func (m *Metrics) recordExit(ctx context.Context, service string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.requestDuration.Record(context.WithoutCancel(ctx), d.Seconds(), metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOutcome, outcome)))
}

// RecordTransition 记录熔断器状态转换，签名与 xdegrade.StateChangeFunc 一致
func (m *Metrics) RecordTransition(resourceID string, from, to xdegrade.State) {
	if m == nil {
		return
	}
	m.circuitTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrResource, resourceID),
		attribute.String(attrFrom, from.String()),
		attribute.String(attrTo, to.String())))
}
