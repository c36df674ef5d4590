package xadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omeyang/xflow/pkg/flowcontrol/xdegrade"
	"github.com/omeyang/xflow/pkg/flowcontrol/xflowstat"
	"github.com/omeyang/xflow/pkg/flowcontrol/xresource"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// 查询默认值
const (
	DefaultStatRangeMs = int64(60_000)
	DefaultBucketSec   = int64(60)
)

// ErrInvalidParam 查询参数非法
var ErrInvalidParam = errors.New("xadmin: invalid parameter")

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse[T any] struct {
	Version uint64 `json:"version,omitempty"`
	Count   int    `json:"count"`
	Items   []T    `json:"items"`
}

type concurrencyResponse struct {
	ResourceID  string `json:"resourceId"`
	Concurrency int64  `json:"concurrency"`
}

// Handler 监控接口
type Handler struct {
	engine   *xflowstat.Engine
	limits   *xresource.Store
	rules    *xdegrade.RuleStore
	breakers *xdegrade.Engine
	logger   xlog.Logger
	mux      *http.ServeMux
}

// Option 配置 Handler
type Option func(*Handler)

// WithLogger 设置日志记录器
func WithLogger(l xlog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler 创建监控接口，breakers 可以为 nil
func NewHandler(engine *xflowstat.Engine, limits *xresource.Store, rules *xdegrade.RuleStore,
	breakers *xdegrade.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		limits:   limits,
		rules:    rules,
		breakers: breakers,
		logger:   xlog.Discard(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.HandleFunc("GET /flow/stats", h.handleStats)
	h.mux.HandleFunc("GET /flow/ratelimits", h.handleRateLimits)
	h.mux.HandleFunc("GET /flow/degrade-rules", h.handleDegradeRules)
	h.mux.HandleFunc("GET /flow/breakers", h.handleBreakers)
	h.mux.HandleFunc("GET /flow/concurrency", h.handleConcurrency)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return h
}

// ServeHTTP 实现 http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end, err := int64Param(q.Get("end"), h.engine.Now())
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	start, err := int64Param(q.Get("start"), end-DefaultStatRangeMs)
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	bucket, err := int64Param(q.Get("bucket"), DefaultBucketSec)
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	stats, err := h.engine.GetResourceTimeWindowStats(q.Get("resource"), start, end, bucket)
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[xflowstat.ResourceTimeWindowStats]{Count: len(stats), Items: stats})
}

func (h *Handler) handleRateLimits(w http.ResponseWriter, _ *http.Request) {
	items := h.limits.All()
	writeJSON(w, http.StatusOK, listResponse[xresource.RateLimitConfig]{
		Version: h.limits.Version(), Count: len(items), Items: items,
	})
}

func (h *Handler) handleDegradeRules(w http.ResponseWriter, _ *http.Request) {
	items := h.rules.All()
	writeJSON(w, http.StatusOK, listResponse[xdegrade.Rule]{
		Version: h.rules.Version(), Count: len(items), Items: items,
	})
}

func (h *Handler) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	items := []xdegrade.BreakerStatus{}
	if h.breakers != nil {
		items = h.breakers.States()
	}
	writeJSON(w, http.StatusOK, listResponse[xdegrade.BreakerStatus]{Count: len(items), Items: items})
}

func (h *Handler) handleConcurrency(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("resource"); id != "" {
		writeJSON(w, http.StatusOK, concurrencyResponse{ResourceID: id, Concurrency: h.engine.ConcurrentRequests(id)})
		return
	}
	all := h.engine.Concurrency()
	items := make([]concurrencyResponse, 0, len(all))
	for _, id := range h.engine.Resources() {
		if n, ok := all[id]; ok {
			items = append(items, concurrencyResponse{ResourceID: id, Concurrency: n})
		}
	}
	writeJSON(w, http.StatusOK, listResponse[concurrencyResponse]{Count: len(items), Items: items})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	h.logger.Debug(ctx, "admin request rejected", xlog.Err(err))
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func int64Param(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidParam, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
