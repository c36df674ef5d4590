package xgate

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omeyang/xflow/pkg/flowcontrol/xcond"
	"github.com/omeyang/xflow/pkg/observability/xlog"
)

// HeaderAppID 调用方应用标识请求头
const HeaderAppID = "X-App-Id"

// Extractor 从 HTTP 请求中提取资源维度
type Extractor func(r *http.Request) Request

// DenyHandler 写出拒绝响应
type DenyHandler func(w http.ResponseWriter, r *http.Request, e *Entry)

type middlewareOptions struct {
	extractor Extractor
	deny      DenyHandler
	bypass    [][]xcond.Condition
	success   func(status int) bool
}

// MiddlewareOption 配置 HTTPMiddleware
type MiddlewareOption func(*middlewareOptions)

// WithExtractor 设置维度提取函数
func WithExtractor(fn Extractor) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.extractor = fn
		}
	}
}

// WithDenyHandler 设置拒绝响应的写出方式
func WithDenyHandler(fn DenyHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.deny = fn
		}
	}
}

// WithBypass 添加一组放行条件，组内条件全部成立时请求不经过流控
//
// 多次调用时任一组成立即放行。可用的属性见 RequestAttrs。
func WithBypass(conds ...xcond.Condition) MiddlewareOption {
	return func(o *middlewareOptions) {
		if len(conds) > 0 {
			o.bypass = append(o.bypass, conds)
		}
	}
}

// WithSuccessFunc 设置按响应状态码判定成功的函数，默认 < 500 为成功
func WithSuccessFunc(fn func(status int) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.success = fn
		}
	}
}

// HTTPMiddleware 返回执行流控的 net/http 中间件
func HTTPMiddleware(g *Guard, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{
		extractor: DefaultExtractor,
		deny:      DefaultDenyHandler,
		success:   func(status int) bool { return status < http.StatusInternalServerError },
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			req := o.extractor(r)
			if o.bypassed(RequestAttrs(r, req)) {
				next.ServeHTTP(w, r)
				return
			}

			entry, err := g.Enter(ctx, req)
			if err != nil {
				g.opts.logger.Debug(ctx, "flow control skipped", xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !entry.Allowed() {
				o.deny(w, r, entry)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			defer func() {
				if p := recover(); p != nil {
					entry.Exit(ctx, time.Since(start), false)
					panic(p)
				}
				entry.Exit(ctx, time.Since(start), o.success(rec.status))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

func (o *middlewareOptions) bypassed(attrs map[string]xcond.Value) bool {
	for _, group := range o.bypass {
		if xcond.All(group, attrs) {
			return true
		}
	}
	return false
}

// DefaultExtractor 默认维度提取
//
// 路径第一段为服务名，其余部分为接口路径；应用取自 X-App-Id 请求头；
// IP 取自 X-Forwarded-For 的第一个地址，缺省时取连接对端地址。
func DefaultExtractor(r *http.Request) Request {
	service, path := splitPath(r.URL.Path)
	return Request{
		App:     r.Header.Get(HeaderAppID),
		IP:      ClientIP(r),
		Service: service,
		Path:    path,
	}
}

func splitPath(p string) (service, path string) {
	p = strings.TrimPrefix(p, "/")
	service, rest, found := strings.Cut(p, "/")
	if !found || rest == "" {
		return service, ""
	}
	return service, "/" + rest
}

// ClientIP 返回请求的客户端地址
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestAttrs 放行条件可用的属性
//
// method、host、url_path、app、ip、service、path 为字符串，content_length 为整数。
func RequestAttrs(r *http.Request, req Request) map[string]xcond.Value {
	return map[string]xcond.Value{
		"method":         xcond.String(r.Method),
		"host":           xcond.String(r.Host),
		"url_path":       xcond.String(r.URL.Path),
		"app":            xcond.String(req.App),
		"ip":             xcond.String(req.IP),
		"service":        xcond.String(req.Service),
		"path":           xcond.String(req.Path),
		"content_length": xcond.Int(r.ContentLength),
	}
}

// DefaultDenyHandler 写出 Entry 携带的拒绝响应
func DefaultDenyHandler(w http.ResponseWriter, _ *http.Request, e *Entry) {
	resp := e.Response()
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Content)))
	w.Header().Set("X-Flow-Reason", string(e.Reason()))
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Content))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
