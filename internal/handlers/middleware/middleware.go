// internal/handlers/middleware/middleware.go
package middleware

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ammerola/stockledger/internal/pkg/logger"
)

const slowRequestThreshold = 5 * time.Second

// RequestID middleware adds a unique request ID to each request
func RequestID(next http.Handler) http.Handler {
	return RequestIDWithHeader("X-Request-ID")(next)
}

// RequestIDWithHeader is RequestID reading and echoing a custom header.
func RequestIDWithHeader(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Request-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Keep an ID set by a proxy or load balancer
			requestID := r.Header.Get(header)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
			w.Header().Set(header, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the id set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(logger.ContextKeyRequestID).(string)
	return id
}

// Logger logs one line per request once the response is written. Request
// fields travel in the context and are added by the logger's context handler.
func Logger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.New().String()
			}
			w.Header().Set("X-Trace-ID", traceID)

			ctx := r.Context()
			ctx = context.WithValue(ctx, logger.ContextKeyTraceID, traceID)
			ctx = context.WithValue(ctx, logger.ContextKeyClientIP, getClientIP(r))
			ctx = context.WithValue(ctx, logger.ContextKeyUserAgent, r.UserAgent())
			ctx = context.WithValue(ctx, logger.ContextKeyMethod, r.Method)
			ctx = context.WithValue(ctx, logger.ContextKeyPath, r.URL.Path)

			slot := &actorSlot{}
			ctx = context.WithValue(ctx, actorSlotKey{}, slot)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			r = r.WithContext(ctx)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			// Auth runs further down the chain and records the actor in the slot.
			if slot.set {
				ctx = context.WithValue(ctx, logger.ContextKeyActorID, slot.id)
			}
			ctx = context.WithValue(ctx, logger.ContextKeyStatusCode, wrapped.statusCode)
			ctx = context.WithValue(ctx, logger.ContextKeyDuration, duration)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400, duration > slowRequestThreshold:
				level = slog.LevelWarn
			}

			l.Log(ctx, level, "request completed",
				slog.String("query", r.URL.RawQuery),
				slog.Int("bytes", wrapped.bytesWritten),
				slog.Bool("slow_request", duration > slowRequestThreshold),
			)
		})
	}
}

// Recovery middleware recovers from panics
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", err),
						slog.String("stack", string(debug.Stack())),
					)

					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit middleware allows requests per duration for each client IP
func RateLimit(requests int, duration time.Duration) func(http.Handler) http.Handler {
	limiters := &sync.Map{}
	var sweep sync.Mutex
	lastSweep := time.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ip := getClientIP(r)

			val, _ := limiters.LoadOrStore(ip, &rateLimiter{
				limiter: rate.NewLimiter(rate.Every(duration/time.Duration(requests)), requests),
			})
			rl := val.(*rateLimiter)
			rl.touch(now)

			// Drop idle limiters at most once per sweep interval
			if sweep.TryLock() {
				if now.Sub(lastSweep) > 10*time.Minute {
					lastSweep = now
					limiters.Range(func(key, value any) bool {
						if value.(*rateLimiter).idleSince(now) > 10*time.Minute {
							limiters.Delete(key)
						}
						return true
					})
				}
				sweep.Unlock()
			}

			if !rl.limiter.Allow() {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", duration.Seconds()))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORS middleware handles Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, Idempotency-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecureHeaders middleware adds security headers
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Timeout cancels the request context after timeout and answers 504 if the
// handler has not finished by then. Output is buffered until the handler
// returns.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{header: make(http.Header), code: http.StatusOK}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				tw.mu.Lock()
				defer tw.mu.Unlock()
				dst := w.Header()
				for k, v := range tw.header {
					dst[k] = v
				}
				w.WriteHeader(tw.code)
				w.Write(tw.buf.Bytes())
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true
				writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Request timeout")
			}
		})
	}
}

type timeoutWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	code     int
	wrote    bool
	timedOut bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.wrote = true
	return tw.buf.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wrote {
		return
	}
	tw.wrote = true
	tw.code = code
}

// Compression middleware adds gzip compression
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := &gzipResponseWriter{ResponseWriter: w}
		defer gz.Close()

		gz.Header().Set("Content-Encoding", "gzip")
		gz.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gz, r)
	})
}

// ContentTypeJSON middleware ensures JSON content type
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Helper types and functions

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	written      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type rateLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (rl *rateLimiter) touch(now time.Time) {
	rl.mu.Lock()
	rl.lastSeen = now
	rl.mu.Unlock()
}

func (rl *rateLimiter) idleSince(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return now.Sub(rl.lastSeen)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"code":%q}`, message, code)
}

// gzipResponseWriter implements gzip compression
type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.writer == nil {
		w.writer = gzip.NewWriter(w.ResponseWriter)
	}
	return w.writer.Write(b)
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Close() {
	if w.writer != nil {
		w.writer.Close()
	}
}

// Flush implements http.Flusher
func (w *gzipResponseWriter) Flush() {
	if w.writer != nil {
		w.writer.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker
func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement Hijacker")
}
