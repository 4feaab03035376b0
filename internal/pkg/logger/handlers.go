// internal/pkg/logger/handlers.go
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ContextHandler adds request and task values carried by the context to every record.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a handler that enriches logs with context values
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, a := range extractContextAttrs(ctx, defaultContextKeys()) {
		if attr, ok := a.(slog.Attr); ok {
			record.AddAttrs(attr)
		}
	}
	return h.handler.Handle(ctx, record)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// SamplingHandler drops a share of debug and info records.
type SamplingHandler struct {
	handler    slog.Handler
	sampleRate float64
	mu         *sync.Mutex
	rng        *rand.Rand
}

// NewSamplingHandler creates a handler that samples logs
func NewSamplingHandler(handler slog.Handler, sampleRate float64) *SamplingHandler {
	return &SamplingHandler{
		handler:    handler,
		sampleRate: sampleRate,
		mu:         &sync.Mutex{},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Always log warnings and errors
	if level >= slog.LevelWarn {
		return h.handler.Enabled(ctx, level)
	}

	h.mu.Lock()
	sample := h.rng.Float64() < h.sampleRate
	h.mu.Unlock()

	return sample && h.handler.Enabled(ctx, level)
}

func (h *SamplingHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.handler.Handle(ctx, record)
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{handler: h.handler.WithAttrs(attrs), sampleRate: h.sampleRate, mu: h.mu, rng: h.rng}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{handler: h.handler.WithGroup(name), sampleRate: h.sampleRate, mu: h.mu, rng: h.rng}
}

const redacted = "***REDACTED***"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// SanitizationHandler masks credentials in attribute keys and string values.
type SanitizationHandler struct {
	handler    slog.Handler
	redactions []redaction
	blacklist  []string
}

// NewSanitizationHandler creates a handler that sanitizes sensitive data
func NewSanitizationHandler(handler slog.Handler) *SanitizationHandler {
	return &SanitizationHandler{
		handler: handler,
		redactions: []redaction{
			{regexp.MustCompile(`(?i)(password|secret|token|jwt|api[-_]?key)\s*[:=]\s*["']?[^"'\s]+`), "$1=" + redacted},
			{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer " + redacted},
		},
		blacklist: []string{
			"password", "secret", "token", "authorization", "jwt", "api_key",
		},
	}
}

func (h *SanitizationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SanitizationHandler) Handle(ctx context.Context, record slog.Record) error {
	newRecord := slog.NewRecord(record.Time, record.Level, h.sanitizeString(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, newRecord)
}

func (h *SanitizationHandler) sanitizeAttr(attr slog.Attr) slog.Attr {
	lowerKey := strings.ToLower(attr.Key)
	for _, blacklisted := range h.blacklist {
		if strings.Contains(lowerKey, blacklisted) {
			attr.Value = slog.StringValue(redacted)
			return attr
		}
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		attr.Value = slog.StringValue(h.sanitizeString(attr.Value.String()))
	case slog.KindGroup:
		group := attr.Value.Group()
		sanitized := make([]slog.Attr, len(group))
		for i, a := range group {
			sanitized[i] = h.sanitizeAttr(a)
		}
		attr.Value = slog.GroupValue(sanitized...)
	}
	return attr
}

func (h *SanitizationHandler) sanitizeString(s string) string {
	for _, r := range h.redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

func (h *SanitizationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = h.sanitizeAttr(a)
	}
	return &SanitizationHandler{
		handler:    h.handler.WithAttrs(sanitized),
		redactions: h.redactions,
		blacklist:  h.blacklist,
	}
}

func (h *SanitizationHandler) WithGroup(name string) slog.Handler {
	return &SanitizationHandler{
		handler:    h.handler.WithGroup(name),
		redactions: h.redactions,
		blacklist:  h.blacklist,
	}
}

// PrettyTextHandler provides human-readable colored output for development
type PrettyTextHandler struct {
	opts  *slog.HandlerOptions
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr
	group string
}

// NewPrettyTextHandler creates a pretty text handler
func NewPrettyTextHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyTextHandler{opts: opts, mu: &sync.Mutex{}, w: w}
}

func (h *PrettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *PrettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	level := r.Level.String()
	fmt.Fprintf(&b, "%s%s %s\033[0m%s %s",
		levelColor(r.Level),
		r.Time.Format("2006-01-02 15:04:05.000"),
		level,
		strings.Repeat(" ", max(0, 7-len(level))),
		r.Message,
	)

	write := func(a slog.Attr) {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " \033[36m%s\033[0m=%v", key, a.Value)
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *PrettyTextHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // Red
	case level >= slog.LevelWarn:
		return "\033[33m" // Yellow
	case level >= slog.LevelInfo:
		return "\033[34m" // Blue
	default:
		return "\033[37m" // White
	}
}
