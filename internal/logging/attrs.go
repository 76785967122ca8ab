package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"royalties/internal/services"
)

type Attr = slog.Attr

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Money renders a monetary amount with two decimals so log lines stay
// comparable with statement totals.
func Money(key string, value decimal.Decimal) Attr {
	return slog.String(key, value.StringFixed(2))
}

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes into the variadic form accepted by slog methods.
func Args(attrs ...Attr) []any {
	out := make([]any, len(attrs))
	for i, attr := range attrs {
		out[i] = attr
	}
	return out
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning carrying event_type, error_hint and impact.
// When attrs include an Error, its classification fills error_kind and the
// hint unless the caller set them.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = annotate(attrs, eventType)
	if _, ok := find(attrs, FieldImpact); !ok {
		attrs = append(attrs, String(FieldImpact, "processing continued with warnings"))
	}
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext is WarnWithContext at error level, without a default impact.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(annotate(attrs, eventType)...)...)
}

func annotate(attrs []Attr, eventType string) []Attr {
	if _, ok := find(attrs, FieldEventType); !ok {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	var err error
	if a, ok := find(attrs, "error"); ok {
		err, _ = a.Value.Any().(error)
	}
	if err != nil {
		if _, ok := find(attrs, FieldErrorKind); !ok {
			attrs = append(attrs, String(FieldErrorKind, string(services.Classify(err))))
		}
	}
	if _, ok := find(attrs, FieldErrorHint); !ok {
		hint := "run `royalty logs` for details"
		if err != nil && !errors.Is(err, context.Canceled) {
			hint = services.Details(err).Hint
		}
		attrs = append(attrs, String(FieldErrorHint, hint))
	}
	return attrs
}

func find(attrs []Attr, key string) (Attr, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a, true
		}
	}
	return Attr{}, false
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
