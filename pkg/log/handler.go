package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// ErrFmtHandler decorates records that carry an "error" attribute with the
// cockroachdb/errors stack and the latent error code of that error.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler so that every record holding an error
// attribute also gets "stacktrace" and "error.code".
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		found, _ = attr.Value.Any().(error)
		return false
	})
	if found == nil {
		return eh.handler.Handle(ctx, r)
	}
	if stack := extractStacktrace(found); stack != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stack))
	}
	if code := ErrorCode(found); code != "" {
		r.AddAttrs(slog.String(ErrorCodeKey, code))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// errorCodes is checked in order; DimensionError for latent_dim matches both
// the dimension and config kinds and is reported as a dimension mismatch.
var errorCodes = []struct {
	kind error
	code string
}{
	{latentErrors.ErrNotFitted, ErrorNotFitted},
	{latentErrors.ErrDimensionMismatch, ErrorDimensionMismatch},
	{latentErrors.ErrUnknownVariant, ErrorUnknownVariant},
	{latentErrors.ErrUnsupportedOperation, ErrorUnsupported},
	{latentErrors.ErrNumericFailure, ErrorNumericFailure},
	{latentErrors.ErrInvalidConfig, ErrorInvalidConfig},
}

// ErrorCode returns the ErrorCodeKey value for err, or "" when err carries
// none of the latent error kinds.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ""
}

// extractStacktrace returns the outermost stack recorded by cockroachdb/errors
// anywhere in the chain of err.
func extractStacktrace(err error) string {
	for c := err; c != nil; c = errors.UnwrapOnce(c) {
		if details := errors.GetSafeDetails(c).SafeDetails; len(details) > 0 && details[0] != "" {
			return details[0]
		}
	}
	return ""
}
