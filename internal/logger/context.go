package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds call-scoped logging context: the instance path, interface
// and method a call is targeting, the call id, and the connection it travels
// over.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	CallID    string    // RPC call id (UUID)
	Path      string    // Instance path (e.g. /com/example/widget)
	Interface string    // Interface name
	Method    string    // Method/property/event name
	ClientID  string    // Connection identifier
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a connection identified by clientID.
func NewLogContext(clientID string) *LogContext {
	return &LogContext{
		ClientID:  clientID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		CallID:    lc.CallID,
		Path:      lc.Path,
		Interface: lc.Interface,
		Method:    lc.Method,
		ClientID:  lc.ClientID,
		StartTime: lc.StartTime,
	}
}

// WithCall returns a copy with the call id, path, interface and method set.
func (lc *LogContext) WithCall(callID, path, iface, method string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CallID = callID
		clone.Path = path
		clone.Interface = iface
		clone.Method = method
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
