package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are protocol-agnostic in the sense that they describe the RPC
// envelope (frame, call, instance tree) rather than any one transport or
// serializer. Use these keys consistently across all log statements for log
// aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Frame & Call (protocol-agnostic)
	// ========================================================================
	KeyNamespace = "namespace" // Frame namespace: rpc, events
	KeyFrameName = "frame"     // Frame name: call, response, fragment, ...
	KeyCallID    = "call_id"   // RPC call id (UUID)
	KeySeqno     = "seqno"     // Streaming fragment sequence number
	KeyStatus    = "status"    // Call status: in_progress, done, error, ...
	KeyErrorCode = "error_code"

	// ========================================================================
	// Instance Tree
	// ========================================================================
	KeyPath      = "path"      // Instance path
	KeyInterface = "interface" // Interface name
	KeyMethod    = "method"    // Method/property/event name

	// ========================================================================
	// Transport & Connection
	// ========================================================================
	KeyURI          = "uri"           // Transport URI (scheme://...)
	KeyTransport    = "transport"     // Transport scheme
	KeyClientID     = "client_id"     // Connection identifier
	KeyCredentials  = "credentials"   // Peer credential summary (uid/gid/pid)
	KeyFDCount      = "fd_count"      // Number of fds carried in a frame
	KeyBytesWritten = "bytes_written" // Bytes written on send
	KeyBytesRead    = "bytes_read"    // Bytes read on recv

	// ========================================================================
	// Serializer
	// ========================================================================
	KeyCodec = "codec" // Serializer codec name

	// ========================================================================
	// Subscription / Property Watch
	// ========================================================================
	KeyEvent    = "event"    // Event name
	KeyRefCount = "refcount" // Subscription refcount after the operation

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ----------------------------------------------------------------------------
// Frame & Call
// ----------------------------------------------------------------------------

// Namespace returns a slog.Attr for the frame namespace (rpc, events).
func Namespace(ns string) slog.Attr {
	return slog.String(KeyNamespace, ns)
}

// FrameName returns a slog.Attr for the frame name (call, response, ...).
func FrameName(name string) slog.Attr {
	return slog.String(KeyFrameName, name)
}

// CallID returns a slog.Attr for an RPC call id.
func CallID(id string) slog.Attr {
	return slog.String(KeyCallID, id)
}

// Seqno returns a slog.Attr for a streaming fragment sequence number.
func Seqno(n uint64) slog.Attr {
	return slog.Uint64(KeySeqno, n)
}

// Status returns a slog.Attr for a call status string.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// ErrorCode returns a slog.Attr for a numeric wire error code.
func ErrorCode(code int32) slog.Attr {
	return slog.Int(KeyErrorCode, int(code))
}

// ----------------------------------------------------------------------------
// Instance Tree
// ----------------------------------------------------------------------------

// Path returns a slog.Attr for an instance path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Interface returns a slog.Attr for an interface name.
func Interface(name string) slog.Attr {
	return slog.String(KeyInterface, name)
}

// Method returns a slog.Attr for a member name.
func Method(name string) slog.Attr {
	return slog.String(KeyMethod, name)
}

// ----------------------------------------------------------------------------
// Transport & Connection
// ----------------------------------------------------------------------------

// URI returns a slog.Attr for a transport URI.
func URI(uri string) slog.Attr {
	return slog.String(KeyURI, uri)
}

// Transport returns a slog.Attr for a transport scheme name.
func Transport(scheme string) slog.Attr {
	return slog.String(KeyTransport, scheme)
}

// ClientID returns a slog.Attr for a connection identifier.
func ClientID(id string) slog.Attr {
	return slog.String(KeyClientID, id)
}

// Credentials returns a slog.Attr summarizing a peer's uid/gid/pid.
func Credentials(summary string) slog.Attr {
	return slog.String(KeyCredentials, summary)
}

// FDCount returns a slog.Attr for the number of fds carried in a frame.
func FDCount(n int) slog.Attr {
	return slog.Int(KeyFDCount, n)
}

// BytesWritten returns a slog.Attr for bytes written on send.
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// BytesRead returns a slog.Attr for bytes read on recv.
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// ----------------------------------------------------------------------------
// Serializer
// ----------------------------------------------------------------------------

// Codec returns a slog.Attr for a serializer codec name.
func Codec(name string) slog.Attr {
	return slog.String(KeyCodec, name)
}

// ----------------------------------------------------------------------------
// Subscription / Property Watch
// ----------------------------------------------------------------------------

// Event returns a slog.Attr for an event name.
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// RefCount returns a slog.Attr for a subscription refcount.
func RefCount(n int) slog.Attr {
	return slog.Int(KeyRefCount, n)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
