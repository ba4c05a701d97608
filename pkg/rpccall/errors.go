package rpccall

// Reserved error codes for transport/protocol conditions the core itself
// raises (spec §4.3 "Error taxonomy (wire)"). Application error codes are
// POSIX errno-compatible and live outside this range; these use negative
// values so they can never collide with a valid errno.
const (
	ErrInvalidResponse  int32 = -1
	ErrConnectionTimeout int32 = -2
	ErrConnectionClosed int32 = -3
	ErrCallTimeout      int32 = -4
	ErrSpuriousResponse int32 = -5
	ErrLogout           int32 = -6
	ErrTransportError   int32 = -7
	ErrOther            int32 = -8
)

// errorMessages gives each reserved code its canonical wire message.
var errorMessages = map[int32]string{
	ErrInvalidResponse:  "invalid response",
	ErrConnectionTimeout: "connection timeout",
	ErrConnectionClosed: "connection closed",
	ErrCallTimeout:      "call timeout",
	ErrSpuriousResponse: "spurious response",
	ErrLogout:           "logout",
	ErrTransportError:   "transport error",
	ErrOther:            "other",
}

// Message returns the canonical message for a reserved core error code, or
// "" if code is not one of them.
func Message(code int32) string {
	return errorMessages[code]
}
