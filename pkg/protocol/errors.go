package protocol

// Error type discriminants carried in the error event. Clients key their
// messaging off Type; Message is advisory.
const (
	ErrAuthentication = "AUTHENTICATION_ERROR"
	ErrAuthorization  = "AUTHORIZATION_ERROR"
	ErrConnection     = "CONNECTION_ERROR"
	ErrSlotNotFound   = "SCHEDULE_SLOT_NOT_FOUND"
	ErrCapacity       = "CAPACITY_ERROR"
	ErrNotFound       = "NOT_FOUND_ERROR"
	ErrDuplicate      = "DUPLICATE_ERROR"
	ErrUnknown        = "UNKNOWN_ERROR"
)

// Handshake rejection bodies. The authenticator deliberately collapses every
// failure variant into the same string so nothing about token validation
// leaks to unauthenticated clients.
const (
	RejectAuthentication = "Authentication failed"
	RejectRateLimit      = "Rate limit exceeded"
)

// ErrorEvent is the payload of the error outbound event.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
