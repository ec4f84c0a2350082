package collab

import (
	"errors"
	"strings"

	"github.com/schoolpool/realtime/pkg/protocol"
)

// Typed mutation failures. The scheduling collaborator raises these so the
// notification layer can switch on the tag instead of the message text.

type CapacityError struct{ Msg string }

func (e *CapacityError) Error() string { return e.Msg }

type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

type DuplicateError struct{ Msg string }

func (e *DuplicateError) Error() string { return e.Msg }

// ClassifyError maps a mutation failure to its error-event type. Typed
// errors are matched first; untyped errors from older collaborators fall
// back to substring inspection of the message.
func ClassifyError(err error) string {
	var capErr *CapacityError
	if errors.As(err, &capErr) {
		return protocol.ErrCapacity
	}
	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return protocol.ErrNotFound
	}
	var dupErr *DuplicateError
	if errors.As(err, &dupErr) {
		return protocol.ErrDuplicate
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "capacity"):
		return protocol.ErrCapacity
	case strings.Contains(msg, "not found"):
		return protocol.ErrNotFound
	case strings.Contains(msg, "duplicate"), strings.Contains(msg, "already exists"):
		return protocol.ErrDuplicate
	default:
		return protocol.ErrUnknown
	}
}
