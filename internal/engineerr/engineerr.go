// Package engineerr classifies every fault the execution engine can surface into
// the closed taxonomy from spec §7. Handlers and collaborators wrap faults into an
// *Error before they cross back into the engine; the engine never panics on user input.
package engineerr

import "fmt"

// Kind is the closed set of error classifications surfaced on execution.error.kind.
type Kind string

const (
	Validation       Kind = "validation"
	NoMatchingBranch Kind = "no_matching_branch"
	HandlerFailure   Kind = "handler_failure"
	ToolTransport    Kind = "tool_transport"
	ToolNotEnabled   Kind = "tool_not_enabled"
	Cancelled        Kind = "cancelled"
	Internal         Kind = "internal"
)

// Error is the stable {kind, message} pair recorded on a failed execution.
type Error struct {
	Kind    Kind
	Message string
	NodeID  string
	Status  int // populated for ToolTransport: the last HTTP status observed
	cause   error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Kind, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, cause: cause}
}

func Validate(reason, msg string) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf("%s: %s", reason, msg)}
}

func NoBranch(nodeID string) *Error {
	return &Error{Kind: NoMatchingBranch, Message: "no matching branch", NodeID: nodeID}
}

func HandlerFailed(nodeID string, cause error) *Error {
	return &Error{Kind: HandlerFailure, Message: cause.Error(), NodeID: nodeID, cause: cause}
}

func Transport(nodeID string, status int, cause error) *Error {
	msg := "tool transport failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: ToolTransport, Message: msg, NodeID: nodeID, Status: status, cause: cause}
}

func NotEnabled(nodeID, toolID string) *Error {
	return &Error{Kind: ToolNotEnabled, Message: fmt.Sprintf("tool %q not enabled for user", toolID), NodeID: nodeID}
}

func CancelledErr() *Error {
	return &Error{Kind: Cancelled, Message: "cancelled"}
}

func InternalErr(cause error) *Error {
	return newErr(Internal, cause.Error(), cause)
}

// As extracts an *Error from a plain error, wrapping unclassified errors as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return InternalErr(err)
}
