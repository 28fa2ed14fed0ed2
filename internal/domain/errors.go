package domain

import "fmt"

// FailureCategory classifies remote failures for user-facing notifications.
type FailureCategory string

const (
	CategoryConnection FailureCategory = "connection"
	CategoryLoad       FailureCategory = "load"
	CategorySend       FailureCategory = "send"
)

// InvalidIdentifierError reports a participant identifier that is not a
// well-formed decentralized identifier.
type InvalidIdentifierError struct {
	Identifier string
	Reason     string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Identifier, e.Reason)
}

// RemoteWriteError reports a failed create against the remote document store.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote write %s: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// Category returns the notification category for the failure.
func (e *RemoteWriteError) Category() FailureCategory { return CategorySend }

// RemoteReadError reports a failed query against the remote document store.
type RemoteReadError struct {
	Op  string
	Err error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("remote read %s: %v", e.Op, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// Category returns the notification category for the failure.
func (e *RemoteReadError) Category() FailureCategory { return CategoryLoad }

// ActiveGroupNotFoundError reports a conversation id that is not present in
// local state.
type ActiveGroupNotFoundError struct {
	ConversationID string
}

func (e *ActiveGroupNotFoundError) Error() string {
	return fmt.Sprintf("conversation %q not found", e.ConversationID)
}

// Categorized is implemented by errors that map to a notification category.
type Categorized interface {
	Category() FailureCategory
}
