package workflow

import "errors"

// Kind classifies workflow errors so callers can react without matching messages
type Kind string

const (
	KindValidation             Kind = "validation"
	KindPermissionDenied       Kind = "permission_denied"
	KindPreconditionFailed     Kind = "precondition_failed"
	KindConcurrentModification Kind = "concurrent_modification"
	KindConfiguration          Kind = "configuration"
	KindTransport              Kind = "transport"
	KindNotFound               Kind = "not_found"
	KindInternal               Kind = "internal"
)

// Error is a classified sentinel error
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Kind returns the error classification
func (e *Error) Kind() Kind {
	return e.kind
}

var (
	// ErrUnknownState is returned when a target state does not belong to the definition
	ErrUnknownState = newError(KindValidation, "unknown state")

	// ErrUnknownDefinition is returned when a workflow definition cannot be resolved
	ErrUnknownDefinition = newError(KindValidation, "unknown workflow definition")

	// ErrUnknownContent is returned when a content id or type is missing or not accepted
	ErrUnknownContent = newError(KindValidation, "unknown content")

	// ErrInvalidDefinition is returned when a definition fails validation
	ErrInvalidDefinition = newError(KindValidation, "invalid workflow definition")

	// ErrNoSuchTransition is returned when no active rule connects the two states
	ErrNoSuchTransition = newError(KindValidation, "no such transition")

	// ErrForbidden is returned when none of the actor's roles is allowed by the rule
	ErrForbidden = newError(KindPermissionDenied, "transition forbidden for actor roles")

	// ErrCommentRequired is returned when the rule requires a comment and none was given
	ErrCommentRequired = newError(KindPreconditionFailed, "comment required")

	// ErrInstanceNotActive is returned when a transition targets a non-active instance
	ErrInstanceNotActive = newError(KindPreconditionFailed, "workflow instance is not active")

	// ErrAlreadyInWorkflow is returned when content already has a live instance
	ErrAlreadyInWorkflow = newError(KindPreconditionFailed, "content is already in a workflow")

	// ErrNoInitialState is returned when a definition has no initial state
	ErrNoInitialState = newError(KindPreconditionFailed, "workflow definition has no initial state")

	// ErrNoActiveWorkflow is returned when content has no workflow instance
	ErrNoActiveWorkflow = newError(KindNotFound, "content has no active workflow")

	// ErrDefinitionMismatch is returned when an instance is evaluated against a foreign definition
	ErrDefinitionMismatch = newError(KindPreconditionFailed, "definition does not match instance")

	// ErrInvalidLifecycleChange is returned when an administrative status change is not allowed
	ErrInvalidLifecycleChange = newError(KindPreconditionFailed, "invalid lifecycle change")

	// ErrDefinitionInUse is returned when deleting a definition that instances still reference
	ErrDefinitionInUse = newError(KindPreconditionFailed, "workflow definition is referenced by instances")

	// ErrAmbiguousTransition is returned when more than one active rule connects the same states
	ErrAmbiguousTransition = newError(KindConfiguration, "ambiguous transition rules")

	// ErrConcurrentModification is returned when an instance was changed by someone else
	ErrConcurrentModification = newError(KindConcurrentModification, "concurrent modification")

	// ErrQueueFull is returned when an event cannot be enqueued before the timeout
	ErrQueueFull = newError(KindTransport, "event queue is full")

	// ErrQueueClosed is returned when publishing to a closed queue
	ErrQueueClosed = newError(KindTransport, "event queue is closed")

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = newError(KindNotFound, "not found")
)

// KindOf returns the classification of the first workflow error in the chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr.kind
	}
	return KindInternal
}
