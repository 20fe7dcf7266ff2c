package documents

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies why a workflow request was refused
type ErrorKind int

const (
	KindInvalidTransition ErrorKind = iota + 1
	KindNotAuthorized
	KindEmptySelection
	KindReasonRequired
	KindStaleState
	KindInvalidChain
	KindNotFound
	KindInvalidInput
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrEmptySelection    = errors.New("empty reviewer selection")
	ErrReasonRequired    = errors.New("rejection reason required")
	ErrStaleState        = errors.New("stale document state")
	ErrInvalidChain      = errors.New("invalid reviewer chain")
	ErrNotFound          = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidTransition: ErrInvalidTransition,
	KindNotAuthorized:     ErrNotAuthorized,
	KindEmptySelection:    ErrEmptySelection,
	KindReasonRequired:    ErrReasonRequired,
	KindStaleState:        ErrStaleState,
	KindInvalidChain:      ErrInvalidChain,
	KindNotFound:          ErrNotFound,
	KindInvalidInput:      ErrInvalidInput,
}

// WorkflowError is returned for every refused request. The document is never mutated.
type WorkflowError struct {
	Kind       ErrorKind
	DocumentID uuid.UUID
	Message    string
}

func (e *WorkflowError) Error() string {
	if e.DocumentID == uuid.Nil {
		return fmt.Sprintf("%s: %s", kindSentinels[e.Kind], e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", kindSentinels[e.Kind], e.DocumentID, e.Message)
}

// Unwrap lets errors.Is match the sentinel for the kind
func (e *WorkflowError) Unwrap() error {
	return kindSentinels[e.Kind]
}

func newWorkflowError(kind ErrorKind, docID uuid.UUID, format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{
		Kind:       kind,
		DocumentID: docID,
		Message:    fmt.Sprintf(format, args...),
	}
}

// UserMessage maps an error to the actionable text shown to the caller
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "this action is not available for the document's current status"
	case errors.Is(err, ErrNotAuthorized):
		return "you are not the current reviewer"
	case errors.Is(err, ErrEmptySelection):
		return "select at least one reviewer"
	case errors.Is(err, ErrReasonRequired):
		return "enter a rejection reason"
	case errors.Is(err, ErrStaleState):
		return "the document changed since you loaded it, refresh and try again"
	case errors.Is(err, ErrInvalidChain):
		return "the reviewer chain must contain the owner exactly once and no duplicates"
	case errors.Is(err, ErrNotFound):
		return "document not found"
	case errors.Is(err, ErrInvalidInput):
		var werr *WorkflowError
		if errors.As(err, &werr) {
			return werr.Message
		}
		return "invalid input"
	default:
		return "unexpected error"
	}
}
