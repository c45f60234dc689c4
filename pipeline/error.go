package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSendTimeout is the cause of a reply that did not come in time.
	ErrSendTimeout = errors.New("no reply within the delivery timeout")
	// ErrBusClosed is the cause of a send to a closed bus.
	ErrBusClosed = errors.New("bus is closed")
	// ErrNoHandler is the cause of a send to an unknown topic.
	ErrNoHandler = errors.New("no handler registered")
)

// Kind classifies pipeline failures.
type Kind int

// The failure kinds.
const (
	KindGrammar Kind = iota + 1
	KindTransform
	KindResource
	KindStorage
	KindTimeout
	KindAggregate
)

var kindNames = map[Kind]string{
	KindGrammar:   "grammar",
	KindTransform: "transform",
	KindResource:  "resource exhausted",
	KindStorage:   "storage",
	KindTimeout:   "timeout",
	KindAggregate: "aggregate",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the cause attached to a failed reply.
type Error struct {
	Kind  Kind
	Stage string
	ID    string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s (%s): %s error: %v", e.Stage, e.ID, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s error: %v", e.Stage, e.ID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable tells whether running the ingest again may succeed.
func (e *Error) Retryable() bool {
	return e.Kind != KindGrammar
}

func stageError(kind Kind, stage string, m Message, err error) *Error {
	return &Error{
		Kind:  kind,
		Stage: stage,
		ID:    m.ID,
		Path:  m.IIIFPath,
		Err:   err,
	}
}
