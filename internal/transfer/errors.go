package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrTransferRejected  = errors.New("receiver rejected the transfer")
	ErrTransferCancelled = errors.New("transfer cancelled")
	ErrUnexpectedMessage = errors.New("unexpected message type")
	ErrInvalidFilename   = errors.New("invalid filename")
	ErrDuplicateID       = errors.New("duplicate transfer id")
	ErrRemoteError       = errors.New("peer reported an error")
)

// Error carries the operation and file a transfer failure belongs to, so the
// session layer can report something more useful than a bare cause.
type Error struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *Error {
	return &Error{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
