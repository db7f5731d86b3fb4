package client

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/bola/internal/ui"
)

var (
	ErrServer           = errors.New("server error")
	ErrConnectionFailed = errors.New("connection failed")
	ErrStreamClosed     = errors.New("stream closed by server")
	ErrNotStarted       = errors.New("tournament has not started")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
