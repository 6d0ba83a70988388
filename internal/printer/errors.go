package printer

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorConnection ErrorKind = "connection"
	ErrorTransmit   ErrorKind = "transmit"
)

// Error is returned by every Channel operation that fails. Kind tells the
// coordinator whether the port could not be reached or a write failed on an
// open connection.
type Error struct {
	Kind ErrorKind
	Op   string
	Port string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	op := e.Op
	if e.Port != "" {
		op = fmt.Sprintf("%s %s", e.Op, e.Port)
	}
	if e.Err == nil {
		if op != "" {
			return op
		}
		return string(e.Kind) + " error"
	}
	if op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	ErrNotConnected    = errors.New("printer not connected")
	ErrUnsupportedPort = errors.New("no transport for port")
)

func WrapConnection(op, port string, err error) error {
	if err == nil {
		err = errors.New("connection failed")
	}
	return &Error{Kind: ErrorConnection, Op: op, Port: port, Err: err}
}

func WrapTransmit(op, port string, err error) error {
	if err == nil {
		err = errors.New("transmit failed")
	}
	return &Error{Kind: ErrorTransmit, Op: op, Port: port, Err: err}
}

func IsConnection(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == ErrorConnection
}

func IsTransmit(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == ErrorTransmit
}
