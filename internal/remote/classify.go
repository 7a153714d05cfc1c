// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass partitions execution failures into the four categories the
// rest of the application needs to message distinctly.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassAuth
	ClassUnreachable
	ClassTransport
)

// String returns a short name for logging.
func (c ErrorClass) String() string {
	switch c {
	case ClassAuth:
		return "auth_failure"
	case ClassUnreachable:
		return "unreachable"
	case ClassTransport:
		return "transport_error"
	}
	return "unknown"
}

// Error is a classified execution failure.
type Error struct {
	Class ErrorClass
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf extracts the class of a classified error; unclassified errors
// report ClassUnknown.
func ClassOf(err error) ErrorClass {
	var re *Error
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassUnknown
}

// Classify wraps an SSH failure with its error class. The ssh package
// does not export typed dial errors, so this matches on the stable
// error strings the library produces, the same way interactive ssh
// tooling does.
func Classify(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "no supported methods remain"):
		return &Error{Class: ClassAuth, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Class: ClassUnreachable, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Class: ClassUnreachable, Err: err}
	}

	switch {
	case strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "no such host"):
		return &Error{Class: ClassUnreachable, Err: err}
	case strings.Contains(msg, "ssh:"), strings.Contains(msg, "handshake failed"):
		return &Error{Class: ClassTransport, Err: err}
	}

	return &Error{Class: ClassUnknown, Err: err}
}
