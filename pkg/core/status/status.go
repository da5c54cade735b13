// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package status defines the closed set of status codes returned by the collective entry points,
// and the conversion of backend errors into those codes.
//
// A Code is an int: Success is 0, and every other value is an error class with the numbering used
// by MPI implementations. Non-success codes implement the error interface, so backends can simply
// return them (or wrap them with github.com/pkg/errors) and FromError will recover the class.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the status returned by a collective call.
type Code int

const (
	// Success means the call completed without errors.
	Success Code = 0

	// ErrBuffer is returned for an invalid buffer pointer (e.g. illegal sentinel or aliased buffers).
	ErrBuffer Code = 1

	// ErrCount is returned for a negative element count.
	ErrCount Code = 2

	// ErrType is returned for a null or uncommitted datatype.
	ErrType Code = 3

	// ErrComm is returned for an invalid communicator handle.
	ErrComm Code = 5

	// ErrOp is returned for the null operation, or an operation not defined for the datatype.
	ErrOp Code = 10

	// ErrOther is a generic failure, the class of any backend error without an explicit code.
	ErrOther Code = 16

	// ErrIntern is an internal error of the library, e.g. a communicator without a collective module.
	ErrIntern Code = 17
)

var codeNames = map[Code]string{
	Success:   "MPI_SUCCESS",
	ErrBuffer: "MPI_ERR_BUFFER",
	ErrCount:  "MPI_ERR_COUNT",
	ErrType:   "MPI_ERR_TYPE",
	ErrComm:   "MPI_ERR_COMM",
	ErrOp:     "MPI_ERR_OP",
	ErrOther:  "MPI_ERR_OTHER",
	ErrIntern: "MPI_ERR_INTERN",
}

var codeDescriptions = map[Code]string{
	Success:   "no errors",
	ErrBuffer: "invalid buffer pointer",
	ErrCount:  "invalid count argument",
	ErrType:   "invalid datatype",
	ErrComm:   "invalid communicator",
	ErrOp:     "invalid reduce operation",
	ErrOther:  "known error not in list",
	ErrIntern: "internal error",
}

// Name returns the symbolic name of the code, e.g. "MPI_ERR_OP".
func (c Code) Name() string {
	if name, found := codeNames[c]; found {
		return name
	}
	return fmt.Sprintf("MPI_ERR_UNKNOWN(%d)", int(c))
}

// String returns the name followed by the description, e.g. "MPI_ERR_OP: invalid reduce operation".
func (c Code) String() string {
	description, found := codeDescriptions[c]
	if !found {
		description = "unknown error"
	}
	return c.Name() + ": " + description
}

// Error implements the error interface. Only meaningful for non-success codes.
func (c Code) Error() string {
	return c.String()
}

// IsSuccess returns whether c is Success.
func (c Code) IsSuccess() bool {
	return c == Success
}

// Known returns whether c is one of the codes defined in this package.
func (c Code) Known() bool {
	_, found := codeNames[c]
	return found
}

// Errorf returns an error of class code with a formatted message and a stack trace.
// FromError recovers the code from it, even after further wrapping.
func Errorf(code Code, format string, args ...any) error {
	return errors.Wrapf(code, format, args...)
}

// FromError normalizes the result of a backend into a status Code:
//
//   - nil is Success;
//   - an error that wraps a Code returns that Code (a wrapped Success is treated as ErrOther,
//     since a non-nil error must be a failure);
//   - any other error is ErrOther.
func FromError(err error) Code {
	if err == nil {
		return Success
	}
	var code Code
	if errors.As(err, &code) && code != Success {
		return code
	}
	return ErrOther
}
