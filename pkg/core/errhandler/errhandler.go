// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package errhandler implements the error handlers attached to communicators, and the
// reporter that routes failed calls through them.
//
// A Handler may return a status to be propagated to the caller (ErrorsReturn, most user handlers)
// or not return at all (ErrorsAreFatal aborts the process). Callers must not hold any library
// resource when invoking a handler.
package errhandler

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/gocoll/pkg/core/status"
	"k8s.io/klog/v2"
)

// Target is the object an error is reported on, typically a communicator.
type Target interface {
	// Name used in error reports.
	Name() string

	// ErrHandler returns the handler configured for the target. nil means ErrorsAreFatal.
	ErrHandler() Handler
}

// Handler is invoked with the target, the error code and a message (usually the name of the
// function that failed). It returns the status to give back to the caller, or doesn't return.
type Handler interface {
	Invoke(target Target, code status.Code, message string) status.Code
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(target Target, code status.Code, message string) status.Code

// Invoke implements Handler.
func (fn HandlerFunc) Invoke(target Target, code status.Code, message string) status.Code {
	return fn(target, code, message)
}

// Abort terminates the process with the given code. It is called by ErrorsAreFatal.
//
// It can be reassigned, e.g. by tests, but it must not return.
var Abort = func(code status.Code) {
	klog.Flush()
	os.Exit(int(code))
}

type fatalHandler struct{}

// Invoke implements Handler.
func (fatalHandler) Invoke(target Target, code status.Code, message string) status.Code {
	var sb strings.Builder
	if message == "" {
		message = "an MPI function"
	}
	fmt.Fprintf(&sb, "*** An error occurred in %s\n", message)
	if target != nil {
		fmt.Fprintf(&sb, "*** on communicator %s\n", target.Name())
	} else {
		sb.WriteString("*** before MPI was initialized or after it was finalized\n")
	}
	fmt.Fprintf(&sb, "*** %s\n", code)
	sb.WriteString("*** MPI_ERRORS_ARE_FATAL (your MPI job will now abort)")
	klog.Error(sb.String())
	Abort(code)
	return code
}

var (
	// ErrorsAreFatal logs the error and aborts the process. It is the default handler.
	ErrorsAreFatal Handler = fatalHandler{}

	// ErrorsReturn simply returns the error code to the caller.
	ErrorsReturn Handler = HandlerFunc(func(_ Target, code status.Code, _ string) status.Code {
		return code
	})
)

// Finalize normalizes the result of a call: Success is returned unchanged, any other code is
// routed through the handler of target (ErrorsAreFatal if target is nil or has no handler), and
// the handler's result is returned.
//
// It must only be called after all library resources of the call were released, since the
// handler may not return.
func Finalize(target Target, code status.Code, message string) status.Code {
	if code == status.Success {
		return code
	}
	var handler Handler
	if target != nil {
		handler = target.ErrHandler()
	}
	if handler == nil {
		handler = ErrorsAreFatal
	}
	if klog.V(2).Enabled() {
		klog.Infof("%s: reporting %s through the handler of %s", message, code.Name(), targetName(target))
	}
	return handler.Invoke(target, code, message)
}

func targetName(target Target) string {
	if target == nil {
		return "<no communicator>"
	}
	return target.Name()
}
