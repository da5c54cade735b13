// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pmpi

import (
	"fmt"

	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"k8s.io/klog/v2"
)

// FuncAllReduce is the name AllReduce uses in error reports.
const FuncAllReduce = "MPI_Allreduce"

// Args of a collective reduction call.
type Args struct {
	Send, Recv buffers.Buffer
	Count      int
	Datatype   *dtypes.Datatype
	Op         *ops.Op
	Comm       *comm.Communicator
}

// ResultKind is the outcome of validating Args.
type ResultKind int

const (
	// Proceed means the call must be dispatched to the collective module.
	Proceed ResultKind = iota

	// ZeroCount means the call completes successfully without any communication.
	ZeroCount

	// Fail means the call must be reported through the error handler of Result.Notify.
	Fail
)

func (k ResultKind) String() string {
	switch k {
	case Proceed:
		return "Proceed"
	case ZeroCount:
		return "ZeroCount"
	case Fail:
		return "Fail"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result of Validate.
type Result struct {
	Kind ResultKind

	// Code to report, for Kind == Fail.
	Code status.Code

	// Notify is the object whose error handler is invoked, for Kind == Fail.
	// It is nil when the library is not usable, in which case errors are fatal.
	Notify errhandler.Target

	// Message, if not nil, is reported instead of the function name, and must be released once
	// the handler returns.
	Message *errhandler.Message
}

// ReportMessage returns the text given to the error handler.
func (r Result) ReportMessage(funcName string) string {
	if r.Message != nil {
		return r.Message.String()
	}
	return funcName
}

// check is one validation step: it returns (result, true) if validation ends at this step.
type check func(p *Process, a *Args) (Result, bool)

var (
	// fullChecks are applied in order, the first one to end validation wins.
	fullChecks = []check{
		checkLibraryState,
		checkComm,
		checkZeroCount,
		checkOpNotNull,
		checkOpForDatatype,
		checkRecvNotInPlace,
		checkNoAliasing,
		checkDatatype,
	}

	// unchecked is used when parameter checking is disabled.
	unchecked = []check{checkZeroCount}
)

// Validate the arguments of AllReduce.
//
// Validation is local: it never communicates, so processes of the communicator may reach
// different outcomes for the same collective call.
func (p *Process) Validate(a *Args) Result {
	checks := unchecked
	if p.opts.ParamCheck {
		checks = fullChecks
	}
	for _, c := range checks {
		if res, done := c(p, a); done {
			if res.Kind == Fail && klog.V(2).Enabled() {
				klog.Infof("%s: validation failed with %s (count=%d, datatype=%s, op=%s, comm=%s)",
					FuncAllReduce, res.Code.Name(), a.Count, a.Datatype, a.Op, a.Comm)
			}
			return res
		}
	}
	return Result{Kind: Proceed}
}

func fail(code status.Code, notify errhandler.Target) (Result, bool) {
	return Result{Kind: Fail, Code: code, Notify: notify}, true
}

const (
	msgNotInitialized = "The " + FuncAllReduce + "() function was called before MPI_INIT was invoked."
	msgFinalized      = "The " + FuncAllReduce + "() function was called after MPI_FINALIZE was invoked."
)

// checkLibraryState requires Init to have completed and Finalize not to have been called.
// Errors go to the fatal handler, since there is no communicator to report on.
func checkLibraryState(p *Process, _ *Args) (Result, bool) {
	switch processState(p.state.Load()) {
	case stateInitialized:
		return Result{}, false
	case stateFinalized:
		return Result{Kind: Fail, Code: status.ErrOther, Message: errhandler.NewMessage(msgFinalized)}, true
	default:
		return Result{Kind: Fail, Code: status.ErrOther, Message: errhandler.NewMessage(msgNotInitialized)}, true
	}
}

// checkComm reports an invalid communicator on World.
func checkComm(p *Process, a *Args) (Result, bool) {
	if comm.Invalid(a.Comm) {
		return fail(status.ErrComm, p.world)
	}
	return Result{}, false
}

func checkZeroCount(_ *Process, a *Args) (Result, bool) {
	if a.Count == 0 {
		return Result{Kind: ZeroCount}, true
	}
	return Result{}, false
}

func checkOpNotNull(_ *Process, a *Args) (Result, bool) {
	if ops.IsNull(a.Op) {
		return fail(status.ErrOp, a.Comm)
	}
	return Result{}, false
}

func checkOpForDatatype(_ *Process, a *Args) (Result, bool) {
	if ok, msg := a.Op.ValidFor(a.Datatype, FuncAllReduce); !ok {
		return Result{Kind: Fail, Code: status.ErrOp, Notify: a.Comm, Message: errhandler.NewMessage(msg)}, true
	}
	return Result{}, false
}

func checkRecvNotInPlace(_ *Process, a *Args) (Result, bool) {
	if a.Recv.IsInPlace() {
		return fail(status.ErrBuffer, a.Comm)
	}
	return Result{}, false
}

// checkNoAliasing rejects sending and receiving from the same address, except for MPI_BOTTOM
// and single item reductions.
func checkNoAliasing(_ *Process, a *Args) (Result, bool) {
	if buffers.SameAddress(a.Send, a.Recv) && !a.Send.IsBottom() && a.Count > 1 {
		return fail(status.ErrBuffer, a.Comm)
	}
	return Result{}, false
}

func checkDatatype(_ *Process, a *Args) (Result, bool) {
	if code := dtypes.CheckForSend(a.Datatype, a.Count); code != status.Success {
		return fail(code, a.Comm)
	}
	return Result{}, false
}
