// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pmpi

import (
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"k8s.io/klog/v2"
)

// AllReduce combines count items of dt from the send buffer of every process of c with op, and
// delivers the result to the recv buffer of every process.
//
// With send set to buffers.InPlace, recv is both the input and the output.
//
// Failures are reported through the error handler of the communicator (World for an invalid
// communicator, the fatal handler if the library is not initialized), and the handler's result is
// returned. With the default handler the process aborts.
//
// The call is collective: all processes of c must call it with matching count, datatype and op.
// Validation is local, so if some processes fail validation and others don't, the latter block
// until the former issue a matching valid call.
func (p *Process) AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code {
	args := &Args{Send: send, Recv: recv, Count: count, Datatype: dt, Op: op, Comm: c}
	res := p.Validate(args)
	switch res.Kind {
	case ZeroCount:
		if klog.V(2).Enabled() {
			klog.Infof("%s: count=0 on %s, nothing to do", FuncAllReduce, c)
		}
		return status.Success
	case Fail:
		return report(res, FuncAllReduce)
	}
	code := p.dispatchAllReduce(args)
	return errhandler.Finalize(c, code, FuncAllReduce)
}

// report a failed validation. The message is released once the handler returns.
func report(res Result, funcName string) status.Code {
	if res.Message != nil {
		defer res.Message.Release()
	}
	return errhandler.Finalize(res.Notify, res.Code, res.ReportMessage(funcName))
}

// dispatchAllReduce calls the module bound to the communicator inside the critical section and
// holding a reference to the op. Both are released before returning, on every path.
//
// If the op was freed since validation, it returns ErrOp without calling the module.
func (p *Process) dispatchAllReduce(a *Args) status.Code {
	defer p.section.Enter().Exit()
	ref, ok := a.Op.TryAcquire()
	if !ok {
		// Freed by another goroutine after validation.
		if klog.V(2).Enabled() {
			klog.Infof("%s: operation %s released before dispatch", FuncAllReduce, a.Op)
		}
		return status.ErrOp
	}
	defer ref.Release()

	table := a.Comm.Table()
	if table == nil || table.AllReduce == nil {
		klog.Errorf("%s: no collective module bound to %s", FuncAllReduce, a.Comm)
		return status.ErrIntern
	}
	if klog.V(2).Enabled() {
		klog.Infof("%s: dispatching count=%d, datatype=%s, op=%s on %s to %q",
			FuncAllReduce, a.Count, a.Datatype, a.Op, a.Comm, table.AllReduceModule.Name())
	}
	err := table.AllReduce(a.Send, a.Recv, a.Count, a.Datatype, a.Op, a.Comm, table.AllReduceModule)
	if err != nil && klog.V(2).Enabled() {
		klog.Infof("%s: module %q failed: %+v", FuncAllReduce, table.AllReduceModule.Name(), err)
	}
	return status.FromError(err)
}

// AllReduce on the default Process, see Process.AllReduce.
func AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code {
	return defaultProcess.AllReduce(send, recv, count, dt, op, c)
}
