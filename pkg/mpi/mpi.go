// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mpi is the public entry point of the collectives.
//
// Each function forwards to its implementation in github.com/gomlx/gocoll/pkg/pmpi, unless a
// profiling layer was installed with Interpose, in which case the layer is called instead. The
// layer can call the pmpi function itself to perform the operation.
//
// Example of a layer counting calls:
//
//	var calls atomic.Int64
//	mpi.Interpose(func(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code {
//		calls.Add(1)
//		return pmpi.AllReduce(send, recv, count, dt, op, c)
//	})
package mpi

import (
	"sync/atomic"

	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/gomlx/gocoll/pkg/pmpi"
)

// AllReduceFunc is the signature of AllReduce, and of its profiling layers.
type AllReduceFunc func(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code

var allReduceLayer atomic.Pointer[AllReduceFunc]

// Interpose installs fn as the profiling layer of AllReduce, and returns the previous one
// (pmpi.AllReduce if none was installed). A nil fn removes the layer.
func Interpose(fn AllReduceFunc) (previous AllReduceFunc) {
	var ptr *AllReduceFunc
	if fn != nil {
		ptr = &fn
	}
	if old := allReduceLayer.Swap(ptr); old != nil {
		return *old
	}
	return pmpi.AllReduce
}

// AllReduce combines count items of dt from all processes of c with op, and returns the result to
// all of them. See pmpi.Process.AllReduce for details.
func AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code {
	if layer := allReduceLayer.Load(); layer != nil {
		return (*layer)(send, recv, count, dt, op, c)
	}
	return pmpi.AllReduce(send, recv, count, dt, op, c)
}

// Init initializes the library with the options configured in the environment.
func Init() error {
	return pmpi.Init(pmpi.DefaultOptions())
}

// Finalize shuts the library down.
func Finalize() error {
	return pmpi.Finalize()
}

// World returns the communicator of all processes.
func World() *comm.Communicator {
	return pmpi.World()
}

// Self returns the communicator of the calling process only.
func Self() *comm.Communicator {
	return pmpi.Self()
}

// InPlace and Bottom are the buffer sentinels, see package buffers.
var (
	InPlace = buffers.InPlace
	Bottom  = buffers.Bottom
)
