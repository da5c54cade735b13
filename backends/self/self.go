// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package self implements the collective component for communicators of a single process,
// where every reduction is a local copy.
//
// It registers itself as "self" in github.com/gomlx/gocoll/backends.
package self

import (
	"github.com/gomlx/gocoll/backends"
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/pkg/errors"
)

// ComponentName used to register and configure the component.
const ComponentName = "self"

// Priority of the component: it is preferred whenever it accepts the communicator.
const Priority = 75

func init() {
	backends.Register(ComponentName, Priority, New)
}

// Module is the self collective module.
type Module struct{}

var _ comm.AllReducer = Module{}

// New returns a Module if c has a single process, or nil otherwise.
func New(c *comm.Communicator, _ string) (comm.Module, error) {
	if c.Size() != 1 {
		return nil, nil
	}
	return Module{}, nil
}

// Name implements comm.Module.
func (Module) Name() string {
	return ComponentName
}

// AllReduce of one process: recv = send.
func (Module) AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) error {
	if send.IsBottom() || recv.IsBottom() {
		return status.Errorf(status.ErrBuffer, "self.AllReduce(): MPI_BOTTOM buffers are not supported")
	}
	n, err := dt.NumBytes(count)
	if err != nil {
		return errors.WithMessage(err, "self.AllReduce()")
	}
	if recv.Len() < n {
		return status.Errorf(status.ErrBuffer, "self.AllReduce(): receive buffer of %d bytes for %d items of %s", recv.Len(), count, dt)
	}
	if send.IsInPlace() || buffers.SameAddress(send, recv) {
		return nil
	}
	if send.Len() < n {
		return status.Errorf(status.ErrBuffer, "self.AllReduce(): send buffer of %d bytes for %d items of %s", send.Len(), count, dt)
	}
	copy(recv.Bytes()[:n], send.Bytes()[:n])
	return nil
}
