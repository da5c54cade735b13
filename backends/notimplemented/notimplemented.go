// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package notimplemented implements a collective module that returns a "not implemented" error
// for all operations.
//
// It can be embedded to bootstrap a component that only implements some of the collectives, and
// it is used as a mock module in tests.
package notimplemented

import (
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/pkg/errors"
)

// ErrNotImplemented is returned (wrapped) by every method. Its status class is ErrOther.
//
// It doesn't contain a stack, attach a stack to it with errors.Wrapf(ErrNotImplemented, "...") when using it.
var ErrNotImplemented = errors.New("not implemented")

// Module is a collective module with no implemented operation.
type Module struct {
	// ComponentName returned by Name. If empty, "notimplemented" is used.
	ComponentName string
}

var _ comm.AllReducer = &Module{}

// Name returns the component name.
func (m *Module) Name() string {
	if m.ComponentName == "" {
		return "notimplemented"
	}
	return m.ComponentName
}

// AllReduce returns ErrNotImplemented.
func (m *Module) AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) error {
	return errors.Wrapf(ErrNotImplemented, "in %s.AllReduce() on %s", m.Name(), c)
}

// Disable is a no-op.
func (m *Module) Disable(c *comm.Communicator) {}
