// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package comm

import (
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/pkg/errors"
)

// Module is a collective module instance bound to one communicator.
type Module interface {
	// Name of the component that created the module, e.g. "sm".
	Name() string
}

// AllReducer is implemented by modules that provide AllReduce.
//
// AllReduce must return an error rather than panic on recoverable failures, treat the buffers as
// borrowed for the call only, and leave the reference count of op as it found it.
type AllReducer interface {
	Module
	AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *Communicator) error
}

// ModuleDisabler is optionally implemented by modules that need to release resources when the
// communicator they are bound to is freed.
type ModuleDisabler interface {
	Disable(c *Communicator)
}

// AllReduceFunc is the entry point of a module for AllReduce.
type AllReduceFunc func(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *Communicator, module Module) error

// Table maps each collective operation to the (entry point, module) pair bound for a communicator.
//
// It is filled once at selection time and immutable afterward.
type Table struct {
	AllReduce       AllReduceFunc
	AllReduceModule Module

	owner *Communicator
}

func allReduceEntry(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *Communicator, module Module) error {
	return module.(AllReducer).AllReduce(send, recv, count, dt, op, c)
}

// NewTable returns a Table for c with the collectives provided by module bound.
func NewTable(c *Communicator, module Module) (*Table, error) {
	t := &Table{owner: c}
	if err := t.Bind(module); err != nil {
		return nil, err
	}
	return t, nil
}

// Bind module to all the collectives it implements.
// It returns an error if module implements none of them.
func (t *Table) Bind(module Module) error {
	if module == nil {
		return errors.New("cannot bind a nil module")
	}
	bound := false
	if _, ok := module.(AllReducer); ok {
		t.AllReduce = allReduceEntry
		t.AllReduceModule = module
		bound = true
	}
	if !bound {
		return errors.Errorf("module %q doesn't implement any collective operation", module.Name())
	}
	return nil
}

// disable notifies the bound modules that the communicator was freed.
func (t *Table) disable() {
	if d, ok := t.AllReduceModule.(ModuleDisabler); ok {
		d.Disable(t.owner)
	}
}
