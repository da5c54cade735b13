// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package comm defines the Communicator handle: the local view of a fixed group of cooperating
// processes, carrying its error handler and the collective modules bound to it.
package comm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/google/uuid"
)

// Communicator is the local handle of a process group.
//
// It is either valid, or invalid (Null, or freed). Collective modules are bound once, at selection
// time, with SetTable.
type Communicator struct {
	id     uuid.UUID
	name   string
	rank   int
	size   int
	isNull bool

	muHandler sync.RWMutex
	handler   errhandler.Handler

	table atomic.Pointer[Table]
	freed atomic.Bool
}

var _ errhandler.Target = (*Communicator)(nil)

// Null is the null communicator sentinel, it is never valid.
var Null = &Communicator{name: "MPI_COMM_NULL", isNull: true}

// New creates a communicator for the process of the given rank, in a group of size processes.
// The error handler defaults to errhandler.ErrorsAreFatal.
func New(name string, rank, size int) (*Communicator, error) {
	return NewWithID(uuid.New(), name, rank, size)
}

// NewWithID is like New, but uses the given group id. All the processes of a group should agree
// on the id.
func NewWithID(id uuid.UUID, name string, rank, size int) (*Communicator, error) {
	if size < 1 || rank < 0 || rank >= size {
		return nil, status.Errorf(status.ErrComm, "comm.New(%q): invalid rank %d for group of size %d", name, rank, size)
	}
	return &Communicator{
		id:      id,
		name:    name,
		rank:    rank,
		size:    size,
		handler: errhandler.ErrorsAreFatal,
	}, nil
}

// Invalid returns whether c can't be used: nil, Null or freed.
func Invalid(c *Communicator) bool {
	return c == nil || c.isNull || c.freed.Load()
}

// ID identifies the group; it is shared by the handles of all the processes of the group.
func (c *Communicator) ID() uuid.UUID {
	return c.id
}

// Name implements errhandler.Target.
func (c *Communicator) Name() string {
	return c.name
}

// String implements fmt.Stringer.
func (c *Communicator) String() string {
	if c == nil {
		return "<nil communicator>"
	}
	if c.isNull {
		return c.name
	}
	return fmt.Sprintf("%s(rank %d/%d)", c.name, c.rank, c.size)
}

// Rank of the local process in the group.
func (c *Communicator) Rank() int {
	return c.rank
}

// Size of the group.
func (c *Communicator) Size() int {
	return c.size
}

// ErrHandler implements errhandler.Target.
func (c *Communicator) ErrHandler() errhandler.Handler {
	c.muHandler.RLock()
	defer c.muHandler.RUnlock()
	return c.handler
}

// SetErrHandler changes the handler used for errors reported on c. nil restores the default,
// errhandler.ErrorsAreFatal.
func (c *Communicator) SetErrHandler(handler errhandler.Handler) {
	if handler == nil {
		handler = errhandler.ErrorsAreFatal
	}
	c.muHandler.Lock()
	defer c.muHandler.Unlock()
	c.handler = handler
}

// Table returns the collective modules bound to c, or nil if none was selected yet.
func (c *Communicator) Table() *Table {
	return c.table.Load()
}

// SetTable binds the collective modules to c. It should be done once, before c is used.
func (c *Communicator) SetTable(table *Table) {
	c.table.Store(table)
}

// Free invalidates the communicator and unbinds its modules.
func (c *Communicator) Free() error {
	if c == nil || c.isNull {
		return status.Errorf(status.ErrComm, "cannot free %s", c)
	}
	if !c.freed.CompareAndSwap(false, true) {
		return status.Errorf(status.ErrComm, "communicator %s already freed", c)
	}
	if table := c.table.Swap(nil); table != nil {
		table.disable()
	}
	return nil
}
