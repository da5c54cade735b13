// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sm implements an in-process "shared memory" collective component: the ranks of a Group
// are goroutines of the same Go process, each holding its own communicator handle, and they
// exchange data by reading each other's buffers directly.
//
// Every collective call is matched across ranks by its per-rank sequence number. The last rank
// to arrive computes the reduction, in rank order, and wakes up the others. A rank that never
// arrives leaves the others blocked, exactly like a process that skips a collective.
//
// It registers itself as "sm" in github.com/gomlx/gocoll/backends.
package sm

import (
	"sync"

	"github.com/gomlx/gocoll/backends"
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/gomlx/gocoll/pkg/support/xsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ComponentName used to register and configure the component.
const ComponentName = "sm"

// Priority of the component.
const Priority = 50

func init() {
	backends.Register(ComponentName, Priority, New)
}

// groups indexes the live groups by communicator id.
var groups xsync.SyncMap[uuid.UUID, *Group]

// Group of in-process ranks.
type Group struct {
	id    uuid.UUID
	comms []*comm.Communicator

	mu     sync.Mutex
	seq    []uint64
	rounds map[uint64]*round
	freed  int
}

// round is the state of one collective call, across all ranks.
type round struct {
	arrived  int
	numBytes int
	inputs   [][]byte
	done     chan struct{}
	result   []byte
	err      error
}

// NewGroup creates a group of size ranks, with one communicator handle per rank named name.
// The communicators have no collective module bound until backends.Select is called on them.
func NewGroup(name string, size int) (*Group, error) {
	g := &Group{
		id:     uuid.New(),
		seq:    make([]uint64, size),
		rounds: make(map[uint64]*round),
	}
	for rank := range size {
		c, err := comm.NewWithID(g.id, name, rank, size)
		if err != nil {
			return nil, err
		}
		g.comms = append(g.comms, c)
	}
	groups.Store(g.id, g)
	return g, nil
}

// ID of the group, shared by all its communicators.
func (g *Group) ID() uuid.UUID {
	return g.id
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return len(g.comms)
}

// Comm returns the communicator handle of rank.
func (g *Group) Comm(rank int) *comm.Communicator {
	return g.comms[rank]
}

// Run calls fn for every rank, each in its own goroutine, and waits for all of them to return.
func (g *Group) Run(fn func(rank int, c *comm.Communicator)) {
	var wg sync.WaitGroup
	for rank, c := range g.comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(rank, c)
		}()
	}
	wg.Wait()
}

// Module is the sm collective module of one rank.
type Module struct {
	group *Group
}

var (
	_ comm.AllReducer     = (*Module)(nil)
	_ comm.ModuleDisabler = (*Module)(nil)
)

// New returns a Module if c belongs to a Group, or nil otherwise.
func New(c *comm.Communicator, _ string) (comm.Module, error) {
	g, found := groups.Load(c.ID())
	if !found {
		return nil, nil
	}
	if c.Size() != g.Size() {
		return nil, errors.Errorf("sm: communicator %s doesn't match group of size %d", c, g.Size())
	}
	return &Module{group: g}, nil
}

// Name implements comm.Module.
func (m *Module) Name() string {
	return ComponentName
}

// Disable implements comm.ModuleDisabler: once all ranks freed their communicator the group is dropped.
func (m *Module) Disable(c *comm.Communicator) {
	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()
	g.freed++
	if g.freed == g.Size() {
		groups.Delete(g.id)
	}
}

// AllReduce implements comm.AllReducer.
func (m *Module) AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) error {
	if send.IsBottom() || recv.IsBottom() {
		return status.Errorf(status.ErrBuffer, "sm.AllReduce(): MPI_BOTTOM buffers are not supported")
	}
	numBytes, err := dt.NumBytes(count)
	if err != nil {
		return errors.WithMessage(err, "sm.AllReduce()")
	}
	if recv.Len() < numBytes {
		return status.Errorf(status.ErrBuffer, "sm.AllReduce(): receive buffer of %d bytes for %d items of %s", recv.Len(), count, dt)
	}
	input := send.Bytes()
	if send.IsInPlace() {
		input = recv.Bytes()
	}
	if len(input) < numBytes {
		return status.Errorf(status.ErrBuffer, "sm.AllReduce(): send buffer of %d bytes for %d items of %s", len(input), count, dt)
	}

	g := m.group
	rank := c.Rank()
	g.mu.Lock()
	seq := g.seq[rank]
	g.seq[rank]++
	r, found := g.rounds[seq]
	if !found {
		r = &round{numBytes: numBytes, inputs: make([][]byte, g.Size()), done: make(chan struct{})}
		g.rounds[seq] = r
	}
	if r.numBytes != numBytes && r.err == nil {
		r.err = status.Errorf(status.ErrCount, "sm.AllReduce(): rank %d sent %d bytes, other ranks %d", rank, numBytes, r.numBytes)
	}
	r.inputs[rank] = input[:numBytes]
	r.arrived++
	if klog.V(3).Enabled() {
		klog.Infof("sm: rank %d arrived at allreduce #%d (%d/%d)", rank, seq, r.arrived, g.Size())
	}
	if r.arrived == g.Size() {
		delete(g.rounds, seq)
		g.mu.Unlock()
		if r.err == nil {
			r.result, r.err = reduce(r.inputs, count, dt, op)
		}
		close(r.done)
	} else {
		g.mu.Unlock()
		<-r.done
	}
	if r.err != nil {
		return r.err
	}
	copy(recv.Bytes()[:numBytes], r.result)
	return nil
}

// reduce computes inputs[0] op inputs[1] op ... op inputs[n-1], without modifying the inputs.
func reduce(inputs [][]byte, count int, dt *dtypes.Datatype, op *ops.Op) ([]byte, error) {
	last := len(inputs) - 1
	acc := make([]byte, len(inputs[last]))
	copy(acc, inputs[last])
	for rank := last - 1; rank >= 0; rank-- {
		if err := op.Reduce(inputs[rank], acc, count, dt); err != nil {
			return nil, errors.WithMessagef(err, "sm.AllReduce(): reducing rank %d", rank)
		}
	}
	return acc, nil
}
