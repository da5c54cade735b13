// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pmpi implements the collective entry points: argument validation, dispatch to the
// collective module bound to the communicator, and error reporting.
//
// The state of the library (initialized, finalized, the World and Self communicators and the
// checkpoint critical section) lives in a Process. The package level functions use a default
// Process; tests and multi-rank simulations (see backends/sm) create one Process per rank.
//
// Package github.com/gomlx/gocoll/pkg/mpi forwards to this package, and allows a profiling layer
// to be interposed in between.
package pmpi

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gomlx/gocoll/backends"
	_ "github.com/gomlx/gocoll/backends/default"
	"github.com/gomlx/gocoll/backends/self"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/cr"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GOCOLL_PARAM_CHECK is the environment variable that enables (default) or disables the
// validation of the arguments of the collective calls. It is parsed with strconv.ParseBool.
const GOCOLL_PARAM_CHECK = "GOCOLL_PARAM_CHECK"

// Options used to initialize a Process.
type Options struct {
	// ParamCheck enables the validation of arguments. With it disabled, invalid arguments are
	// passed as is to the collective modules, with undefined results.
	ParamCheck bool

	// Coll is the collective component configuration for World, see backends.Select.
	// If empty, backends.GOCOLL_COLL or backends.DefaultConfig is used, or else the highest
	// priority component that accepts the communicator.
	Coll string

	// World is the communicator of all processes. If nil, a World with only this process is created.
	World *comm.Communicator

	// ErrHandler for World. If nil, errhandler.ErrorsAreFatal.
	ErrHandler errhandler.Handler
}

// DefaultOptions returns the options configured by the environment.
func DefaultOptions() Options {
	opts := Options{ParamCheck: true}
	if value, found := os.LookupEnv(GOCOLL_PARAM_CHECK); found && value != "" {
		paramCheck, err := strconv.ParseBool(value)
		if err != nil {
			klog.Warningf("invalid value %q for $%s, using %v", value, GOCOLL_PARAM_CHECK, opts.ParamCheck)
		} else {
			opts.ParamCheck = paramCheck
		}
	}
	return opts
}

type processState int32

const (
	stateUninitialized processState = iota
	stateInitializing
	stateInitialized
	stateFinalized
)

// Process holds the library state of one process.
type Process struct {
	state       atomic.Int32
	opts        Options
	world, self *comm.Communicator
	section     cr.Section
}

// NewProcess returns an uninitialized Process.
func NewProcess() *Process {
	return &Process{}
}

// Init initializes the process: creates (or adopts) World, creates Self, and selects the
// collective modules for both. A Process can only be initialized once.
func (p *Process) Init(opts Options) error {
	if !p.state.CompareAndSwap(int32(stateUninitialized), int32(stateInitializing)) {
		return errors.Errorf("pmpi.Init(): process already initialized")
	}
	world := opts.World
	if world == nil {
		var err error
		world, err = comm.New("MPI_COMM_WORLD", 0, 1)
		if err != nil {
			p.state.Store(int32(stateUninitialized))
			return err
		}
	}
	if comm.Invalid(world) {
		p.state.Store(int32(stateUninitialized))
		return status.Errorf(status.ErrComm, "pmpi.Init(): invalid World communicator")
	}
	world.SetErrHandler(opts.ErrHandler)
	selfComm, err := comm.New("MPI_COMM_SELF", 0, 1)
	if err != nil {
		p.state.Store(int32(stateUninitialized))
		return err
	}
	if err := backends.Select(world, opts.Coll); err != nil {
		p.state.Store(int32(stateUninitialized))
		return errors.WithMessagef(err, "pmpi.Init(): selecting collectives for %s", world)
	}
	if err := backends.Select(selfComm, self.ComponentName); err != nil {
		p.state.Store(int32(stateUninitialized))
		return errors.WithMessagef(err, "pmpi.Init(): selecting collectives for %s", selfComm)
	}
	p.opts = opts
	p.world, p.self = world, selfComm
	p.state.Store(int32(stateInitialized))
	if klog.V(1).Enabled() {
		klog.Infof("pmpi: initialized %s, param_check=%v", world, opts.ParamCheck)
	}
	return nil
}

// Finalize frees World and Self. The process can't be used (or initialized) again.
func (p *Process) Finalize() error {
	if !p.state.CompareAndSwap(int32(stateInitialized), int32(stateFinalized)) {
		return errors.Errorf("pmpi.Finalize(): process not initialized, or already finalized")
	}
	errWorld := p.world.Free()
	errSelf := p.self.Free()
	if errWorld != nil {
		return errWorld
	}
	return errSelf
}

// Initialized returns whether Init completed. It stays true after Finalize.
func (p *Process) Initialized() bool {
	state := processState(p.state.Load())
	return state == stateInitialized || state == stateFinalized
}

// Finalized returns whether Finalize was called.
func (p *Process) Finalized() bool {
	return processState(p.state.Load()) == stateFinalized
}

// World returns the communicator of all processes, or nil before Init.
func (p *Process) World() *comm.Communicator {
	return p.world
}

// Self returns the communicator of this process only, or nil before Init.
func (p *Process) Self() *comm.Communicator {
	return p.self
}

// Section returns the "library busy" critical section of the process, used by checkpoint
// coordinators to request snapshots (see cr.Section.RequestCheckpoint).
func (p *Process) Section() *cr.Section {
	return &p.section
}

var defaultProcess = NewProcess()

// Default returns the Process used by the package level functions.
func Default() *Process {
	return defaultProcess
}

// Init initializes the default Process.
func Init(opts Options) error {
	return defaultProcess.Init(opts)
}

// Finalize finalizes the default Process.
func Finalize() error {
	return defaultProcess.Finalize()
}

// World returns the World communicator of the default Process.
func World() *comm.Communicator {
	return defaultProcess.World()
}

// Self returns the Self communicator of the default Process.
func Self() *comm.Communicator {
	return defaultProcess.Self()
}
