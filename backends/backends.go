// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends is the registry of collective components: the pluggable implementations of
// the collective algorithms bound to each communicator.
//
// A component registers a Constructor during package initialization. When a communicator is
// created, Select picks one component for it and binds the module it returns to the
// communicator's comm.Table. From then on every collective call on that communicator is a single
// indirect call through the table.
//
// To include the default components, simply import:
//
//	import _ "github.com/gomlx/gocoll/backends/default"
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/status"
	"k8s.io/klog/v2"
)

// Constructor returns the module of a component for the communicator c, given the component
// configuration string (optionally empty).
//
// It returns a nil module (and no error) to decline the communicator, e.g. a component that
// only handles groups of one process.
type Constructor func(c *comm.Communicator, config string) (comm.Module, error)

type registration struct {
	name        string
	priority    int
	constructor Constructor
}

var registeredComponents = make(map[string]registration)

// Register a component with the given name and priority. When no component is configured, Select
// tries the components from highest to lowest priority.
//
// To be safe, call Register during initialization of a package.
func Register(name string, priority int, constructor Constructor) {
	if constructor == nil {
		exceptions.Panicf("backends.Register(%q): nil constructor", name)
	}
	registeredComponents[name] = registration{name: name, priority: priority, constructor: constructor}
}

// Components returns the names of the registered components, from highest to lowest priority.
func Components() []string {
	regs := make([]registration, 0, len(registeredComponents))
	for _, reg := range registeredComponents {
		regs = append(regs, reg)
	}
	slices.SortFunc(regs, func(a, b registration) int {
		if a.priority != b.priority {
			return b.priority - a.priority
		}
		return strings.Compare(a.name, b.name)
	})
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.name)
	}
	return names
}

// DefaultConfig is the component configuration used if GOCOLL_COLL is not set.
//
// See Select for the format of the configuration string.
var DefaultConfig string

// GOCOLL_COLL is the environment variable with the component configuration to use.
//
// The format of config is "<component_name>:<component_configuration>".
// The "<component_configuration>" is component specific, and is optional.
const GOCOLL_COLL = "GOCOLL_COLL"

// Select picks a component for c and binds the module it returns to c.
//
// The configuration is taken from (in order): the config argument, the GOCOLL_COLL environment
// variable, DefaultConfig. If none is set, the registered components are queried from the highest
// priority down, and the first one that accepts c is used.
//
// Errors are of class status.ErrIntern: no components, unknown component, or a component that
// declined or failed to create a module.
func Select(c *comm.Communicator, config string) error {
	if len(registeredComponents) == 0 {
		return status.Errorf(status.ErrIntern, `no registered collective components -- maybe import the default ones with import _ "github.com/gomlx/gocoll/backends/default"?`)
	}
	if config == "" {
		config = os.Getenv(GOCOLL_COLL)
	}
	if config == "" {
		config = DefaultConfig
	}
	if config != "" {
		return selectConfigured(c, config)
	}
	for _, name := range Components() {
		module, err := registeredComponents[name].constructor(c, "")
		if err != nil {
			klog.Warningf("collective component %q failed for %s: %+v", name, c, err)
			continue
		}
		if module == nil {
			continue
		}
		return bind(c, module)
	}
	return status.Errorf(status.ErrIntern, "no collective component accepted communicator %s", c)
}

func selectConfigured(c *comm.Communicator, config string) error {
	name, componentConfig := config, ""
	if idx := strings.Index(config, ":"); idx != -1 {
		name, componentConfig = config[:idx], config[idx+1:]
	}
	reg, found := registeredComponents[name]
	if !found {
		return status.Errorf(status.ErrIntern, "can't find collective component %q for configuration %q given", name, config)
	}
	module, err := reg.constructor(c, componentConfig)
	if err != nil {
		return status.Errorf(status.ErrIntern, "collective component %q failed for %s: %v", name, c, err)
	}
	if module == nil {
		return status.Errorf(status.ErrIntern, "collective component %q doesn't support communicator %s", name, c)
	}
	return bind(c, module)
}

func bind(c *comm.Communicator, module comm.Module) error {
	table, err := comm.NewTable(c, module)
	if err != nil {
		return status.Errorf(status.ErrIntern, "binding collective component %q to %s: %v", module.Name(), c, err)
	}
	c.SetTable(table)
	if klog.V(1).Enabled() {
		klog.Infof("collective component %q selected for %s", module.Name(), c)
	}
	return nil
}
