// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/gocoll/backends/notimplemented"
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test must run first, before any component is registered.
func TestSelectWithoutComponents(t *testing.T) {
	c, err := comm.New("world", 0, 1)
	require.NoError(t, err)
	err = Select(c, "")
	assert.Equal(t, status.ErrIntern, status.FromError(err))
	assert.Nil(t, c.Table())
}

type configuredModule struct {
	notimplemented.Module
	config string
}

func registerTestComponents() {
	Register("low", 1, func(c *comm.Communicator, config string) (comm.Module, error) {
		return &configuredModule{Module: notimplemented.Module{ComponentName: "low"}, config: config}, nil
	})
	Register("high", 10, func(c *comm.Communicator, config string) (comm.Module, error) {
		if c.Size() > 1 {
			return nil, nil // Declines.
		}
		return &configuredModule{Module: notimplemented.Module{ComponentName: "high"}, config: config}, nil
	})
	Register("broken", 5, func(c *comm.Communicator, config string) (comm.Module, error) {
		return nil, errors.New("broken component")
	})
}

func TestSelect(t *testing.T) {
	t.Setenv(GOCOLL_COLL, "")
	registerTestComponents()
	assert.Equal(t, []string{"high", "broken", "low"}, Components())

	single, err := comm.New("self", 0, 1)
	require.NoError(t, err)
	require.NoError(t, Select(single, ""))
	assert.Equal(t, "high", single.Table().AllReduceModule.Name())

	// "high" declines, "broken" fails, so "low" is picked.
	multi, err := comm.New("world", 0, 3)
	require.NoError(t, err)
	require.NoError(t, Select(multi, ""))
	assert.Equal(t, "low", multi.Table().AllReduceModule.Name())

	// Explicit configuration, with component specific configuration.
	require.NoError(t, Select(single, "low:fast=true"))
	module := single.Table().AllReduceModule.(*configuredModule)
	assert.Equal(t, "fast=true", module.config)

	// The environment variable is used when no configuration is given, then DefaultConfig.
	t.Setenv(GOCOLL_COLL, "low")
	require.NoError(t, Select(single, ""))
	assert.Equal(t, "low", single.Table().AllReduceModule.Name())
	t.Setenv(GOCOLL_COLL, "")
	DefaultConfig = "low:default"
	defer func() { DefaultConfig = "" }()
	require.NoError(t, Select(single, ""))
	assert.Equal(t, "default", single.Table().AllReduceModule.(*configuredModule).config)

	// Errors.
	for _, config := range []string{"unknown", "broken", "high"} {
		err = Select(multi, config)
		assert.Equal(t, status.ErrIntern, status.FromError(err), "config=%q", config)
	}
	require.Panics(t, func() { Register("nil", 0, nil) })
}

func TestNotImplementedDispatch(t *testing.T) {
	t.Setenv(GOCOLL_COLL, "")
	c, err := comm.New("world", 0, 2)
	require.NoError(t, err)
	registerTestComponents()
	require.NoError(t, Select(c, "low"))
	table := c.Table()
	err = table.AllReduce(buffers.Bottom, buffers.Bottom, 1, nil, nil, c, table.AllReduceModule)
	require.Error(t, err)
	assert.ErrorIs(t, err, notimplemented.ErrNotImplemented)
	assert.Equal(t, status.ErrOther, status.FromError(err))
}
