// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package comm

import (
	"testing"

	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	calls    int
	disabled int
}

func (m *fakeModule) Name() string { return "fake" }

func (m *fakeModule) AllReduce(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *Communicator) error {
	m.calls++
	return nil
}

func (m *fakeModule) Disable(c *Communicator) { m.disabled++ }

type emptyModule struct{}

func (emptyModule) Name() string { return "empty" }

func TestCommunicator(t *testing.T) {
	c, err := New("world", 1, 4)
	require.NoError(t, err)
	assert.False(t, Invalid(c))
	assert.Equal(t, 1, c.Rank())
	assert.Equal(t, 4, c.Size())
	assert.Equal(t, "world(rank 1/4)", c.String())
	assert.Equal(t, errhandler.ErrorsAreFatal, c.ErrHandler())

	c.SetErrHandler(errhandler.ErrorsReturn)
	assert.NotNil(t, c.ErrHandler())
	c.SetErrHandler(nil)
	assert.Equal(t, errhandler.ErrorsAreFatal, c.ErrHandler())

	_, err = New("bad", 4, 4)
	assert.Equal(t, status.ErrComm, status.FromError(err))
	_, err = New("bad", 0, 0)
	assert.Error(t, err)

	assert.True(t, Invalid(nil))
	assert.True(t, Invalid(Null))
	assert.Error(t, Null.Free())
}

func TestTable(t *testing.T) {
	c, err := New("world", 0, 1)
	require.NoError(t, err)
	module := &fakeModule{}
	table, err := NewTable(c, module)
	require.NoError(t, err)
	c.SetTable(table)
	require.Same(t, table, c.Table())

	err = table.AllReduce(buffers.Bottom, buffers.Bottom, 1, dtypes.Predefined(dtypes.Int8), ops.Sum, c, table.AllReduceModule)
	require.NoError(t, err)
	assert.Equal(t, 1, module.calls)

	_, err = NewTable(c, emptyModule{})
	assert.Error(t, err)
	_, err = NewTable(c, nil)
	assert.Error(t, err)

	// Freeing the communicator disables its modules and invalidates it.
	require.NoError(t, c.Free())
	assert.True(t, Invalid(c))
	assert.Nil(t, c.Table())
	assert.Equal(t, 1, module.disabled)
	assert.Error(t, c.Free())
}
