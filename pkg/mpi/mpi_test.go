// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpi

import (
	"os"
	"testing"

	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/gomlx/gocoll/pkg/pmpi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	if err := Init(); err != nil {
		klog.Fatalf("Init failed: %+v", err)
	}
	World().SetErrHandler(errhandler.ErrorsReturn)
	code := m.Run()
	if err := Finalize(); err != nil {
		klog.Errorf("Finalize failed: %+v", err)
	}
	os.Exit(code)
}

func TestAllReduce(t *testing.T) {
	data := []int32{3, 5}
	code := AllReduce(InPlace, buffers.FromSlice(data), 2, dtypes.Of[int32](), ops.Sum, World())
	require.Equal(t, status.Success, code)
	assert.Equal(t, []int32{3, 5}, data)
}

func TestInterpose(t *testing.T) {
	type call struct {
		count int
		op    *ops.Op
	}
	var calls []call
	layer := func(send, recv buffers.Buffer, count int, dt *dtypes.Datatype, op *ops.Op, c *comm.Communicator) status.Code {
		calls = append(calls, call{count, op})
		return pmpi.AllReduce(send, recv, count, dt, op, c)
	}
	previous := Interpose(layer)
	require.NotNil(t, previous)

	data := []float32{1}
	assert.Equal(t, status.Success, AllReduce(InPlace, buffers.FromSlice(data), 1, dtypes.Of[float32](), ops.Max, World()))
	assert.Equal(t, status.ErrOp, AllReduce(InPlace, buffers.FromSlice(data), 1, dtypes.Of[float32](), ops.Null, World()))
	assert.Equal(t, []call{{1, ops.Max}, {1, ops.Null}}, calls)

	// Removing the layer restores the direct path.
	assert.NotNil(t, Interpose(nil))
	assert.Equal(t, status.Success, AllReduce(InPlace, buffers.FromSlice(data), 1, dtypes.Of[float32](), ops.Max, World()))
	assert.Len(t, calls, 2)
}
