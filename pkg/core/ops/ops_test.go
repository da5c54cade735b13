// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"math"
	"testing"

	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func noopUserFunc(in, inout []byte, count int, dt *dtypes.Datatype) error { return nil }

func TestRefCounting(t *testing.T) {
	var destroyed int
	op := Create("myop", noopUserFunc, false, func() { destroyed++ })
	require.Equal(t, int64(1), op.RefCount())
	assert.False(t, op.IsCommutative())
	assert.False(t, op.IsIntrinsic())

	ref := op.Acquire()
	assert.Equal(t, int64(2), op.RefCount())

	// Freeing the user's reference while a call holds one doesn't destroy it.
	require.NoError(t, op.Free())
	assert.True(t, IsNull(op))
	assert.False(t, op.IsDestroyed())
	assert.Equal(t, 0, destroyed)
	assert.Error(t, op.Free())

	ref.Release()
	assert.True(t, op.IsDestroyed())
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, int64(0), op.RefCount())

	// Releasing more than retained is a bug.
	require.Panics(t, func() { op.Release() })
}

func TestTryAcquire(t *testing.T) {
	var destroyed int
	op := Create("myop", noopUserFunc, true, func() { destroyed++ })
	ref, ok := op.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, int64(2), op.RefCount())

	// Once freed by the user, no new reference can be taken, even if a call still holds one.
	require.NoError(t, op.Free())
	_, ok = op.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, int64(1), op.RefCount())
	ref.Release()
	assert.Equal(t, 1, destroyed)

	// A destroyed op is never brought back.
	_, ok = op.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, int64(0), op.RefCount())
	assert.Equal(t, 1, destroyed)

	_, ok = (*Op)(nil).TryAcquire()
	assert.False(t, ok)
	ref, ok = Sum.TryAcquire()
	require.True(t, ok)
	ref.Release()
	assert.Equal(t, int64(1), Sum.RefCount())
}

func TestIntrinsics(t *testing.T) {
	for _, op := range Intrinsics {
		assert.True(t, op.IsIntrinsic(), op.Name())
		assert.True(t, op.IsCommutative(), op.Name())
		assert.False(t, IsNull(op))
		assert.Error(t, op.Free())
		ref := op.Acquire()
		ref.Release()
		assert.Equal(t, int64(1), op.RefCount())
	}
	assert.True(t, IsNull(Null))
	assert.True(t, IsNull(nil))

	// Null holds a permanent reference too, so unchecked calls can retain and release it.
	ref := Null.Acquire()
	ref.Release()
	assert.Equal(t, int64(1), Null.RefCount())
	assert.Equal(t, "MPI_SUM", Sum.String())
	require.Panics(t, func() { Create("nilfn", nil, true, nil) })
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"sum", "MPI_SUM", "mpi_sum"} {
		op, found := FromName(name)
		require.True(t, found, name)
		assert.Same(t, Sum, op)
	}
	op, found := FromName("bxor")
	require.True(t, found)
	assert.Same(t, BXor, op)
	_, found = FromName("MPI_OP_NULL")
	assert.False(t, found)
}

func TestValidFor(t *testing.T) {
	const funcName = "MPI_Allreduce"
	ok, msg := Sum.ValidFor(dtypes.Predefined(dtypes.Float64), funcName)
	assert.True(t, ok)
	assert.Empty(t, msg)

	ok, msg = Max.ValidFor(dtypes.Predefined(dtypes.Complex64), funcName)
	assert.False(t, ok)
	assert.Equal(t, "MPI_Allreduce: the reduction operation MPI_MAX is not defined on the Complex64 datatype", msg)

	ok, _ = BXor.ValidFor(dtypes.Predefined(dtypes.Float32), funcName)
	assert.False(t, ok)
	ok, _ = BXor.ValidFor(dtypes.Predefined(dtypes.Byte), funcName)
	assert.True(t, ok)
	ok, _ = LAnd.ValidFor(dtypes.Predefined(dtypes.Bool), funcName)
	assert.True(t, ok)
	ok, _ = Sum.ValidFor(dtypes.Predefined(dtypes.Bool), funcName)
	assert.False(t, ok)

	derived, err := dtypes.Contiguous(2, dtypes.Predefined(dtypes.Int32))
	require.NoError(t, err)
	ok, msg = Sum.ValidFor(derived, funcName)
	assert.False(t, ok)
	assert.Equal(t, "MPI_Allreduce: the reduction operation MPI_SUM is not defined for non-intrinsic datatypes", msg)
	require.NoError(t, derived.SetName("pair"))
	_, msg = Sum.ValidFor(derived, funcName)
	assert.Equal(t, `MPI_Allreduce: the reduction operation MPI_SUM is not defined for non-intrinsic datatypes (attempted with datatype named "pair")`, msg)

	ok, msg = Sum.ValidFor(dtypes.Null, funcName)
	assert.False(t, ok)
	assert.Contains(t, msg, "MPI_DATATYPE_NULL")

	user := Create("", noopUserFunc, true, nil)
	ok, _ = user.ValidFor(derived, funcName)
	assert.True(t, ok)
	assert.Equal(t, "user-defined", user.Name())
}

func TestReduce(t *testing.T) {
	f64 := dtypes.Predefined(dtypes.Float64)
	in := []float64{1, 5, -2}
	inout := []float64{3, 2, -1}
	require.NoError(t, Sum.Reduce(buffers.FromSlice(in).Bytes(), buffers.FromSlice(inout).Bytes(), 3, f64))
	assert.Equal(t, []float64{4, 7, -3}, inout)
	require.NoError(t, Max.Reduce(buffers.FromSlice(in).Bytes(), buffers.FromSlice(inout).Bytes(), 3, f64))
	assert.Equal(t, []float64{4, 7, -2}, inout)

	i32 := dtypes.Predefined(dtypes.Int32)
	a := []int32{0b1100, 0, 3}
	b := []int32{0b1010, 7, 0}
	require.NoError(t, BXor.Reduce(buffers.FromSlice(a).Bytes(), buffers.FromSlice(b).Bytes(), 3, i32))
	assert.Equal(t, []int32{0b0110, 7, 3}, b)
	require.NoError(t, LAnd.Reduce(buffers.FromSlice(a).Bytes(), buffers.FromSlice(b).Bytes(), 3, i32))
	assert.Equal(t, []int32{1, 0, 1}, b)

	bools := []bool{true, false}
	acc := []bool{false, false}
	require.NoError(t, LOr.Reduce(buffers.FromSlice(bools).Bytes(), buffers.FromSlice(acc).Bytes(), 2, dtypes.Predefined(dtypes.Bool)))
	assert.Equal(t, []bool{true, false}, acc)

	c := []complex128{2i}
	cAcc := []complex128{3i}
	require.NoError(t, Prod.Reduce(buffers.FromSlice(c).Bytes(), buffers.FromSlice(cAcc).Bytes(), 1, dtypes.Predefined(dtypes.Complex128)))
	assert.Equal(t, []complex128{-6}, cAcc)

	h := []float16.Float16{float16.Fromfloat32(1.5)}
	hAcc := []float16.Float16{float16.Fromfloat32(2)}
	require.NoError(t, Sum.Reduce(buffers.FromSlice(h).Bytes(), buffers.FromSlice(hAcc).Bytes(), 1, dtypes.Predefined(dtypes.Float16)))
	assert.Equal(t, float32(3.5), hAcc[0].Float32())

	// Short buffers and invalid combinations are reported with their status class.
	err := Sum.Reduce(make([]byte, 8), make([]byte, 4), 1, f64)
	assert.Equal(t, status.ErrBuffer, status.FromError(err))
	err = Max.Reduce(make([]byte, 8), make([]byte, 8), 1, dtypes.Predefined(dtypes.Complex64))
	assert.Equal(t, status.ErrOp, status.FromError(err))
	err = Sum.Reduce(make([]byte, 8), make([]byte, 8), math.MaxInt/8+2, f64)
	assert.Equal(t, status.ErrCount, status.FromError(err))
	err = Sum.Reduce(make([]byte, 8), make([]byte, 8), -1, f64)
	assert.Equal(t, status.ErrCount, status.FromError(err))
	err = Null.Reduce(nil, nil, 0, f64)
	assert.Equal(t, status.ErrOp, status.FromError(err))
}

func TestReduceUserFunc(t *testing.T) {
	// A non-commutative "keep the left operand" operation.
	keepIn := Create("keep_in", func(in, inout []byte, count int, dt *dtypes.Datatype) error {
		copy(inout[:count*dt.Size()], in)
		return nil
	}, false, nil)
	in := []int64{1, 2}
	inout := []int64{3, 4}
	i64 := dtypes.Predefined(dtypes.Int64)
	require.NoError(t, keepIn.Reduce(buffers.FromSlice(in).Bytes(), buffers.FromSlice(inout).Bytes(), 2, i64))
	assert.Equal(t, []int64{1, 2}, inout)
}
