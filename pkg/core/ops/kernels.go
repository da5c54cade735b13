// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"unsafe"

	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// kindSupports returns whether a built-in kind has a kernel for dtype.
func kindSupports(kind Kind, dtype dtypes.DType) bool {
	switch kind {
	case KindMax, KindMin:
		return dtype.IsInt() || dtype.IsFloat()
	case KindSum, KindProd:
		return dtype.IsInt() || dtype.IsFloat() || dtype.IsComplex()
	case KindLAnd, KindLOr, KindLXor:
		return dtype.IsInt() || dtype == dtypes.Bool
	case KindBAnd, KindBOr, KindBXor:
		return dtype.IsInt() || dtype == dtypes.Byte
	}
	return false
}

// Reduce computes inout[i] = in[i] (op) inout[i] for count items of dt.
//
// Both buffers must hold at least count items. It is used by the collective modules, and it
// doesn't change the reference count of op.
func (op *Op) Reduce(in, inout []byte, count int, dt *dtypes.Datatype) error {
	if IsNull(op) || op.IsDestroyed() {
		return status.Errorf(status.ErrOp, "Reduce(): invalid operation %s", op)
	}
	numBytes, err := dt.NumBytes(count)
	if err != nil {
		return errors.WithMessagef(err, "Reduce(%s)", op)
	}
	if len(in) < numBytes || len(inout) < numBytes {
		return status.Errorf(status.ErrBuffer, "Reduce(%s, %s): buffers of %d and %d bytes can't hold %d items of %d bytes",
			op, dt, len(in), len(inout), count, dt.Size())
	}
	if op.kind == KindUser {
		return op.fn(in, inout, count, dt)
	}
	if ok, msg := op.ValidFor(dt, "Reduce"); !ok {
		return status.Errorf(status.ErrOp, "%s", msg)
	}
	n := count * dt.Count()
	if n == 0 {
		return nil
	}
	switch dt.DType() {
	case dtypes.Bool:
		reduceBool(op.kind, castAs[bool](in, n), castAs[bool](inout, n))
	case dtypes.Int8:
		reduceInteger(op.kind, castAs[int8](in, n), castAs[int8](inout, n))
	case dtypes.Int16:
		reduceInteger(op.kind, castAs[int16](in, n), castAs[int16](inout, n))
	case dtypes.Int32:
		reduceInteger(op.kind, castAs[int32](in, n), castAs[int32](inout, n))
	case dtypes.Int64:
		reduceInteger(op.kind, castAs[int64](in, n), castAs[int64](inout, n))
	case dtypes.Uint8, dtypes.Byte:
		reduceInteger(op.kind, castAs[uint8](in, n), castAs[uint8](inout, n))
	case dtypes.Uint16:
		reduceInteger(op.kind, castAs[uint16](in, n), castAs[uint16](inout, n))
	case dtypes.Uint32:
		reduceInteger(op.kind, castAs[uint32](in, n), castAs[uint32](inout, n))
	case dtypes.Uint64:
		reduceInteger(op.kind, castAs[uint64](in, n), castAs[uint64](inout, n))
	case dtypes.Float16:
		reduceFloat16(op.kind, castAs[float16.Float16](in, n), castAs[float16.Float16](inout, n))
	case dtypes.Float32:
		reduceFloat(op.kind, castAs[float32](in, n), castAs[float32](inout, n))
	case dtypes.Float64:
		reduceFloat(op.kind, castAs[float64](in, n), castAs[float64](inout, n))
	case dtypes.Complex64:
		reduceComplex(op.kind, castAs[complex64](in, n), castAs[complex64](inout, n))
	case dtypes.Complex128:
		reduceComplex(op.kind, castAs[complex128](in, n), castAs[complex128](inout, n))
	default:
		return status.Errorf(status.ErrType, "Reduce(%s): no kernel for dtype %s", op, dt.DType())
	}
	return nil
}

// castAs reinterprets the first n elements of T stored in data.
func castAs[T any](data []byte, n int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), n)
}

func reduceOrdered[T constraints.Integer | constraints.Float](kind Kind, in, inout []T) bool {
	switch kind {
	case KindMax:
		for ii, v := range in {
			inout[ii] = max(inout[ii], v)
		}
	case KindMin:
		for ii, v := range in {
			inout[ii] = min(inout[ii], v)
		}
	case KindSum:
		for ii, v := range in {
			inout[ii] += v
		}
	case KindProd:
		for ii, v := range in {
			inout[ii] *= v
		}
	default:
		return false
	}
	return true
}

func reduceFloat[T constraints.Float](kind Kind, in, inout []T) {
	reduceOrdered(kind, in, inout)
}

func reduceInteger[T constraints.Integer](kind Kind, in, inout []T) {
	if reduceOrdered(kind, in, inout) {
		return
	}
	switch kind {
	case KindLAnd:
		for ii, v := range in {
			inout[ii] = boolAs[T](v != 0 && inout[ii] != 0)
		}
	case KindLOr:
		for ii, v := range in {
			inout[ii] = boolAs[T](v != 0 || inout[ii] != 0)
		}
	case KindLXor:
		for ii, v := range in {
			inout[ii] = boolAs[T]((v != 0) != (inout[ii] != 0))
		}
	case KindBAnd:
		for ii, v := range in {
			inout[ii] &= v
		}
	case KindBOr:
		for ii, v := range in {
			inout[ii] |= v
		}
	case KindBXor:
		for ii, v := range in {
			inout[ii] ^= v
		}
	}
}

func boolAs[T constraints.Integer](b bool) T {
	if b {
		return 1
	}
	return 0
}

func reduceBool(kind Kind, in, inout []bool) {
	switch kind {
	case KindLAnd:
		for ii, v := range in {
			inout[ii] = inout[ii] && v
		}
	case KindLOr:
		for ii, v := range in {
			inout[ii] = inout[ii] || v
		}
	case KindLXor:
		for ii, v := range in {
			inout[ii] = inout[ii] != v
		}
	}
}

func reduceComplex[T constraints.Complex](kind Kind, in, inout []T) {
	switch kind {
	case KindSum:
		for ii, v := range in {
			inout[ii] += v
		}
	case KindProd:
		for ii, v := range in {
			inout[ii] *= v
		}
	}
}

// reduceFloat16 does the arithmetic in float32 and rounds back to float16.
func reduceFloat16(kind Kind, in, inout []float16.Float16) {
	for ii, v := range in {
		a, b := v.Float32(), inout[ii].Float32()
		switch kind {
		case KindMax:
			b = max(a, b)
		case KindMin:
			b = min(a, b)
		case KindSum:
			b += a
		case KindProd:
			b *= a
		}
		inout[ii] = float16.Fromfloat32(b)
	}
}
