// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"math"
	"sync/atomic"

	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/pkg/errors"
)

// Datatype is the handle describing the type of one item of a buffer.
//
// Predefined handles (see Predefined) hold a single element of a DType and are always committed.
// Derived handles (see Contiguous) hold several elements of one DType, and must be committed with
// Commit before being used in a communication.
type Datatype struct {
	name       string
	dtype      DType
	count      int
	predefined bool
	committed  atomic.Bool
	freed      atomic.Bool
}

// Null is the null datatype sentinel. It is never valid.
var Null = &Datatype{name: "MPI_DATATYPE_NULL"}

var predefinedTypes [numDTypes]*Datatype

func init() {
	for dtype := Bool; dtype < numDTypes; dtype++ {
		dt := &Datatype{name: dtype.String(), dtype: dtype, count: 1, predefined: true}
		dt.committed.Store(true)
		predefinedTypes[dtype] = dt
	}
}

// Predefined returns the predefined handle for dtype.
// It panics if dtype is not supported.
func Predefined(dtype DType) *Datatype {
	if !dtype.IsSupported() {
		panicf("dtypes.Predefined(%s): not a supported dtype", dtype)
	}
	return predefinedTypes[dtype]
}

// Of returns the predefined handle for the Go type T.
func Of[T Supported]() *Datatype {
	return Predefined(FromGenericsType[T]())
}

// Contiguous creates a derived datatype made of count consecutive items of base.
// The returned datatype is not committed.
func Contiguous(count int, base *Datatype) (*Datatype, error) {
	if base == nil || base == Null || base.freed.Load() {
		return nil, status.Errorf(status.ErrType, "dtypes.Contiguous: invalid base datatype")
	}
	if count < 0 {
		return nil, status.Errorf(status.ErrCount, "dtypes.Contiguous: negative count %d", count)
	}
	if size := base.Size(); size > 0 && count > math.MaxInt/size {
		return nil, status.Errorf(status.ErrCount, "dtypes.Contiguous: %d items of %d bytes overflow", count, size)
	}
	return &Datatype{dtype: base.dtype, count: count * base.count}, nil
}

// Name of the datatype. Derived datatypes are unnamed unless SetName is called.
func (dt *Datatype) Name() string {
	return dt.name
}

// SetName sets the name used in error messages. Predefined names cannot be changed.
func (dt *Datatype) SetName(name string) error {
	if dt.predefined || dt == Null {
		return errors.Errorf("cannot rename predefined datatype %q", dt.name)
	}
	dt.name = name
	return nil
}

// DType returns the element type.
func (dt *Datatype) DType() DType {
	return dt.dtype
}

// Count returns the number of elements of DType in one item of this datatype.
func (dt *Datatype) Count() int {
	return dt.count
}

// Size returns the number of bytes of one item of this datatype.
func (dt *Datatype) Size() int {
	return dt.count * dt.dtype.Size()
}

// NumBytes returns the number of bytes of count items of dt.
// It returns an error of class status.ErrCount if count is negative or the size overflows an int.
func (dt *Datatype) NumBytes(count int) (int, error) {
	if count < 0 {
		return 0, status.Errorf(status.ErrCount, "negative count %d of %s", count, dt)
	}
	size := dt.Size()
	if size == 0 || count == 0 {
		return 0, nil
	}
	if count > math.MaxInt/size {
		return 0, status.Errorf(status.ErrCount, "%d items of %s (%d bytes each) overflow", count, dt, size)
	}
	return count * size, nil
}

// IsPredefined returns whether dt is one of the handles returned by Predefined.
func (dt *Datatype) IsPredefined() bool {
	return dt.predefined
}

// Commit makes the datatype usable for communication. It is a no-op on predefined datatypes.
func (dt *Datatype) Commit() error {
	if dt == Null || dt.freed.Load() {
		return status.Errorf(status.ErrType, "cannot commit invalid datatype")
	}
	dt.committed.Store(true)
	return nil
}

// Committed returns whether the datatype was committed and not freed since.
func (dt *Datatype) Committed() bool {
	return dt.committed.Load() && !dt.freed.Load()
}

// Free invalidates a derived datatype. Predefined datatypes cannot be freed.
func (dt *Datatype) Free() error {
	if dt.predefined || dt == Null {
		return status.Errorf(status.ErrType, "cannot free predefined datatype %q", dt.name)
	}
	dt.freed.Store(true)
	return nil
}

// String implements fmt.Stringer.
func (dt *Datatype) String() string {
	if dt == nil {
		return "<nil datatype>"
	}
	if dt.name != "" {
		return dt.name
	}
	return "<unnamed datatype>"
}

// CheckForSend returns whether count items of dt can be sent:
// ErrType for a nil, null, uncommitted or freed datatype, ErrCount for a negative count.
func CheckForSend(dt *Datatype, count int) status.Code {
	switch {
	case dt == nil || dt == Null:
		return status.ErrType
	case count < 0:
		return status.ErrCount
	case !dt.Committed():
		return status.ErrType
	}
	return status.Success
}
