// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes describes the element types a collective can move and reduce.
//
// DType enumerates the predefined element types. A Datatype is the handle passed to the collective
// calls: either one of the predefined handles (Int32, Float64, ...) or a derived contiguous type
// created with Contiguous, which must be committed before it can be used to send data.
//
// The collective layer only consumes datatypes through Datatype.Size and CheckForSend, it never
// looks into their layout.
package dtypes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

// DType enumerates the predefined element types.
type DType int32

const (
	// InvalidDType is the zero value, not a valid element type.
	InvalidDType DType = iota

	// Bool is a one byte boolean, 0 is false and anything else is true.
	Bool

	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 is the IEEE 754 half precision format, see github.com/x448/float16.
	Float16
	Float32
	Float64

	// Complex64 is a pair of float32 (real, imag).
	Complex64

	// Complex128 is a pair of float64 (real, imag).
	Complex128

	// Byte is an opaque octet: it can be moved and combined with bitwise operations only.
	Byte

	numDTypes
)

var dtypeNames = [numDTypes]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	Complex64:    "Complex64",
	Complex128:   "Complex128",
	Byte:         "Byte",
}

var dtypeSizes = [numDTypes]int{
	Bool:       1,
	Int8:       1,
	Int16:      2,
	Int32:      4,
	Int64:      8,
	Uint8:      1,
	Uint16:     2,
	Uint32:     4,
	Uint64:     8,
	Float16:    2,
	Float32:    4,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
	Byte:       1,
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if !dtype.IsSupported() && dtype != InvalidDType {
		return fmt.Sprintf("DType(%d)", int32(dtype))
	}
	return dtypeNames[dtype]
}

// FromName returns the DType with the given name, case-insensitive (e.g. "float32").
func FromName(name string) (DType, bool) {
	for dtype := Bool; dtype < numDTypes; dtype++ {
		if strings.EqualFold(dtypeNames[dtype], name) {
			return dtype, true
		}
	}
	return InvalidDType, false
}

// IsSupported returns whether dtype is one of the predefined element types.
func (dtype DType) IsSupported() bool {
	return dtype > InvalidDType && dtype < numDTypes
}

// Size returns the number of bytes of one element, or 0 for unsupported values.
func (dtype DType) Size() int {
	if !dtype.IsSupported() {
		return 0
	}
	return dtypeSizes[dtype]
}

// IsInt returns whether dtype is a signed or unsigned integer.
func (dtype DType) IsInt() bool {
	return dtype >= Int8 && dtype <= Uint64
}

// IsUnsigned returns whether dtype is an unsigned integer.
func (dtype DType) IsUnsigned() bool {
	return dtype >= Uint8 && dtype <= Uint64
}

// IsFloat returns whether dtype is a (real) floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsComplex returns whether dtype is a complex number.
func (dtype DType) IsComplex() bool {
	return dtype == Complex64 || dtype == Complex128
}

// Supported lists the Go types that map to a DType.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | float32 | float64 | complex64 | complex128
}

// FromGenericsType returns the DType for the Go type T.
//
// Notice uint8 maps to Uint8, not Byte.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	}
	return InvalidDType
}
