// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package buffers defines the buffer references passed to collective calls.
//
// A Buffer is borrowed for the duration of one call only. Besides regular memory regions there are
// two sentinels:
//
//   - InPlace: only legal as the send buffer, it means "read the input from the receive buffer".
//   - Bottom: the addresses are resolved through separately registered memory regions; it is exempt
//     from alias checks.
package buffers

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/gocoll/pkg/core/dtypes"
)

type kind uint8

const (
	regular kind = iota
	inPlace
	bottom
)

// Buffer is a reference to caller owned memory, or one of the sentinels InPlace or Bottom.
//
// The zero value is a regular empty buffer.
type Buffer struct {
	data []byte
	kind kind
}

var (
	// InPlace is the "use the receive buffer as input" sentinel.
	InPlace = Buffer{kind: inPlace}

	// Bottom is the "address resolved elsewhere" sentinel.
	Bottom = Buffer{kind: bottom}
)

// Of returns a Buffer referencing data. No copy is made.
func Of(data []byte) Buffer {
	return Buffer{data: data}
}

// FromSlice returns a Buffer referencing the memory of s, reinterpreted as bytes. No copy is made.
func FromSlice[T dtypes.Supported](s []T) Buffer {
	if len(s) == 0 {
		return Buffer{data: []byte{}}
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return Buffer{data: unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)}
}

// IsInPlace returns whether b is the InPlace sentinel.
func (b Buffer) IsInPlace() bool {
	return b.kind == inPlace
}

// IsBottom returns whether b is the Bottom sentinel.
func (b Buffer) IsBottom() bool {
	return b.kind == bottom
}

// IsSentinel returns whether b is one of the sentinels.
func (b Buffer) IsSentinel() bool {
	return b.kind != regular
}

// Bytes returns the referenced memory, nil for sentinels.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes referenced, 0 for sentinels.
func (b Buffer) Len() int {
	return len(b.data)
}

// address returns the start address of a regular buffer, 0 for empty or sentinel buffers.
func (b Buffer) address() uintptr {
	if b.kind != regular || b.data == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
}

// SameAddress returns whether a and b designate the same location: the same sentinel,
// or regular buffers starting at the same address.
//
// Two nil regular buffers are the same (null) address.
func SameAddress(a, b Buffer) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != regular {
		return true
	}
	return a.address() == b.address()
}

// String implements fmt.Stringer.
func (b Buffer) String() string {
	switch b.kind {
	case inPlace:
		return "MPI_IN_PLACE"
	case bottom:
		return "MPI_BOTTOM"
	}
	return fmt.Sprintf("Buffer(%#x, %d bytes)", b.address(), len(b.data))
}
