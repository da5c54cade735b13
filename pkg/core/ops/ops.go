// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops implements the reduction operation handles used by the collective reductions.
//
// An *Op is shared and reference counted: built-in operations (Max, Sum, ...) are held by the
// library and never destroyed; user operations are created with Create, hold one reference for the
// user, and are destroyed when the last reference is released. The collective call path retains the
// operation for the duration of the dispatch, so a concurrent Free can't destroy it mid-flight:
//
//	ref := op.Acquire()
//	defer ref.Release()
//	err := module.AllReduce(..., op, ...)
package ops

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/status"
)

// Kind enumerates the built-in operations.
type Kind int

const (
	KindNull Kind = iota
	KindMax
	KindMin
	KindSum
	KindProd
	KindLAnd
	KindBAnd
	KindLOr
	KindBOr
	KindLXor
	KindBXor

	// KindUser is an operation defined by a UserFunc.
	KindUser
)

var kindNames = map[Kind]string{
	KindNull: "MPI_OP_NULL",
	KindMax:  "MPI_MAX",
	KindMin:  "MPI_MIN",
	KindSum:  "MPI_SUM",
	KindProd: "MPI_PROD",
	KindLAnd: "MPI_LAND",
	KindBAnd: "MPI_BAND",
	KindLOr:  "MPI_LOR",
	KindBOr:  "MPI_BOR",
	KindLXor: "MPI_LXOR",
	KindBXor: "MPI_BXOR",
	KindUser: "user-defined",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UserFunc computes inout[i] = in[i] (op) inout[i] for count items of dt.
//
// The buffers are borrowed for the duration of the call only.
type UserFunc func(in, inout []byte, count int, dt *dtypes.Datatype) error

// Op is a reduction operation handle.
type Op struct {
	name        string
	kind        Kind
	commutative bool
	fn          UserFunc
	onDestroy   func()

	refs      atomic.Int64
	freed     atomic.Bool
	destroyed atomic.Bool
}

// Null is the null-operation sentinel.
var Null = newPermanent(KindNull, false)

func newPermanent(kind Kind, commutative bool) *Op {
	op := &Op{name: kind.String(), kind: kind, commutative: commutative}
	op.refs.Store(1) // Held by the library forever.
	return op
}

func newIntrinsic(kind Kind) *Op {
	return newPermanent(kind, true)
}

// Built-in operations.
var (
	Max  = newIntrinsic(KindMax)
	Min  = newIntrinsic(KindMin)
	Sum  = newIntrinsic(KindSum)
	Prod = newIntrinsic(KindProd)
	LAnd = newIntrinsic(KindLAnd)
	BAnd = newIntrinsic(KindBAnd)
	LOr  = newIntrinsic(KindLOr)
	BOr  = newIntrinsic(KindBOr)
	LXor = newIntrinsic(KindLXor)
	BXor = newIntrinsic(KindBXor)
)

// Intrinsics lists all built-in operations.
var Intrinsics = []*Op{Max, Min, Sum, Prod, LAnd, BAnd, LOr, BOr, LXor, BXor}

// FromName returns the built-in operation named name, with or without the "MPI_" prefix and
// case-insensitive (e.g. "sum" or "MPI_SUM").
func FromName(name string) (*Op, bool) {
	for _, op := range Intrinsics {
		if strings.EqualFold(op.name, name) || strings.EqualFold(strings.TrimPrefix(op.name, "MPI_"), name) {
			return op, true
		}
	}
	return nil, false
}

// Create a user defined operation. The returned handle holds one reference, owned by the caller,
// and released with Free. onDestroy, if not nil, is called once when the last reference is released.
func Create(name string, fn UserFunc, commutative bool, onDestroy func()) *Op {
	if fn == nil {
		exceptions.Panicf("ops.Create(%q): nil UserFunc", name)
	}
	if name == "" {
		name = kindNames[KindUser]
	}
	op := &Op{name: name, kind: KindUser, commutative: commutative, fn: fn, onDestroy: onDestroy}
	op.refs.Store(1)
	return op
}

// Name of the operation, e.g. "MPI_SUM".
func (op *Op) Name() string {
	return op.name
}

// String implements fmt.Stringer.
func (op *Op) String() string {
	if op == nil {
		return "<nil op>"
	}
	return op.name
}

// Kind returns the built-in kind, or KindUser.
func (op *Op) Kind() Kind {
	return op.kind
}

// IsIntrinsic returns whether op is one of the built-in operations.
func (op *Op) IsIntrinsic() bool {
	return op.kind != KindUser && op.kind != KindNull
}

// IsCommutative returns whether the operation is commutative. All built-in operations are.
func (op *Op) IsCommutative() bool {
	return op.commutative
}

// IsNull returns whether op can't be used: nil, Null, or a handle already freed by the user.
func IsNull(op *Op) bool {
	return op == nil || op.kind == KindNull || op.freed.Load()
}

// RefCount returns the current number of references.
func (op *Op) RefCount() int64 {
	return op.refs.Load()
}

// IsDestroyed returns whether the last reference was released.
func (op *Op) IsDestroyed() bool {
	return op.destroyed.Load()
}

// Retain adds a reference to op.
func (op *Op) Retain() {
	op.refs.Add(1)
}

// Release drops a reference to op. When the last reference is dropped, the operation is destroyed.
//
// Releasing more references than were held is a bug, and it panics.
func (op *Op) Release() {
	refs := op.refs.Add(-1)
	if refs > 0 {
		return
	}
	if refs < 0 || op.kind != KindUser {
		exceptions.Panicf("ops.Op(%s).Release(): reference count dropped to %d", op.name, refs)
	}
	op.destroyed.Store(true)
	if op.onDestroy != nil {
		op.onDestroy()
	}
}

// Ref is a scoped reference to an Op, see Op.Acquire.
type Ref struct {
	op *Op
}

// Acquire retains op and returns a Ref whose Release drops that reference.
// Use it with defer, so the reference is dropped on every return path.
func (op *Op) Acquire() Ref {
	op.Retain()
	return Ref{op: op}
}

// TryAcquire is like Acquire, but only succeeds while op is alive: not nil, not freed by the
// user and not destroyed. Unlike Acquire, it never brings a released operation back.
//
// If it returns false, no reference was taken and the Ref must not be released.
func (op *Op) TryAcquire() (Ref, bool) {
	if op == nil {
		return Ref{}, false
	}
	for {
		refs := op.refs.Load()
		if refs <= 0 || op.freed.Load() {
			return Ref{}, false
		}
		if op.refs.CompareAndSwap(refs, refs+1) {
			return Ref{op: op}, true
		}
	}
}

// Release drops the reference taken by Acquire.
func (r Ref) Release() {
	r.op.Release()
}

// Free releases the user's reference of a user defined operation, after which the handle is
// considered null. The operation is only destroyed once all in-flight calls released it.
func (op *Op) Free() error {
	if op == nil || op.kind != KindUser {
		return status.Errorf(status.ErrOp, "ops.Free(%s): only user defined operations can be freed", op)
	}
	if !op.freed.CompareAndSwap(false, true) {
		return status.Errorf(status.ErrOp, "ops.Free(%s): operation already freed", op)
	}
	op.Release()
	return nil
}

// ValidFor reports whether op can reduce items of dt. If not, it returns the message to report,
// prefixed by funcName.
//
// User defined operations are valid for any datatype; built-in operations are only defined on
// some predefined datatypes, and never on derived ones.
func (op *Op) ValidFor(dt *dtypes.Datatype, funcName string) (ok bool, msg string) {
	if !op.IsIntrinsic() {
		return true, ""
	}
	if dt == nil || dt == dtypes.Null {
		return false, fmt.Sprintf("%s: the reduction operation %s is not defined on the %s datatype",
			funcName, op.name, dtypes.Null.Name())
	}
	if !dt.IsPredefined() {
		if dt.Name() != "" {
			return false, fmt.Sprintf("%s: the reduction operation %s is not defined for non-intrinsic datatypes (attempted with datatype named \"%s\")",
				funcName, op.name, dt.Name())
		}
		return false, fmt.Sprintf("%s: the reduction operation %s is not defined for non-intrinsic datatypes",
			funcName, op.name)
	}
	if !kindSupports(op.kind, dt.DType()) {
		return false, fmt.Sprintf("%s: the reduction operation %s is not defined on the %s datatype",
			funcName, op.name, dt.Name())
	}
	return true, ""
}
