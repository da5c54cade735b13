// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cr implements the process-wide "library busy" critical section used to coordinate with
// a checkpoint/restart subsystem.
//
// Every collective call wraps its dispatch in the section:
//
//	defer section.Enter().Exit()
//
// Entering and exiting are atomic counter updates and can be nested. A checkpoint requested with
// RequestCheckpoint never runs while a caller is inside the section: it runs immediately if the
// section is idle, otherwise on the outermost Enter or on the Exit that leaves the section idle.
// Callers entering while a checkpoint runs wait for it to finish.
package cr

import (
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocoll/pkg/support/xsync"
	"k8s.io/klog/v2"
)

// CheckpointFunc takes the snapshot of the process. It is called while no caller is inside the section,
// and it must not enter the section itself.
type CheckpointFunc func() error

type request struct {
	fn   CheckpointFunc
	done *xsync.LatchWithValue[error]
}

// Section is a reentrant critical-section marker. The zero value is ready to use.
type Section struct {
	active  atomic.Int64
	entries atomic.Int64

	// pending is set while requests is not empty.
	pending atomic.Bool

	// snapshotting is set while a goroutine holding mu decides on or runs the pending checkpoints.
	snapshotting atomic.Bool

	mu       sync.Mutex
	requests []request
}

// Token is returned by Section.Enter, and must be exited exactly once.
type Token struct {
	s *Section
}

// Enter marks the library as active. It never fails, and can be nested.
func (s *Section) Enter() Token {
	n := s.active.Add(1)
	s.entries.Add(1)
	if s.snapshotting.Load() {
		// A checkpoint may be running, and we were not inside the section when it started:
		// wait for it before proceeding.
		s.mu.Lock()
		s.mu.Unlock() //nolint:staticcheck // Empty critical section, used as a barrier.
	} else if n == 1 && s.pending.Load() {
		s.runPending(1)
	}
	return Token{s: s}
}

// Exit leaves the section entered by Enter.
func (t Token) Exit() {
	n := t.s.active.Add(-1)
	if n < 0 {
		exceptions.Panicf("cr.Section: Exit called more times than Enter (active=%d)", n)
	}
	if n == 0 && t.s.pending.Load() {
		t.s.runPending(0)
	}
}

// Active returns the number of callers currently inside the section (counting nested entries).
func (s *Section) Active() int64 {
	return s.active.Load()
}

// Entries returns how many times the section was entered since it was created.
func (s *Section) Entries() int64 {
	return s.entries.Load()
}

// IsIdle returns whether no caller is inside the section.
func (s *Section) IsIdle() bool {
	return s.active.Load() == 0
}

// RequestCheckpoint queues fn to be run as soon as no caller is inside the section. The returned
// latch is triggered with the result of fn once it ran.
func (s *Section) RequestCheckpoint(fn CheckpointFunc) *xsync.LatchWithValue[error] {
	s.mu.Lock()
	done := s.enqueueLocked(fn)
	s.mu.Unlock()
	s.runPending(0)
	return done
}

// enqueueLocked adds a request. It must be called with s.mu held.
func (s *Section) enqueueLocked(fn CheckpointFunc) *xsync.LatchWithValue[error] {
	done := xsync.NewLatchWithValue[error]()
	s.requests = append(s.requests, request{fn: fn, done: done})
	s.pending.Store(true)
	return done
}

// runPending runs the pending checkpoints, if the number of callers inside the section is exactly
// expected (the caller itself, if it is inside). Otherwise, they are left for a later attempt.
func (s *Section) runPending(expected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return
	}
	s.snapshotting.Store(true)
	defer s.snapshotting.Store(false)
	if s.active.Load() != expected {
		if klog.V(2).Enabled() {
			klog.Infof("cr: checkpoint deferred, %d callers in the library", s.active.Load()-expected)
		}
		return
	}
	requests := s.requests
	s.requests = nil
	s.pending.Store(false)
	for _, r := range requests {
		var err error
		if exception := exceptions.TryCatch[error](func() { err = r.fn() }); exception != nil {
			err = exception
		}
		if klog.V(1).Enabled() {
			klog.Infof("cr: checkpoint taken, err=%v", err)
		}
		r.done.Trigger(err)
	}
}
