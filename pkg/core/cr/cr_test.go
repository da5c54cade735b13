// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cr

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterExit(t *testing.T) {
	var s Section
	assert.True(t, s.IsIdle())
	outer := s.Enter()
	inner := s.Enter()
	assert.Equal(t, int64(2), s.Active())
	inner.Exit()
	outer.Exit()
	assert.True(t, s.IsIdle())
	assert.Equal(t, int64(2), s.Entries())
	require.Panics(t, func() { outer.Exit() })
}

func TestCheckpointWhenIdle(t *testing.T) {
	var s Section
	var taken int
	done := s.RequestCheckpoint(func() error {
		taken++
		return nil
	})
	require.True(t, done.Test())
	assert.NoError(t, done.Wait())
	assert.Equal(t, 1, taken)
}

func TestCheckpointDeferredUntilIdle(t *testing.T) {
	var s Section
	var taken int
	outer := s.Enter()
	inner := s.Enter()
	done := s.RequestCheckpoint(func() error {
		assert.True(t, s.Active() == 0, "checkpoint ran with callers inside the library")
		taken++
		return errors.New("disk full")
	})
	assert.False(t, done.Test())
	inner.Exit()
	assert.False(t, done.Test())
	outer.Exit()
	require.True(t, done.Test())
	assert.EqualError(t, done.Wait(), "disk full")
	assert.Equal(t, 1, taken)
}

func TestCheckpointOnOutermostEnter(t *testing.T) {
	var s Section
	// Requested while inside: runs on the exit, with nobody inside.
	token := s.Enter()
	var ranWithActive int64 = -1
	done := s.RequestCheckpoint(func() error {
		ranWithActive = s.Active()
		return nil
	})
	token.Exit()
	require.True(t, done.Test())
	assert.Equal(t, int64(0), ranWithActive)

	// A request left pending (queued without an attempt to run it) is picked up by the next
	// outermost Enter, which counts itself as the only caller inside.
	s.mu.Lock()
	latch := s.enqueueLocked(func() error {
		ranWithActive = s.Active()
		return nil
	})
	s.mu.Unlock()
	token = s.Enter()
	require.True(t, latch.Test())
	assert.Equal(t, int64(1), ranWithActive)
	token.Exit()
}

func TestEnterWaitsForRunningCheckpoint(t *testing.T) {
	var s Section
	token := s.Enter()
	release := make(chan struct{})
	started := make(chan struct{})
	done := s.RequestCheckpoint(func() error {
		close(started)
		<-release
		return nil
	})

	// The exit that leaves the section idle runs the checkpoint.
	go token.Exit()
	<-started

	entered := make(chan struct{})
	go func() {
		tok := s.Enter()
		close(entered)
		tok.Exit()
	}()
	select {
	case <-entered:
		t.Fatal("Enter proceeded while a checkpoint was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-entered
	assert.NoError(t, done.Wait())
}

func TestCheckpointPanics(t *testing.T) {
	var s Section
	done := s.RequestCheckpoint(func() error {
		panic(errors.New("snapshot crashed"))
	})
	assert.EqualError(t, done.Wait(), "snapshot crashed")
}
