// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package errhandler

import (
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// Message is an error message passed to a handler. It must be released exactly once, after the
// handler returns.
//
// Messages are not reused, so a stale Release by a previous owner is always detected.
type Message struct {
	text     string
	released atomic.Bool
}

// outstandingMessages counts messages created and not released.
var outstandingMessages atomic.Int64

// NewMessage returns a Message holding text.
func NewMessage(text string) *Message {
	outstandingMessages.Add(1)
	return &Message{text: text}
}

// String returns the text of the message.
func (m *Message) String() string {
	if m.released.Load() {
		exceptions.Panicf("errhandler.Message used after being released")
	}
	return m.text
}

// Release marks the message as released. Releasing twice is a bug and panics.
func (m *Message) Release() {
	if !m.released.CompareAndSwap(false, true) {
		exceptions.Panicf("errhandler.Message released twice")
	}
	outstandingMessages.Add(-1)
}

// OutstandingMessages returns the number of messages created and not yet released.
// Useful to investigate leaks.
func OutstandingMessages() int64 {
	return outstandingMessages.Load()
}
