// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default collective components, namely self and sm.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/gocoll/backends/default"
package _default

import (
	_ "github.com/gomlx/gocoll/backends/self"
	_ "github.com/gomlx/gocoll/backends/sm"
)
