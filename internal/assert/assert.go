// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package assert provides a minimal runtime-invariant checker used internally
// by the resolver. A failed assertion indicates a bug in this module, never a
// caller error or an attacker-controlled filesystem state (those are reported
// as ordinary errors instead).
package assert

import "fmt"

// Assert panics with msg if cond is false.
func Assert(cond bool, msg any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: %v", msg))
	}
}

// Assertf panics with a formatted message if cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: %s", fmt.Sprintf(format, args...)))
	}
}
