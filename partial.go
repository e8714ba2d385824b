// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath

// PartialLookup is the result of a partial resolution: either every
// component of the requested path resolved (Complete is true and Remaining
// is empty), or resolution stopped at some ancestor and Remaining holds the
// unresolved suffix.
//
// PartialLookup is a plain tagged struct rather than a generic
// PartialLookup[H] — matching the teacher's own avoidance of generics for
// backend-facing types.
type PartialLookup struct {
	// Complete is true iff every path component resolved successfully.
	Complete bool

	// Handle is the deepest ancestor that resolved successfully. When
	// Complete is true this is the fully resolved handle; otherwise it is
	// the last-good ancestor and Remaining is non-empty.
	Handle *Handle

	// Remaining is the unresolved path suffix. Empty iff Complete.
	Remaining string

	// LastError is the error that stopped resolution. Nil iff Complete.
	LastError error
}

// intoComplete collapses a PartialLookup into a (*Handle, error) pair the
// way the non-partial Resolve entrypoint does: a partial result becomes its
// LastError, with the partially-resolved handle closed since callers of
// Resolve never see an ancestor handle on failure.
func (p PartialLookup) intoComplete() (*Handle, error) {
	if p.Complete {
		return p.Handle, nil
	}
	if p.Handle != nil {
		_ = p.Handle.Close()
	}
	return nil, p.LastError
}
