// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath

import (
	"errors"
	"fmt"
	"syscall"
)

// OsError wraps a syscall failure encountered by the syscall layer (C1),
// preserving the syscall name, errno, and a best-effort path hint for
// diagnostics.
type OsError struct {
	Syscall string
	Errno   syscall.Errno
	Path    string
}

func (e *OsError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q: %s", e.Syscall, e.Path, e.Errno)
	}
	return fmt.Sprintf("%s: %s", e.Syscall, e.Errno)
}

// Unwrap exposes the underlying errno so that errors.Is(err, unix.ENOENT)
// and similar checks work transparently through an *OsError.
func (e *OsError) Unwrap() error { return e.Errno }

// InvalidArgumentError reports a caller contract violation: an empty path, a
// root that is not a directory, or a path containing an embedded NUL.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// SafetyViolationError reports that a state was observed that should be
// impossible if the module's invariants hold. Handle.Reopen returns it when
// the procfs oracle rejects /proc (wrong filesystem type, wrong root inode,
// or an overmount hiding the fd magic-link); the resolvers do not return it.
type SafetyViolationError struct {
	Reason string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("safety violation: %s", e.Reason)
}

var (
	// ErrSymlinkLoop is returned once the symlink-traversal budget is
	// exhausted. Maps to ELOOP on the FFI boundary.
	ErrSymlinkLoop = errors.New("too many levels of symbolic links")

	// ErrBackendUnsupported is returned by a backend that the running
	// kernel cannot service (e.g. the kernel backend on a pre-5.6 kernel),
	// distinct from the one-time capability probe used to pick a default.
	ErrBackendUnsupported = errors.New("resolver backend not supported by this kernel")

	// ErrNotImplemented is reserved for stubbed-out paths.
	ErrNotImplemented = errors.New("not implemented")
)

// newOsError wraps err as an *OsError if it carries a syscall.Errno,
// otherwise returns err unchanged.
func newOsError(syscallName, path string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &OsError{Syscall: syscallName, Errno: errno, Path: path}
	}
	return err
}
