// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// Root is an owned directory descriptor designating the subtree that all
// resolutions are confined to. Its identity is immutable: the resolver never
// closes it internally and never follows ".." past it.
type Root struct {
	file *os.File

	closeOnce sync.Once
	closeErr  error
}

// OpenRoot opens path as a Root, as O_PATH|O_DIRECTORY|O_CLOEXEC. Unlike a
// plain os.Open, the returned descriptor can never be used for I/O directly
// and is safe to hold across concurrent renames of path itself.
func OpenRoot(path string) (*Root, error) {
	f, err := os.OpenFile(path, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, newOsError("open", path, err)
	}
	stat, err := sysx.Fstat(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFDIR {
		_ = f.Close()
		return nil, &InvalidArgumentError{Field: "root", Reason: "not a directory"}
	}
	return &Root{file: f}, nil
}

// RootFromUnsafeFd wraps an existing file descriptor as a Root without
// verifying it. The caller asserts that fd was opened O_PATH|O_DIRECTORY and
// is safe to use as a resolution boundary; ownership of fd transfers to the
// returned Root.
func RootFromUnsafeFd(fd uintptr, name string) *Root {
	return &Root{file: os.NewFile(fd, name)}
}

// Close releases the root descriptor. Close is idempotent: only the first
// call has an effect, matching the discipline that a Root may be shared
// (read-only) across concurrently running resolutions without a lock.
func (r *Root) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.file.Close() })
	return r.closeErr
}

// Resolve resolves path within r using the default Resolver (auto-detected
// backend, no flags).
func (r *Root) Resolve(path string) (*Handle, error) {
	return defaultResolver().Resolve(r, path)
}

// ResolvePartial resolves as much of path as exists within r.
func (r *Root) ResolvePartial(path string) (PartialLookup, error) {
	return defaultResolver().ResolvePartial(r, path)
}
