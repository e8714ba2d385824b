// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath

import (
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/procfs"
	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// Handle is an owned O_PATH descriptor referencing an already-resolved
// inode inside some Root. It is never usable for I/O directly; callers must
// Reopen it through the procfs oracle to get a real file.
type Handle struct {
	file *os.File

	closeOnce sync.Once
	closeErr  error
}

// newHandle wraps an O_PATH file as a Handle, taking ownership of it.
func newHandle(f *os.File) *Handle {
	return &Handle{file: f}
}

// FromUnsafeFd wraps fd as a Handle without verifying it. The caller
// asserts fd is O_PATH and was obtained from a valid root resolution.
// Ownership of fd transfers to the returned Handle.
func FromUnsafeFd(fd uintptr, name string) *Handle {
	return newHandle(os.NewFile(fd, name))
}

// Fd returns the raw underlying file descriptor, for passing across a
// process boundary (e.g. the capi FFI shim). The Handle remains responsible
// for closing it.
func (h *Handle) Fd() uintptr { return h.file.Fd() }

// Close releases the handle's descriptor. Idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() { h.closeErr = h.file.Close() })
	return h.closeErr
}

// Reopen turns the O_PATH handle into a real, usable file via the procfs
// oracle (C2). flags always gets O_CLOEXEC|O_NOCTTY forced in regardless of
// what the caller requested, matching the procfs oracle's Reopen contract;
// callers who need those bits cleared must strip them afterward with
// fcntl(F_SETFD). procfs.OpenRoot returns the process-wide cached /proc
// handle (opened and verified once, not once per Reopen call); its Close
// here is a no-op, not a real mount teardown.
func (h *Handle) Reopen(flags int) (*os.File, error) {
	proc, err := procfs.OpenRoot()
	if err != nil {
		return nil, err
	}
	defer proc.Close() //nolint:errcheck

	f, err := proc.Reopen(h.file, flags)
	if err != nil {
		if errors.Is(err, procfs.ErrUnsafeProcfs) {
			return nil, &SafetyViolationError{Reason: err.Error()}
		}
		return nil, newOsError("reopen", h.file.Name(), err)
	}
	return f, nil
}

// TryClone duplicates the handle's descriptor with fcntl(F_DUPFD_CLOEXEC),
// returning an independent Handle referencing the same file description.
func (h *Handle) TryClone() (*Handle, error) {
	dup, err := sysx.DupCloexec(h.file)
	if err != nil {
		return nil, newOsError("fcntl(F_DUPFD_CLOEXEC)", h.file.Name(), err)
	}
	return newHandle(dup), nil
}

// sameInode reports whether two O_PATH files reference the same inode. It is
// the same (dev, ino) comparison that the emulated backend's root-clamp check
// performs with sysx.SameFile directly; nothing in this package calls it.
func sameInode(a, b *os.File) (bool, error) {
	return sysx.SameFile(a, b)
}

// statMode is a small convenience around fstat(AT_EMPTY_PATH) used to
// classify a freshly opened O_PATH descriptor.
func statMode(f *os.File) (uint32, error) {
	stat, err := sysx.Fstat(f)
	if err != nil {
		return 0, err
	}
	return stat.Mode & unix.S_IFMT, nil
}
