// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capi implements the opaque, negative-error-ID foreign-function
// surface described for external (non-Go) callers: resolve, resolve_partial,
// reopen, and errorinfo. It is a thin consumer of the root package, never
// called internally by the core resolver - treated as an external
// collaborator, same as the upstream C ABI it mirrors.
//
// This is a Go-level ABI boundary (no cgo): functions take and return plain
// ints instead of C types so the contract can be exercised, and eventually
// wrapped with //export, without requiring a C toolchain here.
package capi

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	libresolvepath "github.com/openSUSE/libresolvepath"
)

// errMinID is the lowest (most negative) error id ever handed out; errIDCeil
// is the highest, so the usable range is [errMinID, errIDCeil], inclusive.
// [-4095, -1] is reserved so that a caller who (incorrectly) treats the
// return value as -errno cannot collide with a real errno.
const (
	errMinID  int32 = math.MinInt32
	errIDCeil int32 = -4096
)

var (
	errMu  sync.Mutex
	errMap = map[int32]error{}
)

// storeError stashes err under a freshly allocated random negative id and
// returns it. Holds errMu for the duration of the (expected O(1)) search.
func storeError(err error) int32 {
	errMu.Lock()
	defer errMu.Unlock()
	for {
		id := errMinID + int32(rand.Int63n(int64(errIDCeil)-int64(errMinID)+1))
		if _, taken := errMap[id]; !taken {
			errMap[id] = err
			return id
		}
	}
}

// ErrorInfo retrieves the saved errno (0 if the error did not originate from
// a syscall) and a human-readable, causal-chain description for errID.
// Consuming an id invalidates it: a second call with the same id reports
// ok=false. Error ids are otherwise only unique until the first ErrorInfo
// call that consumes them, not for the lifetime of the process.
func ErrorInfo(errID int32) (savedErrno uint64, description string, ok bool) {
	errMu.Lock()
	err, found := errMap[errID]
	if found {
		delete(errMap, errID)
	}
	errMu.Unlock()
	if !found {
		return 0, "", false
	}

	var parts []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		parts = append(parts, e.Error())
	}
	// errors.Unwrap only walks a single chain; fmt.Errorf("%w: %w", ...)
	// produces a tree, but every error type this package can see wraps at
	// most one cause, so a linear walk is sufficient here.

	var errno uint64
	var osErr *libresolvepath.OsError
	if errors.As(err, &osErr) {
		errno = uint64(osErr.Errno)
	}

	return errno, strings.Join(parts, ": "), true
}

// dupBorrowedFd duplicates fd with fcntl(F_DUPFD_CLOEXEC) and returns the
// new descriptor. Callers across this FFI boundary keep fd open and reuse it
// for further calls, so it is never handed to RootFromUnsafeFd or
// FromUnsafeFd directly - both take ownership of whatever descriptor they
// wrap (os.NewFile installs a GC finalizer that closes it), which would
// race the caller's own use of fd, and could close an unrelated descriptor
// if fd were reused in between. Operating on a private dup instead keeps
// that ownership transfer honest: it's ours to close, fd never is.
func dupBorrowedFd(fd int) (uintptr, error) {
	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return 0, os.NewSyscallError("fcntl(F_DUPFD_CLOEXEC)", err)
	}
	return uintptr(dup), nil
}

func fdToHandle(fd int) (*libresolvepath.Handle, error) {
	dup, err := dupBorrowedFd(fd)
	if err != nil {
		return nil, err
	}
	return libresolvepath.FromUnsafeFd(dup, fmt.Sprintf("fd %d", fd)), nil
}

// Resolve resolves path relative to rootFd, returning a non-negative file
// descriptor on success or a negative opaque error id on failure. rootFd is
// never closed or taken over by this call; it remains the caller's to reuse.
func Resolve(rootFd int, path string) (fd int, errID int32) {
	dup, err := dupBorrowedFd(rootFd)
	if err != nil {
		return 0, storeError(err)
	}
	root := libresolvepath.RootFromUnsafeFd(dup, fmt.Sprintf("fd %d", rootFd))
	defer root.Close() //nolint:errcheck

	handle, err := root.Resolve(path)
	if err != nil {
		return 0, storeError(err)
	}
	defer handle.Close() //nolint:errcheck

	// The Handle owns its descriptor (and closes it when collected), so the
	// caller gets a private dup of it instead.
	out, err := dupBorrowedFd(int(handle.Fd()))
	if err != nil {
		return 0, storeError(err)
	}
	return int(out), 0
}

// ResolvePartial resolves as much of path as exists relative to rootFd.
// rootFd is never closed or taken over by this call; it remains the
// caller's to reuse.
func ResolvePartial(rootFd int, path string) (fd int, remaining string, errID int32) {
	dup, err := dupBorrowedFd(rootFd)
	if err != nil {
		return 0, "", storeError(err)
	}
	root := libresolvepath.RootFromUnsafeFd(dup, fmt.Sprintf("fd %d", rootFd))
	defer root.Close() //nolint:errcheck

	p, err := root.ResolvePartial(path)
	if err != nil {
		return 0, "", storeError(err)
	}
	defer p.Handle.Close() //nolint:errcheck

	out, err := dupBorrowedFd(int(p.Handle.Fd()))
	if err != nil {
		return 0, "", storeError(err)
	}
	return int(out), p.Remaining, 0
}

// Reopen turns the O_PATH handle referenced by handleFd into a real, usable
// file descriptor via the procfs oracle. handleFd is never closed or taken
// over by this call; it remains the caller's to reuse.
func Reopen(handleFd int, flags int) (fd int, errID int32) {
	h, err := fdToHandle(handleFd)
	if err != nil {
		return 0, storeError(err)
	}
	defer h.Close() //nolint:errcheck

	f, err := h.Reopen(flags)
	if err != nil {
		return 0, storeError(err)
	}
	defer f.Close() //nolint:errcheck

	out, err := dupBorrowedFd(int(f.Fd()))
	if err != nil {
		return 0, storeError(err)
	}
	return int(out), 0
}
