//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emulated implements the emulated backend (C4): a userspace,
// component-by-component walker that reproduces openat2(RESOLVE_IN_ROOT)
// semantics using only O_PATH descriptors, for kernels that lack openat2.
//
// Unlike the original reference-counted "shared fd" design, current is a
// plain owned *os.File, duplicated from root at setup and replaced (never
// aliased) as the walk proceeds; only the deepest surviving fd ever escapes
// this package, so the refcounting the upstream implementation used to let
// "current" alias "root" isn't needed here.
package emulated

import (
	"errors"
	"os"
	"path"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal"
	"github.com/openSUSE/libresolvepath/internal/assert"
	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// Flags mirror the root package's ResolverFlags bitset, duplicated here (as
// in the kernel backend) to avoid an import cycle with the root package.
type Flags uint32

const (
	NoSymlinks Flags = 1 << iota
	NoSymlinksTrailingOnly
	NoFollowTrailing
)

// ErrTooManySymlinks is returned once the traversal budget is exhausted.
var ErrTooManySymlinks = errors.New("too many levels of symbolic links")

// errSymlinkRejected is returned when NoSymlinks (or NoSymlinksTrailingOnly
// on the trailing component) forbids expanding a symlink that was found.
var errSymlinkRejected = errors.New("symlink encountered with symlinks disallowed")

// Resolve walks reqPath within root to completion, failing if any component
// does not exist.
func Resolve(root *os.File, reqPath string, flags Flags) (*os.File, error) {
	current, remaining, err := walk(root, reqPath, flags)
	if err != nil {
		if current != nil {
			_ = current.Close()
		}
		return nil, err
	}
	if remaining != "" {
		_ = current.Close()
		return nil, os.ErrNotExist
	}
	return current, nil
}

// ResolvePartial walks as much of path as exists, returning the deepest
// successfully resolved ancestor and the unresolved suffix on failure. Only
// ENOENT-class failures (a missing component) produce a genuine partial
// result; any other error (EACCES, EIO, the symlink budget) is always
// fatal and carries no usable ancestor handle.
func ResolvePartial(root *os.File, reqPath string, flags Flags) (handle *os.File, remaining string, lastErr error) {
	current, remaining, err := walk(root, reqPath, flags)
	if err == nil {
		return current, "", nil
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.ENOTDIR) {
		return current, remaining, err
	}
	if current != nil {
		_ = current.Close()
	}
	return nil, "", err
}

// walk is the shared core of Resolve/ResolvePartial. On any failure it
// returns the deepest surviving "current" fd (which the caller either
// closes, for Resolve, or hands back as the Partial ancestor) along with the
// unresolved remainder (including the component that failed) and the error
// that stopped the walk.
func walk(root *os.File, unsafePath string, flags Flags) (current *os.File, remaining string, retErr error) {
	current, err := sysx.DupCloexec(root)
	if err != nil {
		return nil, unsafePath, err
	}

	// Normalize leading separators once, up front: an absolute-looking input
	// path is re-rooted rather than resolved against the system root.
	// current is already a fresh clone of root, so this is just a trim.
	// Deliberately not a lexical path.Clean of the whole string: every
	// ".." must be resolved against the real, possibly symlink-redirected
	// fd it lands on, not canceled lexically against a preceding literal
	// component that might itself be a symlink.
	remaining = strings.TrimLeft(unsafePath, "/")

	symlinksLeft := internal.MaxSymlinkLimit

	for remaining != "" {
		oldRemaining := remaining

		var part string
		if i := strings.IndexByte(remaining, '/'); i == -1 {
			part, remaining = remaining, ""
		} else {
			part, remaining = remaining[:i], remaining[i+1:]
		}
		if part == "" || part == "." {
			continue
		}

		isLast := remaining == ""

		if part == ".." {
			same, err := sysx.SameFile(current, root)
			if err != nil {
				return current, oldRemaining, err
			}
			if same {
				// Root-clamp: ".." from the root is a no-op.
				continue
			}
			parent, err := sysx.OpenAt(current, "..", unix.O_PATH|unix.O_DIRECTORY, 0)
			if err != nil {
				return current, oldRemaining, err
			}
			_ = current.Close()
			current = parent
			continue
		}

		next, err := sysx.OpenAt(current, part, unix.O_PATH|unix.O_NOFOLLOW, 0)
		if err != nil {
			return current, oldRemaining, err
		}

		stat, err := sysx.Fstat(next)
		if err != nil {
			_ = next.Close()
			return current, oldRemaining, err
		}

		switch stat.Mode & unix.S_IFMT {
		case unix.S_IFLNK:
			if isLast && flags&NoFollowTrailing != 0 {
				// Trailing-component policy: don't expand, current becomes
				// the symlink itself.
				_ = current.Close()
				current = next
				remaining = ""
				continue
			}

			noSymlinks := flags&NoSymlinks != 0 || (flags&NoSymlinksTrailingOnly != 0 && isLast)
			if noSymlinks {
				_ = next.Close()
				return current, oldRemaining, errSymlinkRejected
			}

			symlinksLeft--
			if symlinksLeft < 0 {
				_ = next.Close()
				return current, oldRemaining, ErrTooManySymlinks
			}

			target, err := sysx.ReadlinkAt(current, part)
			_ = next.Close()
			if err != nil {
				return current, oldRemaining, err
			}

			if path.IsAbs(target) {
				rootClone, err := sysx.DupCloexec(root)
				if err != nil {
					return current, oldRemaining, err
				}
				_ = current.Close()
				current = rootClone
			}
			// remaining already holds whatever followed this component
			// ("rest" from the split above); the symlink target is
			// prepended in front of it, exactly like the teacher's
			// unconditional "linkDest + \"/\" + remainingPath" - an empty
			// trailing piece is harmless since the split loop skips empty
			// components.
			remaining = target + "/" + remaining

		default:
			_ = current.Close()
			current = next
		}
	}

	assert.Assert(current != nil, "walk must return a non-nil handle whenever it reports no error")
	return current, "", nil
}
