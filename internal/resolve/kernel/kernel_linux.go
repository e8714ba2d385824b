//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel implements the kernel backend (C3): resolution delegated
// entirely to openat2(RESOLVE_IN_ROOT) in a single syscall.
package kernel

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// ErrUnsupported is returned when openat2 itself is unavailable (ENOSYS)
// during an actual resolution call, distinct from the one-time capability
// probe used to pick a default backend.
var ErrUnsupported = errors.New("openat2 not supported by this kernel")

// Flags mirror the root package's ResolverFlags bitset, duplicated here to
// avoid an import cycle between the root package and this backend.
type Flags uint32

const (
	NoSymlinks Flags = 1 << iota
	NoSymlinksTrailingOnly
	NoFollowTrailing
)

func (f Flags) resolveFlags() uint64 {
	resolve := uint64(unix.RESOLVE_IN_ROOT | unix.RESOLVE_NO_MAGICLINKS)
	if f&(NoSymlinks|NoSymlinksTrailingOnly) != 0 {
		// openat2 has no notion of "trailing symlink only": RESOLVE_NO_SYMLINKS
		// rejects every symlink in the path, including the trailing one. The
		// dispatcher downgrades to the emulated backend whenever the caller
		// asked for NoSymlinksTrailingOnly or NoFollowTrailing, so neither flag
		// reaches this backend from there - see resolver.go.
		resolve |= unix.RESOLVE_NO_SYMLINKS
	}
	return resolve
}

func openHow(flags Flags, oflags int) unix.OpenHow {
	return unix.OpenHow{
		Flags:   uint64(oflags) | unix.O_PATH | unix.O_CLOEXEC,
		Resolve: flags.resolveFlags(),
	}
}

// Resolve performs a single openat2(RESOLVE_IN_ROOT) call.
func Resolve(root *os.File, path string, flags Flags) (*os.File, error) {
	how := openHow(flags, 0)
	f, err := sysx.Openat2(root, path, &how)
	if err != nil {
		if errors.Is(err, unix.ENOSYS) {
			return nil, ErrUnsupported
		}
		return nil, err
	}
	return f, nil
}

// ResolvePartial decomposes a failed resolution: try the full path, and on
// ENOENT/ENOTDIR strip one trailing component at a time and retry until a
// prefix succeeds, recording the discarded suffix and the original error.
func ResolvePartial(root *os.File, path string, flags Flags) (handle *os.File, remaining string, lastErr error) {
	f, err := Resolve(root, path, flags)
	if err == nil {
		return f, "", nil
	}
	if errors.Is(err, ErrUnsupported) {
		return nil, "", err
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, unix.ENOTDIR) {
		return nil, "", err
	}
	lastErr = err

	prefix, suffix := path, ""
	for {
		idx := strings.LastIndexByte(prefix, '/')
		if idx < 0 {
			// No separator left: the single remaining component never
			// resolved, so the root itself is the deepest surviving ancestor.
			handle, rootErr := sysx.DupCloexec(root)
			if rootErr != nil {
				return nil, "", rootErr
			}
			return handle, joinSuffix(prefix, suffix), lastErr
		}
		suffix = joinSuffix(prefix[idx+1:], suffix)
		prefix = prefix[:idx]
		if prefix == "" {
			handle, rootErr := sysx.DupCloexec(root)
			if rootErr != nil {
				return nil, "", rootErr
			}
			return handle, suffix, lastErr
		}

		f, err := Resolve(root, prefix, flags)
		if err == nil {
			return f, suffix, lastErr
		}
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, unix.ENOTDIR) {
			return nil, "", err
		}
	}
}

func joinSuffix(part, rest string) string {
	if rest == "" {
		return part
	}
	return part + "/" + rest
}
