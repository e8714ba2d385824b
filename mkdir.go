// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/procfs"
	"github.com/openSUSE/libresolvepath/internal/resolve/emulated"
	"github.com/openSUSE/libresolvepath/internal/sysx"
)

var errInvalidMode = errors.New("invalid permission mode")

// MkdirAll creates path and any missing parents within root, using the
// emulated walker (C4) to find as much of the existing subpath as possible
// and then creating the remaining components one at a time, each walked
// into immediately via openat so that an attacker can at most race the
// final component. mode is a raw unix permission mode (unix.S_I...), not an
// os.FileMode.
//
// Unlike Resolve, MkdirAll never consults the kernel backend: openat2 has no
// mkdir-while-resolving mode, so there is only one implementation of this
// operation regardless of what the probe picked.
func (root *Root) MkdirAll(path string, mode int) (_ *Handle, Err error) {
	if mode&^0o7777 != 0 {
		return nil, fmt.Errorf("%w for mkdir 0o%.3o", errInvalidMode, mode)
	}

	// A partial result is the expected case here (that's the whole point of
	// MkdirAll), so only a nil ancestor handle - meaning the lookup hit a
	// non-ENOENT, genuinely fatal error - is treated as failure.
	current, remaining, err := emulated.ResolvePartial(root.file, path, 0)
	if current == nil {
		return nil, fmt.Errorf("find existing subpath of %q: %w", path, newOsError("openat", path, err))
	}
	defer func() {
		if Err != nil {
			_ = current.Close()
		}
	}()

	if err := procfs.IsDeadInode(current); err != nil {
		return nil, fmt.Errorf("finding existing subpath of %q: %w", path, err)
	}
	mode32, err := statMode(current)
	if err != nil {
		return nil, fmt.Errorf("stat existing subpath handle: %w", err)
	}
	if mode32 != unix.S_IFDIR {
		return nil, fmt.Errorf("cannot create subdirectories in %q: %w", path, unix.ENOTDIR)
	}

	remainingParts := strings.Split(remaining, "/")
	if slices.Contains(remainingParts, "..") {
		return nil, fmt.Errorf("%w: yet-to-be-created path %q contains '..' components", unix.ENOENT, remaining)
	}

	for _, part := range remainingParts {
		if part == "" || part == "." {
			continue
		}

		if err := unix.Mkdirat(int(current.Fd()), part, uint32(mode)); err != nil {
			wrapped := newOsError("mkdirat", current.Name()+"/"+part, err)
			if err2 := procfs.IsDeadInode(current); err2 != nil {
				return nil, fmt.Errorf("%w (%w)", wrapped, err2)
			}
			return nil, wrapped
		}

		next, err := sysx.OpenAt(current, part, unix.O_PATH|unix.O_NOFOLLOW|unix.O_DIRECTORY, 0)
		if err != nil {
			return nil, err
		}
		_ = current.Close()
		current = next
	}
	return newHandle(current), nil
}
