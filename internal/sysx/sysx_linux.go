//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sysx is the thin typed syscall layer the resolver is built on. The
// path-taking wrappers do one fd-relative syscall (plus bookkeeping) and
// translate the raw errno into an *os.PathError carrying a path hint;
// DupCloexec reports an *os.SyscallError instead. None of the wrappers
// resolves a path against the process's current working directory; only the
// one-time openat2 capability probe opens "." relative to it.
package sysx

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// DupCloexec duplicates f using fcntl(F_DUPFD_CLOEXEC), giving the caller an
// independent descriptor referencing the same file description.
func DupCloexec(f *os.File) (*os.File, error) {
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, os.NewSyscallError("fcntl(F_DUPFD_CLOEXEC)", err)
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

// PrepareAt returns the dirfd to use for an *at(2) syscall (or -EBADF if dir
// is nil, to forbid accidental cwd-relative resolution) along with an
// informational path string suitable only for error messages.
func PrepareAt(dir *os.File, path string) (dirFd int, hintPath string) {
	dirFd, dirPath := -int(unix.EBADF), "."
	if dir != nil {
		dirFd, dirPath = int(dir.Fd()), dir.Name()
	}
	if !filepath.IsAbs(path) {
		path = dirPath + "/" + path
	}
	return dirFd, path
}

// OpenAt is a typed openat(2) wrapper. flags always gets O_CLOEXEC added.
func OpenAt(dir *os.File, path string, flags int, mode int) (*os.File, error) {
	dirFd, hintPath := PrepareAt(dir, path)
	flags |= unix.O_CLOEXEC
	fd, err := unix.Openat(dirFd, path, flags, uint32(mode))
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: hintPath, Err: err}
	}
	runtime.KeepAlive(dir)
	return os.NewFile(uintptr(fd), filepath.Clean(hintPath)), nil
}

// FstatAt is a typed fstatat(2) wrapper.
func FstatAt(dir *os.File, path string, flags int) (unix.Stat_t, error) {
	dirFd, hintPath := PrepareAt(dir, path)
	var stat unix.Stat_t
	if err := unix.Fstatat(dirFd, path, &stat, flags); err != nil {
		return stat, &os.PathError{Op: "fstatat", Path: hintPath, Err: err}
	}
	runtime.KeepAlive(dir)
	return stat, nil
}

// Fstat stats the fd directly (no path component, so no TOCTOU surface).
func Fstat(f *os.File) (unix.Stat_t, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &stat); err != nil {
		return stat, &os.PathError{Op: "fstat", Path: f.Name(), Err: err}
	}
	return stat, nil
}

// ReadlinkAt is a typed readlinkat(2) wrapper which grows its buffer until
// the link target fits.
func ReadlinkAt(dir *os.File, path string) (string, error) {
	dirFd, hintPath := PrepareAt(dir, path)
	size := 256
	for {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(dirFd, path, buf)
		if err != nil {
			return "", &os.PathError{Op: "readlinkat", Path: hintPath, Err: err}
		}
		runtime.KeepAlive(dir)
		if n != size {
			return string(buf[:n]), nil
		}
		size *= 2
	}
}

// Openat2 is a typed openat2(2) wrapper, used by the kernel backend (C3).
func Openat2(dir *os.File, path string, how *unix.OpenHow) (*os.File, error) {
	dirFd, hintPath := PrepareAt(dir, path)
	fd, err := unix.Openat2(dirFd, path, how)
	if err != nil {
		return nil, &os.PathError{Op: "openat2", Path: hintPath, Err: err}
	}
	runtime.KeepAlive(dir)
	return os.NewFile(uintptr(fd), filepath.Clean(hintPath)), nil
}

// SameFile reports whether a and b refer to the same inode (same device and
// inode number), used to implement the root-clamp invariant for "..".
func SameFile(a, b *os.File) (bool, error) {
	sa, err := Fstat(a)
	if err != nil {
		return false, err
	}
	sb, err := Fstat(b)
	if err != nil {
		return false, err
	}
	return sa.Dev == sb.Dev && sa.Ino == sb.Ino, nil
}

// openat2Supported probes whether the running kernel implements openat2(2)
// with RESOLVE_IN_ROOT support, memoized for the lifetime of the process.
var openat2Supported = sync.OnceValue(func() bool {
	how := unix.OpenHow{
		Flags:   unix.O_PATH | unix.O_CLOEXEC,
		Resolve: unix.RESOLVE_IN_ROOT,
	}
	fd, err := unix.Openat2(unix.AT_FDCWD, ".", &how)
	if err != nil {
		// ENOSYS means openat2(2) itself doesn't exist. Any other error
		// (including EINVAL from an unrecognized resolve flag on an older
		// kernel) is taken as evidence the syscall exists, and so counts as
		// "supported".
		return err != unix.ENOSYS
	}
	_ = unix.Close(fd)
	return true
})

// Openat2Supported reports whether openat2(RESOLVE_IN_ROOT) can be used on
// this kernel. The result is cached after the first call.
func Openat2Supported() bool {
	return openat2Supported()
}
