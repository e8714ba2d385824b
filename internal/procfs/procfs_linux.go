//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procfs implements the "procfs oracle" (C2): a trusted descriptor to
// /proc that can turn an O_PATH descriptor into a real, usable file by
// opening "/proc/self/fd/<N>", with defenses against a maliciously
// bind-mounted or overmounted /proc.
package procfs

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// The kernel guarantees that the root inode of a procfs mount has an f_type
// of PROC_SUPER_MAGIC and st_ino of PROC_ROOT_INO.
const (
	procSuperMagic = 0x9fa0
	procRootIno    = 1
)

// ErrUnsafeProcfs is returned (wrapped) whenever the procfs oracle detects
// that /proc is not what it expects: wrong filesystem type, wrong root
// inode, or an overmount hiding the magic-link we're about to open.
var ErrUnsafeProcfs = errors.New("unsafe procfs detected")

// Handle is a wrapper around an *os.File referencing "/proc", used to
// perform further procfs-related operations safely.
type Handle struct {
	inner    *os.File
	isSubset bool

	// shared marks a Handle returned from the process-wide cache (OpenRoot,
	// OpenUnsafeRoot): its underlying mount lives for the lifetime of the
	// process, so Close on it is a no-op rather than tearing down the
	// shared mount out from under every other caller holding the same
	// cached Handle.
	shared bool
}

func verifyProcRoot(f *os.File) error {
	var statfs unix.Statfs_t
	if err := unix.Fstatfs(int(f.Fd()), &statfs); err != nil {
		return &os.PathError{Op: "fstatfs", Path: f.Name(), Err: err}
	}
	if statfs.Type != procSuperMagic {
		return fmt.Errorf("%w: incorrect procfs filesystem type 0x%x", ErrUnsafeProcfs, statfs.Type)
	}
	stat, err := sysx.Fstat(f)
	if err != nil {
		return err
	}
	if stat.Ino != procRootIno {
		return fmt.Errorf("%w: incorrect procfs root inode number %d", ErrUnsafeProcfs, stat.Ino)
	}
	return nil
}

func newHandle(procRoot *os.File) (*Handle, error) {
	if err := verifyProcRoot(procRoot); err != nil {
		_ = procRoot.Close()
		return nil, err
	}
	h := &Handle{inner: procRoot}
	// With subset=pid, /proc/uptime (a global, non-pid file) is masked out;
	// its absence is evidence the mount options took.
	err := unix.Faccessat(int(procRoot.Fd()), "uptime", unix.F_OK, unix.AT_SYMLINK_NOFOLLOW)
	h.isSubset = errors.Is(err, os.ErrNotExist)
	return h, nil
}

// Close closes the underlying /proc file descriptor. A no-op on a shared
// (process-wide cached) Handle, which outlives any single caller.
func (h *Handle) Close() error {
	if h.shared {
		return nil
	}
	return h.inner.Close()
}

var hasNewMountAPI = sync.OnceValue(func() bool {
	// fsopen/fsconfig/fsmount/open_tree were all added together in Linux
	// 5.2. Probe open_tree(2) since it's the cheapest of the bunch.
	fd, err := unix.OpenTree(-int(unix.EBADF), "/", unix.OPEN_TREE_CLOEXEC)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
})

func newPrivateProcMount(subset bool) (_ *Handle, Err error) {
	ctx, err := unix.Fsopen("proc", unix.FSOPEN_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("fsopen proc", err)
	}
	defer func() { _ = unix.Close(ctx) }()

	if subset {
		// Best-effort; ignore errors since hidepid=/subset= support varies.
		_ = unix.FsconfigSetString(ctx, "hidepid", "ptraceable")
		_ = unix.FsconfigSetString(ctx, "subset", "pid")
	}
	if err := unix.FsconfigCreate(ctx); err != nil {
		return nil, os.NewSyscallError("fsconfig create proc", err)
	}
	procRoot, err := unix.Fsmount(ctx, unix.FSMOUNT_CLOEXEC, unix.MS_NODEV|unix.MS_NOEXEC|unix.MS_NOSUID)
	if err != nil {
		return nil, os.NewSyscallError("fsmount proc", err)
	}
	procRootFile := os.NewFile(uintptr(procRoot), "fsmount:proc")
	defer func() {
		if Err != nil {
			_ = procRootFile.Close()
		}
	}()
	return newHandle(procRootFile)
}

func clonePrivateProcMount() (_ *Handle, Err error) {
	fd, err := unix.OpenTree(-int(unix.EBADF), "/proc", unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE)
	if err != nil {
		return nil, fmt.Errorf("creating a detached procfs clone: %w", err)
	}
	procRootFile := os.NewFile(uintptr(fd), "open_tree:/proc")
	defer func() {
		if Err != nil {
			_ = procRootFile.Close()
		}
	}()
	return newHandle(procRootFile)
}

func privateProcRoot(subset bool) (*Handle, error) {
	if !hasNewMountAPI() {
		return nil, fmt.Errorf("new mount api: %w", unix.ENOTSUP)
	}
	proc, err := newPrivateProcMount(subset)
	if err != nil {
		proc, err = clonePrivateProcMount()
	}
	return proc, err
}

func unsafeHostProcRoot() (_ *Handle, Err error) {
	procRoot, err := os.OpenFile("/proc", unix.O_PATH|unix.O_NOFOLLOW|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if Err != nil {
			_ = procRoot.Close()
		}
	}()
	return newHandle(procRoot)
}

func getProcRoot(subset bool) (*Handle, error) {
	proc, err := privateProcRoot(subset)
	if err != nil {
		// Fall back to the host's /proc if we couldn't get a private mount
		// (e.g. no CAP_SYS_ADMIN for the new mount API).
		proc, err = unsafeHostProcRoot()
	}
	return proc, err
}

// cachedProcRoot and cachedUnsafeProcRoot are the process-wide procfs oracle
// singletons: the private (or host-fallback) /proc mount is opened, verified,
// and probed for subset=pid exactly once per process, not once per reopen.
// A failed open is cached too, same as a successful one - this module treats
// "can we get a trustworthy /proc" as a fact about the process environment
// that doesn't change mid-run.
var (
	cachedProcRoot = sync.OnceValues(func() (*Handle, error) {
		h, err := getProcRoot(true)
		if err != nil {
			return nil, err
		}
		h.shared = true
		return h, nil
	})
	cachedUnsafeProcRoot = sync.OnceValues(func() (*Handle, error) {
		h, err := getProcRoot(false)
		if err != nil {
			return nil, err
		}
		h.shared = true
		return h, nil
	})
)

// OpenRoot returns the process-wide handle to "/proc", preferring a private,
// subset=pid mount (Linux 5.8+) when possible, falling back to the host's
// /proc otherwise. The underlying mount is established once per process;
// the returned Handle's Close is a no-op.
func OpenRoot() (*Handle, error) { return cachedProcRoot() }

// OpenUnsafeRoot returns the process-wide handle to "/proc" without
// subset=pid masking. Needed when a subset=pid handle can't see the path we
// want (e.g. /proc/<pid>/root for a pid other than our own). Also a
// lazily-initialized, process-wide singleton.
func OpenUnsafeRoot() (*Handle, error) { return cachedUnsafeProcRoot() }

var hasProcThreadSelf = sync.OnceValue(func() bool {
	return unix.Access("/proc/thread-self/", unix.F_OK) == nil
})

// threadSelfPrefix returns the "thread-self" (or fallback) prefix to use for
// this handle, locking the calling goroutine to its OS thread for the
// duration of use (see runtime.LockOSThread docs on CLONE_FS divergence).
func (h *Handle) threadSelfPrefix() (prefix string, closer func()) {
	runtime.LockOSThread()
	if hasProcThreadSelf() {
		return "thread-self", runtime.UnlockOSThread
	}
	// Older kernels lack /proc/thread-self; use /proc/self/task/<tid>.
	prefix = "self/task/" + strconv.Itoa(unix.Gettid())
	if err := unix.Faccessat(int(h.inner.Fd()), prefix, unix.F_OK, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		prefix = "self"
	}
	return prefix, runtime.UnlockOSThread
}

// lookup opens "subpath" relative to the procfs root with a plain
// componentwise walk. Every component but the last is opened
// O_PATH|O_DIRECTORY, so the kernel follows the "self" and "thread-self"
// symlinks (which point at "<pid>" and "<pid>/task/<tid>") and any other
// non-directory is rejected; the last component is opened with finalFlags.
// Unlike the general-purpose emulated resolver, this walker does no
// symlink expansion of its own.
func (h *Handle) lookup(subpath string, finalFlags int) (*os.File, error) {
	cur, err := sysx.DupCloexec(h.inner)
	if err != nil {
		return nil, err
	}
	defer cur.Close() //nolint:errcheck

	parts := splitPath(subpath)
	for i, part := range parts {
		flags := unix.O_PATH | unix.O_DIRECTORY | unix.O_CLOEXEC
		if i == len(parts)-1 {
			flags = finalFlags | unix.O_CLOEXEC
		}
		next, err := sysx.OpenAt(cur, part, flags, 0)
		if err != nil {
			return nil, err
		}
		_ = cur.Close()
		cur = next
	}
	return sysx.DupCloexec(cur)
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	if start < len(p) {
		parts = append(parts, p[start:])
	}
	return parts
}

const stxMntIDUnique = 0x4000

// GetMountID returns the unique mount ID of dir+path, or 0 if the kernel
// doesn't support STATX_MNT_ID (in which case overmount checks are skipped).
func GetMountID(dir *os.File, path string) (uint64, error) {
	if !hasStatxMountID() {
		return 0, nil
	}
	dirFd, hintPath := sysx.PrepareAt(dir, path)
	wantMask := uint32(stxMntIDUnique | unix.STATX_MNT_ID)

	var stx unix.Statx_t
	err := unix.Statx(dirFd, path, unix.AT_EMPTY_PATH|unix.AT_SYMLINK_NOFOLLOW, int(wantMask), &stx)
	if stx.Mask&wantMask == 0 {
		if err == nil {
			err = unix.ENOTSUP
		}
		err = fmt.Errorf("%w: could not get mount id: %w", ErrUnsafeProcfs, err)
	}
	if err != nil {
		return 0, &os.PathError{Op: "statx(STATX_MNT_ID)", Path: hintPath, Err: err}
	}
	runtime.KeepAlive(dir)
	return stx.Mnt_id, nil
}

var hasStatxMountID = sync.OnceValue(func() bool {
	var stx unix.Statx_t
	wantMask := uint32(stxMntIDUnique | unix.STATX_MNT_ID)
	err := unix.Statx(-int(unix.EBADF), "/", 0, int(wantMask), &stx)
	return err == nil && stx.Mask&wantMask != 0
})

// CheckSubpathOvermount verifies that dir+path is still on the same mount as
// the procfs root itself, i.e. that nothing has been mounted on top of the
// magic-link we're about to dereference.
func (h *Handle) CheckSubpathOvermount(dir *os.File, path string) error {
	expected, err := GetMountID(h.inner, "")
	if err != nil {
		return fmt.Errorf("get procfs root mount id: %w", err)
	}
	got, err := GetMountID(dir, path)
	if err != nil {
		return fmt.Errorf("get subpath mount id: %w", err)
	}
	if expected != got {
		return fmt.Errorf("%w: %s/%s has an overmount obscuring the real link (mount ids %d != %d)",
			ErrUnsafeProcfs, dir.Name(), path, expected, got)
	}
	return nil
}

// Reopen is the procfs oracle's core operation (spec C2): given an O_PATH
// descriptor, open a real (non-O_PATH) file referencing the same inode by
// going through "/proc/thread-self/fd/<N>". flags always gets
// O_CLOEXEC|O_NOCTTY forced in, matching the Handle-layer (C6) contract.
func (h *Handle) Reopen(target *os.File, flags int) (*os.File, error) {
	prefix, closer := h.threadSelfPrefix()
	defer closer()

	fdDir, err := h.lookup(prefix+"/fd", unix.O_PATH|unix.O_DIRECTORY)
	if err != nil {
		return nil, fmt.Errorf("get safe /proc/%s/fd handle: %w", prefix, err)
	}
	defer fdDir.Close() //nolint:errcheck

	fdStr := strconv.Itoa(int(target.Fd()))
	if err := h.CheckSubpathOvermount(fdDir, fdStr); err != nil {
		return nil, fmt.Errorf("check safety of /proc/%s/fd/%s magiclink: %w", prefix, fdStr, err)
	}

	flags |= unix.O_CLOEXEC | unix.O_NOCTTY
	dirFd, hintPath := sysx.PrepareAt(fdDir, fdStr)
	reopened, err := unix.Openat(dirFd, fdStr, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("reopen fd %d: %w", target.Fd(), &os.PathError{Op: "openat", Path: hintPath, Err: err})
	}
	runtime.KeepAlive(fdDir)
	runtime.KeepAlive(target)
	return os.NewFile(uintptr(reopened), target.Name()), nil
}

// SelfFdReadlink gets the real path of target by reading
// "/proc/thread-self/fd/<N>", with the same overmount defenses as Reopen.
func SelfFdReadlink(target *os.File) (string, error) {
	proc, err := OpenRoot()
	if err != nil {
		return "", err
	}
	defer proc.Close() //nolint:errcheck

	prefix, closer := proc.threadSelfPrefix()
	defer closer()

	fdDir, err := proc.lookup(prefix+"/fd", unix.O_PATH|unix.O_DIRECTORY)
	if err != nil {
		return "", fmt.Errorf("get safe /proc/%s/fd handle: %w", prefix, err)
	}
	defer fdDir.Close() //nolint:errcheck

	fdStr := strconv.Itoa(int(target.Fd()))
	if err := proc.CheckSubpathOvermount(fdDir, fdStr); err != nil {
		return "", fmt.Errorf("check safety of /proc/%s/fd/%s magiclink: %w", prefix, fdStr, err)
	}

	link, err := sysx.ReadlinkAt(fdDir, fdStr)
	runtime.KeepAlive(target)
	return link, err
}

var (
	errDeletedInode     = errors.New("cannot verify path of deleted inode")
	errDeletedDirectory = errors.New("wandered into deleted directory")
)

// IsDeadInode reports an error if file's link count has dropped to zero,
// which means an attacker deleted it (or its parent directory) mid-walk and
// any /proc/self/fd readlink result for it would be stale or misleading.
func IsDeadInode(file *os.File) error {
	stat, err := sysx.Fstat(file)
	if err != nil {
		return fmt.Errorf("check for dead inode: %w", err)
	}
	if stat.Nlink == 0 {
		err := errDeletedInode
		if stat.Mode&unix.S_IFMT == unix.S_IFDIR {
			err = errDeletedDirectory
		}
		return fmt.Errorf("%w %q", err, file.Name())
	}
	return nil
}
