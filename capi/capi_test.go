//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capi_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/capi"
)

func openRootFd(t *testing.T, dir string) int {
	t.Helper()
	f, err := os.OpenFile(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(int(f.Fd())) })
	return int(f.Fd())
}

func TestResolveSuccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	rootFd := openRootFd(t, dir)
	fd, errID := capi.Resolve(rootFd, "sub")
	require.Zero(t, errID)
	require.NoError(t, unix.Close(fd))
}

func TestResolveMissingReturnsErrorID(t *testing.T) {
	dir := t.TempDir()

	rootFd := openRootFd(t, dir)
	fd, errID := capi.Resolve(rootFd, "missing")
	require.Zero(t, fd)
	require.LessOrEqual(t, errID, int32(-4096))

	errno, desc, ok := capi.ErrorInfo(errID)
	require.True(t, ok)
	require.NotEmpty(t, desc)
	require.Equal(t, uint64(unix.ENOENT), errno)

	// The id is single-use: a second lookup must report not-found.
	_, _, ok = capi.ErrorInfo(errID)
	require.False(t, ok)
}

func TestResolvePartialReportsRemainder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0o755))

	rootFd := openRootFd(t, dir)
	fd, remaining, errID := capi.ResolvePartial(rootFd, "a/b")
	require.Zero(t, errID)
	require.Equal(t, "b", remaining)
	require.NoError(t, unix.Close(fd))
}

func TestReopenYieldsUsableFd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("hi"), 0o644))

	rootFd := openRootFd(t, dir)
	handleFd, errID := capi.Resolve(rootFd, "file")
	require.Zero(t, errID)

	realFd, errID := capi.Reopen(handleFd, os.O_RDONLY)
	require.Zero(t, errID)
	defer unix.Close(realFd)

	buf := make([]byte, 2)
	n, err := unix.Read(realFd, buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestErrorInfoUnknownIDNotOK(t *testing.T) {
	_, _, ok := capi.ErrorInfo(-5000)
	require.False(t, ok)
}

// TestResolveReusesRootFdAcrossCalls guards against capi.Resolve taking
// ownership of the caller's rootFd: the FFI contract is that rootFd and any
// handleFd returned from it are borrowed and reused across many calls, never
// handed over. A dozen resolutions (plus a GC pass, to provoke any stray
// finalizer on a wrapper this package might otherwise have built around the
// raw descriptor) must all succeed against the same rootFd.
func TestResolveReusesRootFdAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	rootFd := openRootFd(t, dir)
	for i := 0; i < 12; i++ {
		runtime.GC()
		fd, errID := capi.Resolve(rootFd, "sub")
		require.Zero(t, errID)
		require.NoError(t, unix.Close(fd))
	}

	// rootFd itself must still be the live, original descriptor: fstat must
	// still succeed on it.
	var stat unix.Stat_t
	require.NoError(t, unix.Fstat(rootFd, &stat))
}

// TestReopenReusesHandleFdAcrossCalls is the same guard for handleFd: a
// resolved handle can be reopened more than once without the second call
// finding the fd already closed out from under it.
func TestReopenReusesHandleFdAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("hi"), 0o644))

	rootFd := openRootFd(t, dir)
	handleFd, errID := capi.Resolve(rootFd, "file")
	require.Zero(t, errID)

	for i := 0; i < 3; i++ {
		runtime.GC()
		realFd, errID := capi.Reopen(handleFd, os.O_RDONLY)
		require.Zero(t, errID)

		buf := make([]byte, 2)
		n, err := unix.Read(realFd, buf)
		require.NoError(t, err)
		require.Equal(t, "hi", string(buf[:n]))
		require.NoError(t, unix.Close(realFd))
	}
}
