//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/procfs"
)

func TestOpenRootSucceeds(t *testing.T) {
	h, err := procfs.OpenRoot()
	require.NoError(t, err)
	defer h.Close()
}

func TestOpenUnsafeRootSucceeds(t *testing.T) {
	h, err := procfs.OpenUnsafeRoot()
	require.NoError(t, err)
	defer h.Close()
}

func TestReopenRoundTripsToRealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	opath, err := os.OpenFile(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer opath.Close()

	h, err := procfs.OpenRoot()
	require.NoError(t, err)
	defer h.Close()

	reopened, err := h.Reopen(opath, os.O_RDONLY)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, 5)
	n, err := reopened.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestSelfFdReadlinkMatchesRealPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, err := os.OpenFile(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer f.Close()

	link, err := procfs.SelfFdReadlink(f)
	require.NoError(t, err)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(resolvedDir, "file"), link)
}

func TestIsDeadInodeDetectsUnlinkedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, procfs.IsDeadInode(f))

	require.NoError(t, os.Remove(path))
	require.Error(t, procfs.IsDeadInode(f))
}

func TestGetMountIDZeroOrPositive(t *testing.T) {
	dir := t.TempDir()
	f, err := os.OpenFile(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer f.Close()

	// 0 is the documented "unsupported kernel" sentinel; any other value
	// is a valid mount id. Either way this must not error on a normal path.
	_, err = procfs.GetMountID(f, "")
	require.NoError(t, err)
}
