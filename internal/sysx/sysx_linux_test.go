//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sysx_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/sysx"
)

func openDir(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenAtRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(dir, "link")))

	root := openDir(t, dir)
	_, err := sysx.OpenAt(root, "link", unix.O_RDONLY|unix.O_NOFOLLOW, 0)
	require.ErrorIs(t, err, unix.ELOOP)
}

func TestOpenAtFollowsRegularComponent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0o644))

	root := openDir(t, dir)
	f, err := sysx.OpenAt(root, "file", unix.O_PATH, 0)
	require.NoError(t, err)
	defer f.Close()

	stat, err := sysx.Fstat(f)
	require.NoError(t, err)
	require.Equal(t, uint32(unix.S_IFREG), stat.Mode&unix.S_IFMT)
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := openDir(t, dir)
	b := openDir(t, dir)

	same, err := sysx.SameFile(a, b)
	require.NoError(t, err)
	require.True(t, same)

	other := openDir(t, t.TempDir())
	same, err = sysx.SameFile(a, other)
	require.NoError(t, err)
	require.False(t, same)
}

func TestReadlinkAtGrowsBuffer(t *testing.T) {
	dir := t.TempDir()
	target := "/" + strings.Repeat("a", 1024)
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "biglink")))

	root := openDir(t, dir)
	got, err := sysx.ReadlinkAt(root, "biglink")
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestDupCloexecIndependentDescriptor(t *testing.T) {
	dir := t.TempDir()
	f := openDir(t, dir)

	dup, err := sysx.DupCloexec(f)
	require.NoError(t, err)
	defer dup.Close()

	require.NotEqual(t, f.Fd(), dup.Fd())
	same, err := sysx.SameFile(f, dup)
	require.NoError(t, err)
	require.True(t, same)
}

func TestOpenat2SupportedDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() { sysx.Openat2Supported() })
}
