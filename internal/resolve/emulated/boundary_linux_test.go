//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emulated_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openSUSE/libresolvepath/internal/resolve/emulated"
)

// buildSymlinkChain creates n symlinks under dir, each pointing to the
// previous one, with the first pointing at "target", and returns the name
// of the last (outermost) link in the chain.
func buildSymlinkChain(t *testing.T, dir string, n int) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target"), []byte("x"), 0o644))
	prev := "target"
	for i := 0; i < n; i++ {
		name := "l" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, os.Symlink(prev, filepath.Join(dir, name)))
		prev = name
	}
	return prev
}

func TestSymlinkChainAtExactLimitSucceeds(t *testing.T) {
	dir := t.TempDir()
	last := buildSymlinkChain(t, dir, 128)

	root, err := os.OpenFile(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer root.Close()

	f, err := emulated.Resolve(root, last, 0)
	require.NoError(t, err)
	defer f.Close()
}

func TestSymlinkChainOneOverLimitFails(t *testing.T) {
	dir := t.TempDir()
	last := buildSymlinkChain(t, dir, 129)

	root, err := os.OpenFile(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer root.Close()

	_, err = emulated.Resolve(root, last, 0)
	require.ErrorIs(t, err, emulated.ErrTooManySymlinks)
}

func TestRootPathBoundaryCases(t *testing.T) {
	dir := t.TempDir()
	root, err := os.OpenFile(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer root.Close()

	for _, path := range []string{"", ".", "/", "//", "./."} {
		f, err := emulated.Resolve(root, path, 0)
		require.NoError(t, err, "path %q", path)
		f.Close()
	}
}
