//go:build linux

// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libresolvepath_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	libresolvepath "github.com/openSUSE/libresolvepath"
)

// TestConcurrentResolutionsShareRootSafely resolves many paths against one
// Root concurrently from many goroutines, exercising the documented
// guarantee that a Root may be shared read-only across resolutions without
// external locking.
func TestConcurrentResolutionsShareRootSafely(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		sub := filepath.Join(dir, "d"+string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "file"), []byte("x"), 0o644))
	}

	root, err := libresolvepath.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := "d" + string(rune('a'+n%8))
			h, err := root.Resolve(filepath.Join(sub, "file"))
			if err != nil {
				errs <- err
				return
			}
			defer h.Close()
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

// TestResolutionSurvivesConcurrentSymlinkSwap races a resolution against a
// goroutine that keeps repointing a symlink between two in-root targets. The
// race-free guarantee this module provides is that every resolution lands
// on *some* valid in-root inode - not necessarily a stable one - and never
// escapes the root, never on a file outside dir.
func TestResolutionSurvivesConcurrentSymlinkSwap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "file"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "file"), []byte("x"), 0o644))

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("a", link))

	root, err := libresolvepath.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	stop := make(chan struct{})
	var swapWg sync.WaitGroup
	swapWg.Add(1)
	go func() {
		defer swapWg.Done()
		targets := []string{"a", "b"}
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			tmp := link + ".tmp"
			_ = os.Symlink(targets[i%2], tmp)
			_ = os.Rename(tmp, link)
			i++
		}
	}()

	for i := 0; i < 200; i++ {
		h, err := root.Resolve("link/file")
		require.NoError(t, err)
		h.Close()
	}
	close(stop)
	swapWg.Wait()
}
