//go:build linux

// Copyright (C) 2024-2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lexical provides non-authoritative, string-only path helpers used
// purely for human-readable logging and CLI output. Nothing here is part of
// the resolution contract: the real safety guarantees come from the fd-based
// resolver (internal/resolve/kernel, internal/resolve/emulated), not from any
// string comparison in this package.
package lexical

import "strings"

// InRoot reports whether path (for example a file's recorded name, as
// cmd/resolvepath passes, or a /proc/self/fd readlink result) lexically
// starts with root. This is a display-time sanity check only - it
// is evaluated purely as strings, after resolution has already happened, so
// it can say nothing about TOCTOU races that occurred during resolution.
func InRoot(root, path string) bool {
	if root != "/" {
		root += "/"
	}
	if path != "/" {
		path += "/"
	}
	return strings.HasPrefix(path, root)
}

// Describe renders handlePath relative to root for logging, falling back to
// the raw handle path (prefixed to flag the anomaly) if it isn't lexically
// inside root.
func Describe(root, handlePath string) string {
	if !InRoot(root, handlePath) {
		return "outside-root:" + handlePath
	}
	rel := strings.TrimPrefix(handlePath, root)
	return strings.TrimPrefix(rel, "/")
}
