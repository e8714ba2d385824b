// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package libresolvepath implements race-free path resolution confined to a
// subtree of a Linux filesystem: given a root directory and a caller-
// supplied path, it resolves the path and returns a handle to the resolved
// inode without ever letting the resolution escape the root, even under
// concurrent adversarial mutation of the filesystem.
//
// Two backends implement the same contract: the kernel backend delegates to
// openat2(RESOLVE_IN_ROOT) in one syscall where available; the emulated
// backend walks the path component by component using only O_PATH
// descriptors and /proc/self/fd reopening. Resolver picks between them.
package libresolvepath

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openSUSE/libresolvepath/internal/logging"
	"github.com/openSUSE/libresolvepath/internal/resolve/emulated"
	"github.com/openSUSE/libresolvepath/internal/resolve/kernel"
	"github.com/openSUSE/libresolvepath/internal/sysx"
)

// ResolverBackend selects which resolution engine a Resolver uses. The set
// is closed and probe-determined: there is no open-ended plugin mechanism.
type ResolverBackend int

const (
	// AutoBackend picks KernelOpenat2 if the running kernel supports it,
	// falling back to EmulatedOpath otherwise. The choice is cached after
	// the first probe.
	AutoBackend ResolverBackend = iota
	KernelOpenat2
	EmulatedOpath
)

// ResolverFlags is a bitset of resolution policy options.
type ResolverFlags uint32

const (
	// NoSymlinks rejects any symlink encountered during resolution,
	// including the trailing component.
	NoSymlinks ResolverFlags = 1 << iota
	// NoSymlinksTrailingOnly rejects a symlink only if it is the final
	// path component; symlinks earlier in the path are still expanded.
	NoSymlinksTrailingOnly
	// NoFollowTrailing leaves a trailing symlink unexpanded: the returned
	// handle references the symlink itself, not its target.
	NoFollowTrailing
)

var backendProbe = sync.OnceValue(func() ResolverBackend {
	if sysx.Openat2Supported() {
		return KernelOpenat2
	}
	return EmulatedOpath
})

// Resolver pairs a backend selection with resolution flags.
type Resolver struct {
	Backend ResolverBackend
	Flags   ResolverFlags
	Logger  logging.Logger
}

// Option configures a Resolver built by NewResolver.
type Option func(*Resolver)

// WithLogger attaches a diagnostic sink for backend selection, fallback,
// and resolution-failure tracing. The resolver logs nothing unless a
// logger is attached.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Resolver) { r.Logger = l }
}

// WithBackend pins the resolver to a specific backend instead of the
// default auto-probed choice.
func WithBackend(b ResolverBackend) Option {
	return func(r *Resolver) { r.Backend = b }
}

// WithFlags sets the resolver's flag bitset.
func WithFlags(f ResolverFlags) Option {
	return func(r *Resolver) { r.Flags = f }
}

// NewResolver builds a Resolver from the given options, defaulting to
// AutoBackend, no flags, and a discarding logger.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{Backend: AutoBackend, Logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultResolverOnce = sync.OnceValue(func() *Resolver {
	return NewResolver()
})

func defaultResolver() *Resolver { return defaultResolverOnce() }

// effectiveBackend resolves AutoBackend to a concrete choice, using the
// process-wide, one-time openat2 capability probe.
func (r *Resolver) effectiveBackend() ResolverBackend {
	if r.Backend == AutoBackend {
		return backendProbe()
	}
	return r.Backend
}

func (r *Resolver) logger() logging.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

func (r *Resolver) kernelFlags() kernel.Flags {
	var f kernel.Flags
	if r.Flags&NoSymlinks != 0 {
		f |= kernel.NoSymlinks
	}
	if r.Flags&NoSymlinksTrailingOnly != 0 {
		f |= kernel.NoSymlinksTrailingOnly
	}
	if r.Flags&NoFollowTrailing != 0 {
		f |= kernel.NoFollowTrailing
	}
	return f
}

func (r *Resolver) emulatedFlags() emulated.Flags {
	var f emulated.Flags
	if r.Flags&NoSymlinks != 0 {
		f |= emulated.NoSymlinks
	}
	if r.Flags&NoSymlinksTrailingOnly != 0 {
		f |= emulated.NoSymlinksTrailingOnly
	}
	if r.Flags&NoFollowTrailing != 0 {
		f |= emulated.NoFollowTrailing
	}
	return f
}

// validatePath rejects the caller-contract violations the dispatcher is
// responsible for, before either backend ever sees the path.
func validatePath(path string) error {
	if path == "" {
		return &InvalidArgumentError{Field: "path", Reason: "empty path"}
	}
	for i := 0; i < len(path); i++ {
		if path[i] == 0 {
			return &InvalidArgumentError{Field: "path", Reason: "embedded NUL byte"}
		}
	}
	return nil
}

// Resolve resolves path within root, returning a Handle to the resolved
// inode or a well-classified error. Any partial result produced internally
// is collapsed into its last error, per the non-partial contract.
func (r *Resolver) Resolve(root *Root, path string) (*Handle, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	p, err := r.resolvePartial(root, path)
	if err != nil {
		return nil, err
	}
	return p.intoComplete()
}

// ResolvePartial resolves as much of path as exists within root.
func (r *Resolver) ResolvePartial(root *Root, path string) (PartialLookup, error) {
	if err := validatePath(path); err != nil {
		return PartialLookup{}, err
	}
	return r.resolvePartial(root, path)
}

func (r *Resolver) resolvePartial(root *Root, path string) (PartialLookup, error) {
	log := r.logger()

	// openat2's RESOLVE_NO_SYMLINKS has no "trailing component only" mode
	// (it rejects every symlink in the path, not just the last one), and no
	// way to ask for the trailing symlink itself rather than its target:
	// both policies force a downgrade to the emulated backend, which can
	// express them precisely.
	const kernelIncapable = NoSymlinksTrailingOnly | NoFollowTrailing
	useKernel := r.effectiveBackend() == KernelOpenat2 && r.Flags&kernelIncapable == 0

	if useKernel {
		log.Debugf("resolving %q via kernel backend", path)
		f, remaining, err := kernel.ResolvePartial(root.file, path, r.kernelFlags())
		switch {
		case err == nil:
			return PartialLookup{Complete: true, Handle: newHandle(f)}, nil
		case errors.Is(err, kernel.ErrUnsupported):
			if r.Backend != AutoBackend {
				// The caller explicitly pinned KernelOpenat2 - presumably to force
				// that code path under test, or because it genuinely requires
				// kernel-backed semantics - so report the mismatch instead of
				// silently handing them the emulated backend instead.
				return PartialLookup{}, ErrBackendUnsupported
			}
			log.Debugf("kernel backend unsupported, falling back to emulated")
		case f != nil:
			return PartialLookup{Handle: newHandle(f), Remaining: remaining, LastError: classify(err)}, nil
		default:
			return PartialLookup{}, classify(err)
		}
	}

	log.Debugf("resolving %q via emulated backend", path)
	f, remaining, err := emulated.ResolvePartial(root.file, path, r.emulatedFlags())
	if err != nil {
		if f != nil {
			return PartialLookup{Handle: newHandle(f), Remaining: remaining, LastError: classify(err)}, nil
		}
		return PartialLookup{}, classify(err)
	}
	return PartialLookup{Complete: true, Handle: newHandle(f)}, nil
}

// classify maps a backend-internal sentinel error onto the exported error
// kinds from errors.go. os.ErrNotExist-class errors and generic syscall
// errnos pass through newOsError so errors.Is(err, unix.ENOENT) keeps
// working for callers; ErrTooManySymlinks maps onto the stable
// ErrSymlinkLoop sentinel.
func classify(err error) error {
	if errors.Is(err, emulated.ErrTooManySymlinks) {
		return ErrSymlinkLoop
	}
	return newOsError("openat", "", err)
}
