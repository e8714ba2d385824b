// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config defines the struct-tag-driven flag set for the
// cmd/resolvepath demo binary, parsed with jessevdk/go-flags. This is
// independent of the resolver's own ResolverFlags bitset, which lives in
// the root package and governs resolution policy, not CLI presentation.
// cmd/resolvepath does not import this package: it declares its own
// urfave/cli flags.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	libresolvepath "github.com/openSUSE/libresolvepath"
)

// Config is a struct-tag version of the --root/--backend/--verbose flags that
// cmd/resolvepath declares with urfave/cli.
type Config struct {
	Root    string `short:"r" long:"root" description:"root directory to resolve within" required:"true"`
	Backend string `short:"b" long:"backend" description:"kernel|emulated|auto" default:"auto"`
	Verbose []bool `short:"v" long:"verbose" description:"increase log verbosity"`
}

// Parse parses args (typically os.Args[1:] for the subcommand, after
// urfave/cli has already consumed the subcommand name) into a Config.
func Parse(args []string) (*Config, []string, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

// ResolveBackend maps the --backend string onto a libresolvepath.ResolverBackend.
func (c *Config) ResolveBackend() (libresolvepath.ResolverBackend, error) {
	switch c.Backend {
	case "", "auto":
		return libresolvepath.AutoBackend, nil
	case "kernel":
		return libresolvepath.KernelOpenat2, nil
	case "emulated":
		return libresolvepath.EmulatedOpath, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want kernel|emulated|auto)", c.Backend)
	}
}
