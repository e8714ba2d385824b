// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command resolvepath is a thin demo/inspection binary over the resolver,
// useful for manual testing and scripting. It is not part of the core
// contract: everything it does goes through the exported root package.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	libresolvepath "github.com/openSUSE/libresolvepath"
	"github.com/openSUSE/libresolvepath/internal/lexical"
	"github.com/openSUSE/libresolvepath/internal/logging"
)

var log = logrus.New()

func backendFromFlag(name string) (libresolvepath.ResolverBackend, error) {
	switch name {
	case "", "auto":
		return libresolvepath.AutoBackend, nil
	case "kernel":
		return libresolvepath.KernelOpenat2, nil
	case "emulated":
		return libresolvepath.EmulatedOpath, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want kernel|emulated|auto)", name)
	}
}

func openRoot(ctx *cli.Context) (*libresolvepath.Root, *libresolvepath.Resolver, error) {
	backend, err := backendFromFlag(ctx.String("backend"))
	if err != nil {
		return nil, nil, err
	}
	root, err := libresolvepath.OpenRoot(ctx.String("root"))
	if err != nil {
		return nil, nil, fmt.Errorf("open root %q: %w", ctx.String("root"), err)
	}
	resolver := libresolvepath.NewResolver(
		libresolvepath.WithBackend(backend),
		libresolvepath.WithLogger(log),
	)
	return root, resolver, nil
}

func resolveAction(ctx *cli.Context) error {
	root, resolver, err := openRoot(ctx)
	if err != nil {
		return err
	}
	defer root.Close() //nolint:errcheck

	path := ctx.Args().First()
	if path == "" {
		return cli.Exit("missing path argument", 1)
	}

	handle, err := resolver.Resolve(root, path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve %q: %v", path, err), 1)
	}
	defer handle.Close() //nolint:errcheck

	f, err := handle.Reopen(os.O_RDONLY)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reopen resolved handle: %v", err), 1)
	}
	defer f.Close() //nolint:errcheck

	fmt.Println(lexical.Describe(ctx.String("root"), f.Name()))
	return nil
}

func partialAction(ctx *cli.Context) error {
	root, resolver, err := openRoot(ctx)
	if err != nil {
		return err
	}
	defer root.Close() //nolint:errcheck

	path := ctx.Args().First()
	if path == "" {
		return cli.Exit("missing path argument", 1)
	}

	result, err := resolver.ResolvePartial(root, path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve_partial %q: %v", path, err), 1)
	}
	defer result.Handle.Close() //nolint:errcheck

	if result.Complete {
		fmt.Printf("complete\n")
	} else {
		fmt.Printf("partial remaining=%q error=%v\n", result.Remaining, result.LastError)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "resolvepath",
		Usage: "inspect the race-free path resolver from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Required: true, Usage: "root directory to resolve within"},
			&cli.StringFlag{Name: "backend", Value: "auto", Usage: "kernel|emulated|auto"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug-level logging"},
		},
		Before: func(ctx *cli.Context) error {
			log.SetOutput(os.Stderr)
			if ctx.Bool("verbose") {
				log.SetLevel(logrus.DebugLevel)
			} else {
				log.SetLevel(logrus.WarnLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "resolve a path to completion",
				ArgsUsage: "<path>",
				Action:    resolveAction,
			},
			{
				Name:      "partial",
				Usage:     "resolve as much of a path as exists",
				ArgsUsage: "<path>",
				Action:    partialAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var _ logging.Logger = (*logrus.Logger)(nil)
