// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the resolver's optional diagnostic sink. Silent
// by default: the library never logs on behalf of a caller who didn't ask.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of *logrus.Logger the resolver calls into. Satisfied
// directly by *logrus.Logger and *logrus.Entry.
type Logger interface {
	Debugf(format string, args ...any)
	Tracef(format string, args ...any)
}

// Discard returns a logrus.Logger with output discarded, the resolver's
// default when a caller doesn't configure a logger of its own.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// New returns a *logrus.Logger suitable for passing to WithLogger, writing
// to the given writer at the given level.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	return l
}
