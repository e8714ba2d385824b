// Copyright (C) 2025 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/openSUSE/libresolvepath/internal/logging"
)

func TestDiscardSwallowsOutput(t *testing.T) {
	l := logging.Discard()
	require.NotPanics(t, func() { l.Debugf("hello %s", "world") })
}

func TestNewWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, logrus.DebugLevel)
	l.Debugf("hello %s", "world")
	require.Contains(t, buf.String(), "hello world")
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf, logrus.WarnLevel)
	l.Debugf("should not appear")
	require.Empty(t, buf.String())
}
