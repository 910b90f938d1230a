// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package testlog creates hclog loggers backed by testing.T to ease logging
// in tests.
package testlog

import (
	"io"
	"log"
	"os"

	hclog "github.com/hashicorp/go-hclog"
	testing "github.com/mitchellh/go-testing-interface"
)

// LogLevel returns the level from the OPD_TEST_LOG_LEVEL environment
// variable, defaulting to warn to keep test output readable.
func LogLevel() string {
	if level := os.Getenv("OPD_TEST_LOG_LEVEL"); level != "" {
		return level
	}
	return "warn"
}

// Logger is the methods of testing.T (or testing.B) needed by the test
// logger.
type Logger interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a Logger.
type writer struct {
	t Logger
}

// Write to an underlying Logger. Never returns an error.
func (w *writer) Write(p []byte) (n int, err error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// NewWriter creates a new io.Writer backed by a Logger.
func NewWriter(t Logger) io.Writer {
	return &writer{t}
}

// New returns a new test logger. See https://golang.org/pkg/log/#New
func New(t Logger, prefix string, flag int) *log.Logger {
	return log.New(&writer{t}, prefix, flag)
}

// HCLogger returns a new test hc-logger.
func HCLogger(t testing.T) hclog.InterceptLogger {
	level := LogLevel()
	opts := &hclog.LoggerOptions{
		Level:           hclog.LevelFromString(level),
		Output:          NewWriter(t.(Logger)),
		IncludeLocation: true,
	}
	return hclog.NewInterceptLogger(opts)
}
