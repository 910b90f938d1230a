// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package agent wires the allocation engine, the end-of-day expirer and the
// HTTP surface into a single long-running process.
package agent

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/opd/opd"
)

// Config configures an Agent.
type Config struct {
	// BindAddr is the host:port the HTTP surface listens on.
	BindAddr string

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string

	// ExpireSchedule is the cron expression for end-of-day expiry.
	ExpireSchedule string
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:       "127.0.0.1:4690",
		LogLevel:       "info",
		ExpireSchedule: opd.DefaultExpireSchedule,
	}
}

// Agent is a long-running process hosting the engine and its collaborators.
type Agent struct {
	config *Config
	logger hclog.Logger

	engine  *opd.Engine
	expirer *opd.EndOfDayExpirer
	http    *HTTPServer

	shutdown     bool
	shutdownLock sync.Mutex
}

// NewAgent creates an agent, starting the expirer and the HTTP listener.
func NewAgent(config *Config, logger hclog.Logger) (*Agent, error) {
	engine, err := opd.NewEngine(&opd.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("engine setup failed: %v", err)
	}

	expirer, err := opd.NewEndOfDayExpirer(engine, config.ExpireSchedule)
	if err != nil {
		return nil, fmt.Errorf("expirer setup failed: %v", err)
	}
	expirer.SetEnabled(true)

	a := &Agent{
		config:  config,
		logger:  logger.Named("agent"),
		engine:  engine,
		expirer: expirer,
	}

	http, err := NewHTTPServer(a, config)
	if err != nil {
		expirer.SetEnabled(false)
		return nil, err
	}
	a.http = http

	return a, nil
}

// Engine returns the hosted engine.
func (a *Agent) Engine() *opd.Engine {
	return a.engine
}

// Shutdown stops the agent's collaborators. Safe to call more than once.
func (a *Agent) Shutdown() {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()

	if a.shutdown {
		return
	}
	a.shutdown = true

	a.logger.Info("requesting shutdown")
	a.expirer.SetEnabled(false)
	if a.http != nil {
		a.http.Shutdown()
	}
	a.logger.Info("shutdown complete")
}
