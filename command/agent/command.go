// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"
)

// Command is a Command implementation that runs an OPD agent.
type Command struct {
	Ui cli.Ui
}

func (c *Command) readConfig(args []string) *Config {
	config := DefaultConfig()

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Error(c.Help()) }
	flags.StringVar(&config.BindAddr, "bind", config.BindAddr, "")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "")
	flags.StringVar(&config.ExpireSchedule, "expire-schedule", config.ExpireSchedule, "")

	if err := flags.Parse(args); err != nil {
		return nil
	}
	return config
}

func (c *Command) Run(args []string) int {
	config := c.readConfig(args)
	if config == nil {
		return 1
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:  "opd",
		Level: hclog.LevelFromString(config.LogLevel),
	})

	agent, err := NewAgent(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return 1
	}
	defer agent.Shutdown()

	c.Ui.Output("OPD agent started! Log data will stream in below:")

	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	sig := <-signalCh
	c.Ui.Output(fmt.Sprintf("Caught signal: %v", sig))
	return 0
}

func (c *Command) Synopsis() string {
	return "Runs an OPD agent"
}

func (c *Command) Name() string { return "agent" }

func (c *Command) Help() string {
	helpText := `
Usage: opd agent [options]

  Starts the OPD agent: the token allocation engine, its end-of-day expirer
  and the HTTP interface.

Options:

  -bind=<addr>
    The host:port for the HTTP interface. Defaults to 127.0.0.1:4690.

  -log-level=<level>
    One of trace, debug, info, warn or error. Defaults to info.

  -expire-schedule=<cron>
    Cron expression for end-of-day expiry of waiting tokens.
    Defaults to "0 18 * * *".
`
	return strings.TrimSpace(helpText)
}
