// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"

	"github.com/hashicorp/opd/command"
	"github.com/hashicorp/opd/version"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}

// Run runs the CLI with the given arguments.
func Run(args []string) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:     "opd",
		Version:  version.GetVersion().FullVersionNumber(true),
		Args:     args,
		Commands: command.Commands(&command.Meta{Ui: ui}),
		HelpFunc: cli.BasicHelpFunc("opd"),
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err.Error())
		return 1
	}
	return exitCode
}
