// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"github.com/hashicorp/cli"
)

// Meta contains the meta-options and functionality that nearly every command
// inherits.
type Meta struct {
	Ui cli.Ui
}
