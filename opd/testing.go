// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package opd

import (
	testing "github.com/mitchellh/go-testing-interface"

	"github.com/hashicorp/opd/helper/libtime"
	"github.com/hashicorp/opd/helper/testlog"
)

// TestEngine returns an engine for testing, driven by the given clock.
func TestEngine(t testing.T, clock libtime.Clock) *Engine {
	engine, err := NewEngine(&Config{
		Logger: testlog.HCLogger(t),
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return engine
}
